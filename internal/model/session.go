package model

import "time"

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message in a session transcript.
type ChatTurn struct {
	Role    Role      `json:"role" yaml:"role"`
	Content string    `json:"content" yaml:"content"`
	At      time.Time `json:"at" yaml:"at"`
}

// ReplyStatus classifies a reply returned to the user.
type ReplyStatus string

const (
	ReplyOK          ReplyStatus = "ok"
	ReplyBusy        ReplyStatus = "busy"
	ReplyExpired     ReplyStatus = "expired"
	ReplyNoOutput    ReplyStatus = "no_output"
	ReplyNoResults   ReplyStatus = "no_results"
	ReplySystemError ReplyStatus = "system_error"
)

// Reply is the user-facing answer for one turn.
type Reply struct {
	Text   string      `json:"text"`
	Status ReplyStatus `json:"status"`
}

// OK reports whether the reply carries an analysis.
func (r Reply) OK() bool {
	return r.Status == ReplyOK
}

// SessionBundle is everything needed to reproduce a session later.
type SessionBundle struct {
	Chat        []ChatTurn   `json:"chat" yaml:"chat"`
	Schema      *QuerySchema `json:"schema" yaml:"schema"`
	SampleText  string       `json:"sample_text" yaml:"sample_text"`
	CommentsCSV []byte       `json:"-" yaml:"-"`
	VideosCSV   []byte       `json:"-" yaml:"-"`
}

// SessionSummary is a listing entry for a saved session.
type SessionSummary struct {
	User      string    `json:"user" yaml:"user"`
	Name      string    `json:"name" yaml:"name"`
	Turns     int       `json:"turns" yaml:"turns"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
