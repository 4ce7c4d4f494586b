package model

import "time"

// ChannelFilter restricts which channels a query targets.
type ChannelFilter string

const (
	ChannelAny        ChannelFilter = "any"
	ChannelOfficial   ChannelFilter = "official"
	ChannelUnofficial ChannelFilter = "unofficial"
)

// Lang is the preferred comment language.
type Lang string

const (
	LangKO   Lang = "ko"
	LangEN   Lang = "en"
	LangAuto Lang = "auto"
)

// QueryOptions are the switches extracted alongside the search window.
type QueryOptions struct {
	IncludeReplies bool          `json:"include_replies" yaml:"include_replies"`
	ChannelFilter  ChannelFilter `json:"channel_filter" yaml:"channel_filter"`
	Lang           Lang          `json:"lang" yaml:"lang"`
}

// DefaultQueryOptions returns the options used when none could be extracted.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		IncludeReplies: false,
		ChannelFilter:  ChannelAny,
		Lang:           LangAuto,
	}
}

// QuerySchema is the structured interpretation of a first-turn question.
// It is immutable for the lifetime of a session.
type QuerySchema struct {
	Start    time.Time    `json:"start" yaml:"start"`
	End      time.Time    `json:"end" yaml:"end"`
	Keywords []string     `json:"keywords" yaml:"keywords"`
	Options  QueryOptions `json:"options" yaml:"options"`
	Raw      string       `json:"raw" yaml:"raw"`
}

// PrimaryKeyword returns the first keyword, or "" if there is none.
func (q *QuerySchema) PrimaryKeyword() string {
	if q == nil || len(q.Keywords) == 0 {
		return ""
	}
	return q.Keywords[0]
}
