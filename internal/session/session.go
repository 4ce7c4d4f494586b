// Package session holds per-conversation state and persists finished
// sessions.
package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
)

// CorpusFile is the comment corpus file name inside a session directory.
const CorpusFile = "comments.csv"

// Context is the runtime state of one conversation. A first turn replaces
// the analysis state; follow-ups read it.
type Context struct {
	ID   string
	User string
	// Name is set once the session has been saved or loaded.
	Name string

	Schema     *model.QuerySchema
	Chat       []model.ChatTurn
	Videos     []model.VideoRecord
	SampleText string
	SampleMeta model.SampleMeta
	Cache      llm.Session

	dir       string
	updatedAt time.Time
	mu        sync.Mutex
}

// New returns an empty Context for user whose working files live under
// baseDir.
func New(user, baseDir string) *Context {
	id := uuid.NewString()
	return &Context{
		ID:        id,
		User:      user,
		dir:       filepath.Join(baseDir, id),
		updatedAt: time.Now().UTC(),
	}
}

// Lock serializes turns on the context.
func (c *Context) Lock() { c.mu.Lock() }

// TryLock acquires the turn lock if it is free.
func (c *Context) TryLock() bool { return c.mu.TryLock() }

// Unlock releases Lock.
func (c *Context) Unlock() { c.mu.Unlock() }

// Dir returns the session's working directory.
func (c *Context) Dir() string {
	return c.dir
}

// CorpusPath returns the path of the session's comment corpus.
func (c *Context) CorpusPath() string {
	return filepath.Join(c.dir, CorpusFile)
}

// UpdatedAt returns the time of the last recorded turn.
func (c *Context) UpdatedAt() time.Time {
	return c.updatedAt
}

// HasAnalysis reports whether a first turn has completed.
func (c *Context) HasAnalysis() bool {
	return c.Schema != nil
}

// AddTurn appends a message to the transcript.
func (c *Context) AddTurn(role model.Role, content string, at time.Time) {
	c.Chat = append(c.Chat, model.ChatTurn{Role: role, Content: content, At: at})
	c.updatedAt = at
}

// Recent returns up to the last n turns.
func (c *Context) Recent(n int) []model.ChatTurn {
	if n <= 0 || len(c.Chat) <= n {
		return c.Chat
	}
	return c.Chat[len(c.Chat)-n:]
}

// ResetAnalysis drops the analysis state ahead of a new first turn. The
// transcript is kept.
func (c *Context) ResetAnalysis() {
	c.Schema = nil
	c.Videos = nil
	c.SampleText = ""
	c.SampleMeta = model.SampleMeta{}
	c.Cache = llm.Session{}
}

// Bundle snapshots everything needed to restore the session later.
func (c *Context) Bundle() (*model.SessionBundle, error) {
	if !c.HasAnalysis() {
		return nil, eris.New("session: nothing to save")
	}
	comments, err := os.ReadFile(c.CorpusPath())
	if err != nil {
		return nil, eris.Wrap(err, "session: read corpus")
	}
	videos, err := corpus.EncodeVideos(c.Videos)
	if err != nil {
		return nil, eris.Wrap(err, "session: encode videos")
	}
	chat := make([]model.ChatTurn, len(c.Chat))
	copy(chat, c.Chat)
	return &model.SessionBundle{
		Chat:        chat,
		Schema:      c.Schema,
		SampleText:  c.SampleText,
		CommentsCSV: comments,
		VideosCSV:   videos,
	}, nil
}

// Cleanup removes the session's working files.
func (c *Context) Cleanup() error {
	return os.RemoveAll(c.dir)
}
