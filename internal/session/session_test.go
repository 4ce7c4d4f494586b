package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
)

func TestBaseName(t *testing.T) {
	assert.Equal(t, "눈물의여왕", BaseName("눈물의 여왕!"))
	assert.Equal(t, "abcdefghijkl", BaseName("abc def ghi jkl mno"))
	assert.Equal(t, FallbackBase, BaseName("  #!? "))
	assert.Equal(t, FallbackBase, BaseName(""))
}

func TestNextName(t *testing.T) {
	assert.Equal(t, "drama1", nextName(nil, "drama"))
	assert.Equal(t, "drama4", nextName([]string{"drama1", "drama3", "dramas2", "drama", "drama3x"}, "drama"))
	assert.Equal(t, "a.b1", nextName([]string{"axb7"}, "a.b"))
}

func TestContext_Recent(t *testing.T) {
	c := New("alice", t.TempDir())
	at := time.Now()
	for i := range 12 {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		c.AddTurn(role, string(rune('a'+i)), at)
	}
	recent := c.Recent(10)
	require.Len(t, recent, 10)
	assert.Equal(t, "c", recent[0].Content)
	assert.Len(t, c.Recent(0), 12)
	assert.Equal(t, at, c.UpdatedAt())
}

func TestContext_ResetAnalysis(t *testing.T) {
	c := New("alice", t.TempDir())
	c.Schema = &model.QuerySchema{Keywords: []string{"k"}}
	c.SampleText = "sample"
	c.Cache = llm.Session{Handle: &llm.CacheHandle{ID: "x"}}
	c.AddTurn(model.RoleUser, "hi", time.Now())

	c.ResetAnalysis()
	assert.False(t, c.HasAnalysis())
	assert.Empty(t, c.SampleText)
	assert.Nil(t, c.Cache.Handle)
	assert.Len(t, c.Chat, 1)
}

func TestContext_Bundle(t *testing.T) {
	c := New("alice", t.TempDir())
	_, err := c.Bundle()
	assert.Error(t, err)

	w, err := corpus.Create(c.CorpusPath())
	require.NoError(t, err)
	require.NoError(t, w.Append([]model.CommentRecord{{VideoID: "v1", CommentID: "c1", Text: "hello"}}))

	c.Schema = &model.QuerySchema{Keywords: []string{"k"}}
	c.Videos = []model.VideoRecord{{ID: "v1", Title: "Title"}}
	c.SampleText = "sample"
	c.AddTurn(model.RoleUser, "q", time.Now())

	b, err := c.Bundle()
	require.NoError(t, err)
	assert.Equal(t, "sample", b.SampleText)
	assert.Contains(t, string(b.CommentsCSV), "hello")
	videos, err := corpus.DecodeVideos(b.VideosCSV)
	require.NoError(t, err)
	assert.Equal(t, "Title", videos[0].Title)

	require.NoError(t, c.Cleanup())
	_, err = os.Stat(c.Dir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
