package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commentscope/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testBundle() *model.SessionBundle {
	at := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	return &model.SessionBundle{
		Chat: []model.ChatTurn{
			{Role: model.RoleUser, Content: "q", At: at},
			{Role: model.RoleAssistant, Content: "<p>a</p>", At: at},
		},
		Schema: &model.QuerySchema{
			Start:    at.Add(-24 * time.Hour),
			End:      at,
			Keywords: []string{"drama"},
			Options:  model.DefaultQueryOptions(),
		},
		SampleText:  "[R|♥1] a: b",
		CommentsCSV: []byte("video_id,text\nv1,hello\n"),
		VideosCSV:   []byte("video_id\nv1\n"),
	}
}

func TestSQLite_SaveLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, "alice", "drama1", testBundle()))

	got, err := st.Load(ctx, "alice", "drama1")
	require.NoError(t, err)
	want := testBundle()
	assert.Equal(t, want.SampleText, got.SampleText)
	assert.Equal(t, want.CommentsCSV, got.CommentsCSV)
	assert.Equal(t, want.VideosCSV, got.VideosCSV)
	require.Len(t, got.Chat, 2)
	assert.Equal(t, "<p>a</p>", got.Chat[1].Content)
	require.NotNil(t, got.Schema)
	assert.Equal(t, []string{"drama"}, got.Schema.Keywords)
	assert.True(t, want.Schema.Start.Equal(got.Schema.Start))
}

func TestSQLite_SaveOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b := testBundle()
	require.NoError(t, st.Save(ctx, "alice", "drama1", b))
	b.Chat = append(b.Chat, model.ChatTurn{Role: model.RoleUser, Content: "more"})
	require.NoError(t, st.Save(ctx, "alice", "drama1", b))

	list, err := st.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Turns)
}

func TestSQLite_LoadMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.Load(context.Background(), "alice", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListIsPerUser(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, "alice", "a1", testBundle()))
	require.NoError(t, st.Save(ctx, "alice", "a2", testBundle()))
	require.NoError(t, st.Save(ctx, "bob", "b1", testBundle()))

	list, err := st.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, s := range list {
		assert.Equal(t, "alice", s.User)
	}
}

func TestSQLite_RenameDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, "alice", "a1", testBundle()))
	require.NoError(t, st.Save(ctx, "alice", "a2", testBundle()))

	require.NoError(t, st.Rename(ctx, "alice", "a1", "renamed"))
	_, err := st.Load(ctx, "alice", "renamed")
	require.NoError(t, err)
	_, err = st.Load(ctx, "alice", "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, st.Rename(ctx, "alice", "renamed", "a2"), ErrExists)
	assert.ErrorIs(t, st.Rename(ctx, "alice", "missing", "x"), ErrNotFound)

	require.NoError(t, st.Delete(ctx, "alice", "renamed"))
	assert.ErrorIs(t, st.Delete(ctx, "alice", "renamed"), ErrNotFound)
}

func TestSQLite_NextName(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	name, err := st.NextName(ctx, "alice", "드라마")
	require.NoError(t, err)
	assert.Equal(t, "드라마1", name)

	require.NoError(t, st.Save(ctx, "alice", "드라마1", testBundle()))
	require.NoError(t, st.Save(ctx, "alice", "드라마7", testBundle()))
	require.NoError(t, st.Save(ctx, "bob", "드라마9", testBundle()))

	name, err = st.NextName(ctx, "alice", "드라마")
	require.NoError(t, err)
	assert.Equal(t, "드라마8", name)
}
