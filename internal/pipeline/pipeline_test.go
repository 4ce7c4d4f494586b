package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commentscope/internal/catalog"
	"github.com/sells-group/commentscope/internal/collector"
	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/gate"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/session"
	"github.com/sells-group/commentscope/pkg/youtube"
	ytmocks "github.com/sells-group/commentscope/pkg/youtube/mocks"
)

var kst = time.FixedZone("KST", 9*60*60)

type fixture struct {
	interp *mockInterpreter
	yt     *ytmocks.MockClient
	coll   *mockCollector
	asker  *mockAsker
	p      *Pipeline
	sc     *session.Context
}

func newFixture(t *testing.T, cat Matcher) *fixture {
	t.Helper()
	f := &fixture{
		interp: &mockInterpreter{},
		yt:     ytmocks.NewMockClient(t),
		coll:   &mockCollector{},
		asker:  &mockAsker{},
		sc:     session.New("alice", t.TempDir()),
	}
	f.p = New(f.interp, f.yt, f.coll, cat, f.asker, DefaultOptions())
	t.Cleanup(func() {
		f.interp.AssertExpectations(t)
		f.coll.AssertExpectations(t)
		f.asker.AssertExpectations(t)
	})
	return f
}

func testSchema() *model.QuerySchema {
	return &model.QuerySchema{
		Start:    time.Date(2026, 3, 1, 0, 0, 0, 0, kst),
		End:      time.Date(2026, 3, 8, 0, 0, 0, 0, kst),
		Keywords: []string{"drama"},
		Options:  model.DefaultQueryOptions(),
	}
}

// writeComments makes the collector mock append n comments for the first
// video it is given.
func writeComments(n int) func(mock.Arguments) {
	return func(args mock.Arguments) {
		w := args.Get(1).(*corpus.Writer)
		videos := args.Get(2).([]model.VideoRecord)
		recs := make([]model.CommentRecord, n)
		for i := range recs {
			recs[i] = model.CommentRecord{
				VideoID:   videos[0].ID,
				CommentID: "c" + string(rune('a'+i)),
				Author:    "user",
				Text:      "comment " + string(rune('a'+i)),
				LikeCount: int64(i),
			}
		}
		if err := w.Append(recs); err != nil {
			panic(err)
		}
	}
}

func TestFirstTurn_ZeroCandidatesSkipsCollector(t *testing.T) {
	f := newFixture(t, nil)
	f.interp.On("Interpret", mock.Anything, "drama reactions").Return(testSchema(), nil)
	f.yt.On("Search", mock.Anything, mock.MatchedBy(func(r youtube.SearchRequest) bool {
		return r.Query == "#drama" && r.Order == "viewCount"
	})).Return(&youtube.SearchPage{}, nil)

	reply, err := f.p.FirstTurn(context.Background(), f.sc, "drama reactions", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.ReplyNoResults, reply.Status)
	f.coll.AssertNotCalled(t, "CollectAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.asker.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, f.sc.Chat, 2)
	assert.Equal(t, MsgNoResults, f.sc.Chat[1].Content)
}

func TestFirstTurn_Analysis(t *testing.T) {
	f := newFixture(t, nil)
	msg := "drama reactions https://youtu.be/EEEEEEEEEEE"
	f.interp.On("Interpret", mock.Anything, msg).Return(testSchema(), nil)
	f.yt.On("Search", mock.Anything, mock.Anything).
		Return(&youtube.SearchPage{VideoIDs: []string{"AAAAAAAAAAA", "BBBBBBBBBBB", "EEEEEEEEEEE"}}, nil)
	f.yt.On("Videos", mock.Anything, []string{"AAAAAAAAAAA", "BBBBBBBBBBB", "EEEEEEEEEEE"}).
		Return([]youtube.Video{{ID: "AAAAAAAAAAA", Title: "A"}, {ID: "BBBBBBBBBBB", Title: "B"}}, nil)
	f.coll.On("CollectAll", mock.Anything, mock.Anything, mock.Anything, false, mock.Anything).
		Run(writeComments(5)).
		Return(&collector.Result{Written: 5, Completed: 2}, nil)

	var fresh *llm.Context
	f.asker.On("Ask", mock.Anything, &f.sc.Cache, mock.Anything, FirstTurnPrompt(msg)).
		Run(func(args mock.Arguments) { fresh = args.Get(2).(*llm.Context) }).
		Return(llm.Answer{Text: "```html\n    <p>분석</p>\n```", Outcome: llm.OutcomeCreated}, nil)

	var stages []string
	reply, err := f.p.FirstTurn(context.Background(), f.sc, msg, TurnOptions{
		Progress: func(_ float64, stage string) { stages = append(stages, stage) },
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReplyOK, reply.Status)
	assert.Equal(t, "<p>분석</p>", reply.Text)

	require.NotNil(t, fresh)
	assert.Equal(t, DefaultSystemPrompt, fresh.System)
	assert.Contains(t, fresh.Text, "[METRICS]\nTOTAL_COLLECTED_COMMENTS=5\n")
	assert.Contains(t, fresh.Text, "[키워드]: drama")
	assert.Contains(t, fresh.Text, "[기간(KST)]: 2026-03-01T00:00:00+09:00 ~ 2026-03-08T00:00:00+09:00")
	assert.Contains(t, fresh.Text, "[댓글 샘플]:\n[T|♥4] user: comment e")

	assert.Equal(t, testSchema().Keywords, f.sc.Schema.Keywords)
	assert.Len(t, f.sc.Videos, 2)
	assert.NotEmpty(t, f.sc.SampleText)
	assert.Equal(t, 5, f.sc.SampleMeta.TotalRows)
	require.Len(t, f.sc.Chat, 2)
	assert.Equal(t, model.RoleAssistant, f.sc.Chat[1].Role)
	assert.Equal(t, "interpret", stages[0])
	assert.Equal(t, "done", stages[len(stages)-1])
}

func TestFirstTurn_ExplicitOnly(t *testing.T) {
	f := newFixture(t, nil)
	msg := "https://youtu.be/AAAAAAAAAAA https://www.youtube.com/shorts/BBBBBBBBBBB"
	f.interp.On("Interpret", mock.Anything, msg).Return(testSchema(), nil)
	f.yt.On("Videos", mock.Anything, []string{"AAAAAAAAAAA", "BBBBBBBBBBB"}).
		Return([]youtube.Video{{ID: "AAAAAAAAAAA"}, {ID: "BBBBBBBBBBB"}}, nil)
	f.coll.On("CollectAll", mock.Anything, mock.Anything, mock.Anything, false, mock.Anything).
		Return(&collector.Result{}, nil)

	reply, err := f.p.FirstTurn(context.Background(), f.sc, msg, TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.ReplyNoResults, reply.Status)
	f.yt.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestFirstTurn_FirstPartyMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache_token_1.json"), []byte(`[
		{"video_id":"PPPPPPPPPPP","title":"drama ep1","date":"2026-03-02T00:00:00+09:00"},
		{"video_id":"QQQQQQQQQQQ","title":"drama OST","date":"2026-03-03T00:00:00+09:00"}
	]`), 0o644))

	f := newFixture(t, catalog.New(dir))
	f.interp.On("Interpret", mock.Anything, "drama").Return(testSchema(), nil)
	f.yt.On("Search", mock.Anything, mock.Anything).
		Return(&youtube.SearchPage{VideoIDs: []string{"AAAAAAAAAAA"}}, nil)
	f.yt.On("Videos", mock.Anything, []string{"AAAAAAAAAAA", "PPPPPPPPPPP", "QQQQQQQQQQQ"}).
		Return([]youtube.Video{
			{ID: "AAAAAAAAAAA", Title: "fan cam"},
			{ID: "PPPPPPPPPPP", Title: "drama ep1"},
			{ID: "QQQQQQQQQQQ", Title: "drama OST"},
		}, nil)
	f.coll.On("CollectAll", mock.Anything, mock.Anything, mock.MatchedBy(func(v []model.VideoRecord) bool {
		return len(v) == 2 && v[0].ID == "AAAAAAAAAAA" && v[1].ID == "PPPPPPPPPPP"
	}), false, mock.Anything).Return(&collector.Result{}, nil)

	_, err := f.p.FirstTurn(context.Background(), f.sc, "drama", TurnOptions{FirstParty: true})
	require.NoError(t, err)
}

func TestFirstTurn_FirstPartyWithoutCatalog(t *testing.T) {
	f := newFixture(t, catalog.New(t.TempDir()))

	_, err := f.p.FirstTurn(context.Background(), f.sc, "drama", TurnOptions{FirstParty: true})
	assert.ErrorIs(t, err, catalog.ErrEmpty)
	f.interp.AssertNotCalled(t, "Interpret", mock.Anything, mock.Anything)
}

func TestFirstTurn_InterpretErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.interp.On("Interpret", mock.Anything, "busy").Return(nil, gate.ErrAdmissionTimeout).Once()
	f.interp.On("Interpret", mock.Anything, "broken").Return(nil, llm.ErrCredentialsExhausted).Once()

	reply, err := f.p.FirstTurn(context.Background(), f.sc, "busy", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.ReplyBusy, reply.Status)

	_, err = f.p.FirstTurn(context.Background(), f.sc, "broken", TurnOptions{})
	assert.ErrorIs(t, err, llm.ErrCredentialsExhausted)
}

func TestFirstTurn_NewFirstTurnDiscardsHandle(t *testing.T) {
	f := newFixture(t, nil)
	f.sc.Cache = llm.Session{Handle: &llm.CacheHandle{ID: "old", Credential: "k1"}}
	f.interp.On("Interpret", mock.Anything, "drama").Return(testSchema(), nil)
	f.yt.On("Search", mock.Anything, mock.Anything).Return(&youtube.SearchPage{}, nil)

	_, err := f.p.FirstTurn(context.Background(), f.sc, "drama", TurnOptions{})
	require.NoError(t, err)
	assert.Nil(t, f.sc.Cache.Handle)
}

func TestFollowUp(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.p.FollowUp(context.Background(), f.sc, "why?")
	assert.ErrorIs(t, err, ErrNoAnalysis)

	f.sc.Schema = testSchema()
	for i := range 12 {
		f.sc.AddTurn(model.RoleUser, "old"+string(rune('a'+i)), time.Now())
	}

	var payload string
	f.asker.On("Ask", mock.Anything, &f.sc.Cache, (*llm.Context)(nil), mock.Anything).
		Run(func(args mock.Arguments) { payload = args.String(3) }).
		Return(llm.Answer{Text: "answer", Outcome: llm.OutcomeReused}, nil).Once()

	reply, err := f.p.FollowUp(context.Background(), f.sc, "why?")
	require.NoError(t, err)
	assert.Equal(t, model.Reply{Text: "answer", Status: model.ReplyOK}, reply)
	assert.True(t, strings.HasPrefix(payload, FollowupInstruction))
	assert.Contains(t, payload, "[현재 질문]: why?")
	assert.NotContains(t, payload, "[이전 Q]: oldb")
	assert.Contains(t, payload, "[이전 Q]: oldc")
	assert.Len(t, f.sc.Chat, 14)
}

func TestFollowUp_Expired(t *testing.T) {
	f := newFixture(t, nil)
	f.sc.Schema = testSchema()
	f.asker.On("Ask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(llm.Answer{}, llm.ErrCacheExpired)

	reply, err := f.p.FollowUp(context.Background(), f.sc, "again")
	require.NoError(t, err)
	assert.Equal(t, model.ReplyExpired, reply.Status)
}

func TestHandle_Routes(t *testing.T) {
	f := newFixture(t, nil)
	f.sc.Schema = testSchema()
	f.asker.On("Ask", mock.Anything, mock.Anything, (*llm.Context)(nil), mock.Anything).
		Return(llm.Answer{Text: "ok"}, nil)

	reply, err := f.p.Handle(context.Background(), f.sc, "more", TurnOptions{})
	require.NoError(t, err)
	assert.True(t, reply.OK())
	f.interp.AssertNotCalled(t, "Interpret", mock.Anything, mock.Anything)
}

func TestHashtag(t *testing.T) {
	assert.Equal(t, "#drama", Hashtag(" drama "))
	assert.Equal(t, "#drama", Hashtag("#drama"))
	assert.Empty(t, Hashtag("  "))
}
