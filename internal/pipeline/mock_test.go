package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/commentscope/internal/collector"
	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
)

// --- Interpreter Mock ---

type mockInterpreter struct {
	mock.Mock
}

func (m *mockInterpreter) Interpret(ctx context.Context, query string) (*model.QuerySchema, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QuerySchema), args.Error(1)
}

// --- Collector Mock ---

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) CollectAll(ctx context.Context, w *corpus.Writer, videos []model.VideoRecord, includeReplies bool, progress collector.ProgressFunc) (*collector.Result, error) {
	args := m.Called(ctx, w, videos, includeReplies, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collector.Result), args.Error(1)
}

// --- Asker Mock ---

type mockAsker struct {
	mock.Mock
}

func (m *mockAsker) Ask(ctx context.Context, s *llm.Session, fresh *llm.Context, prompt string) (llm.Answer, error) {
	args := m.Called(ctx, s, fresh, prompt)
	return args.Get(0).(llm.Answer), args.Error(1)
}
