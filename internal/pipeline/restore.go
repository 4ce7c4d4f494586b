package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/sampler"
	"github.com/sells-group/commentscope/internal/session"
)

// Save persists sc under its existing name, or under the next free
// "<keyword><n>" name on first save. It returns the name used.
func Save(ctx context.Context, st session.Store, sc *session.Context) (string, error) {
	b, err := sc.Bundle()
	if err != nil {
		return "", err
	}
	name := sc.Name
	if name == "" {
		name, err = st.NextName(ctx, sc.User, session.BaseName(sc.Schema.PrimaryKeyword()))
		if err != nil {
			return "", eris.Wrap(err, "pipeline: next session name")
		}
	}
	if err := st.Save(ctx, sc.User, name, b); err != nil {
		return "", err
	}
	sc.Name = name
	zap.L().Info("pipeline: session saved",
		zap.String("user", sc.User),
		zap.String("name", name),
		zap.Int("turns", len(b.Chat)),
	)
	return name, nil
}

// Restore rebuilds a runtime context from a saved bundle. The corpus is
// written back to disk and re-sampled, which reproduces the original sample
// and gives follow-ups a backup to rebuild the LLM cache from.
func (p *Pipeline) Restore(user, name, baseDir string, b *model.SessionBundle) (*session.Context, error) {
	if b == nil || b.Schema == nil {
		return nil, eris.New("pipeline: bundle has no analysis")
	}
	sc := session.New(user, baseDir)
	sc.Name = name
	sc.Schema = b.Schema
	sc.Chat = append(sc.Chat, b.Chat...)

	if err := corpus.WriteFile(sc.CorpusPath(), b.CommentsCSV); err != nil {
		return nil, eris.Wrap(err, "pipeline: restore corpus")
	}
	if len(b.VideosCSV) > 0 {
		videos, err := corpus.DecodeVideos(b.VideosCSV)
		if err != nil && !errors.Is(err, corpus.ErrEmpty) {
			return nil, eris.Wrap(err, "pipeline: restore videos")
		}
		sc.Videos = videos
	}

	sample := sampler.SampleFile(sc.CorpusPath(), p.opts.Sample)
	if sample.Empty() {
		sc.SampleText = b.SampleText
		zap.L().Warn("pipeline: restored corpus could not be sampled, using saved sample",
			zap.String("name", name),
			zap.String("reason", sample.Meta.Error),
		)
	} else {
		sc.SampleText, sc.SampleMeta = sample.Text, sample.Meta
	}
	sample.Text = sc.SampleText
	sc.Cache = llm.Session{Backup: &llm.Context{
		System: p.opts.SystemPrompt,
		Text:   BuildContext(sc.Schema, sample),
	}}
	return sc, nil
}
