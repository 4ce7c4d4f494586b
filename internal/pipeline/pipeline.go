// Package pipeline runs analysis turns: the first turn collects and samples
// comments and primes the LLM cache; follow-ups reuse it.
package pipeline

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/catalog"
	"github.com/sells-group/commentscope/internal/collector"
	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/interpret"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/sampler"
	"github.com/sells-group/commentscope/internal/session"
	"github.com/sells-group/commentscope/internal/video"
	"github.com/sells-group/commentscope/pkg/youtube"
)

// ErrNoAnalysis is returned by FollowUp when the session has no first turn.
var ErrNoAnalysis = errors.New("pipeline: no previous analysis in this session")

// MsgNoResults is the reply when nothing could be collected.
const MsgNoResults = "지정 조건에서 댓글을 찾을 수 없습니다. 다른 조건으로 시도해 보세요."

// Interpreter extracts a QuerySchema from a first-turn message.
type Interpreter interface {
	Interpret(ctx context.Context, query string) (*model.QuerySchema, error)
}

// Collector gathers comments for a set of videos into a corpus.
type Collector interface {
	CollectAll(ctx context.Context, w *corpus.Writer, videos []model.VideoRecord, includeReplies bool, progress collector.ProgressFunc) (*collector.Result, error)
}

// Asker answers a prompt against the session cache.
type Asker interface {
	Ask(ctx context.Context, s *llm.Session, fresh *llm.Context, prompt string) (llm.Answer, error)
}

// Matcher resolves first-party video ids by keyword.
type Matcher interface {
	Files() ([]string, error)
	Match(keyword string, start, end time.Time) ([]string, error)
}

var _ Matcher = (*catalog.Catalog)(nil)

// ProgressFunc receives the overall completion fraction and a stage label.
type ProgressFunc func(fraction float64, stage string)

// Options tune the pipeline.
type Options struct {
	SearchMax    int
	SystemPrompt string
	Exclude      *regexp.Regexp
	Sample       sampler.Options
	HistoryTurns int
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		SearchMax:    60,
		SystemPrompt: DefaultSystemPrompt,
		Exclude:      regexp.MustCompile(`(?i)\bOST\b`),
		Sample:       sampler.DefaultOptions(),
		HistoryTurns: 10,
	}
}

// TurnOptions are per-request switches.
type TurnOptions struct {
	// FirstParty adds catalog matches and drops excluded titles.
	FirstParty bool
	Progress   ProgressFunc
}

// Pipeline wires the stages of a turn together.
type Pipeline struct {
	interp    Interpreter
	videos    youtube.Client
	collector Collector
	catalog   Matcher
	llm       Asker
	opts      Options
	now       func() time.Time
}

// New creates a Pipeline. catalog may be nil when first-party mode is not
// offered.
func New(interp Interpreter, videos youtube.Client, coll Collector, cat Matcher, asker Asker, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.SearchMax <= 0 {
		opts.SearchMax = def.SearchMax
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = def.SystemPrompt
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = def.HistoryTurns
	}
	if opts.Sample == (sampler.Options{}) {
		opts.Sample = def.Sample
	}
	return &Pipeline{
		interp:    interp,
		videos:    videos,
		collector: coll,
		catalog:   cat,
		llm:       asker,
		opts:      opts,
		now:       time.Now,
	}
}

// Handle routes message to FirstTurn or FollowUp depending on whether the
// session already holds an analysis.
func (p *Pipeline) Handle(ctx context.Context, sc *session.Context, message string, opts TurnOptions) (model.Reply, error) {
	if sc.HasAnalysis() {
		return p.FollowUp(ctx, sc, message)
	}
	return p.FirstTurn(ctx, sc, message, opts)
}

// FirstTurn runs a full analysis for message. Zero candidates or zero
// comments produce a no_results reply; credential exhaustion and hard
// provider errors are returned.
func (p *Pipeline) FirstTurn(ctx context.Context, sc *session.Context, message string, opts TurnOptions) (model.Reply, error) {
	log := zap.L().With(zap.String("session", sc.ID))
	report := func(f float64, stage string) {
		if opts.Progress != nil {
			opts.Progress(f, stage)
		}
	}
	sc.AddTurn(model.RoleUser, message, p.now())

	explicit := interpret.ExtractVideoIDs(message)
	onlyExplicit := len(explicit) > 0 && interpret.StripURLs(message) == ""

	if opts.FirstParty {
		if p.catalog == nil {
			return model.Reply{}, catalog.ErrEmpty
		}
		if _, err := p.catalog.Files(); err != nil {
			return model.Reply{}, err
		}
	}

	report(0.05, "interpret")
	schema, err := track(log, "interpret", func() (*model.QuerySchema, error) {
		return p.interp.Interpret(ctx, message)
	})
	if err != nil {
		return p.reply(sc, llm.Answer{}, err)
	}
	sc.ResetAnalysis()
	sc.Schema = schema

	report(0.10, "search")
	ids, err := track(log, "resolve", func() ([]string, error) {
		return p.resolve(ctx, schema, explicit, onlyExplicit, opts.FirstParty)
	})
	if err != nil {
		return model.Reply{}, err
	}
	if len(ids) == 0 {
		log.Info("pipeline: no candidate videos")
		return p.noResults(sc), nil
	}

	report(0.40, "statistics")
	videos, err := track(log, "statistics", func() ([]model.VideoRecord, error) {
		return video.FetchStats(ctx, p.videos, ids)
	})
	if err != nil {
		return model.Reply{}, eris.Wrap(err, "pipeline: fetch statistics")
	}
	if opts.FirstParty && p.opts.Exclude != nil {
		videos = exclude(videos, p.opts.Exclude)
	}
	sc.Videos = videos
	if len(videos) == 0 {
		return p.noResults(sc), nil
	}

	w, err := corpus.Create(sc.CorpusPath())
	if err != nil {
		return model.Reply{}, eris.Wrap(err, "pipeline: create corpus")
	}
	res, err := track(log, "collect", func() (*collector.Result, error) {
		return p.collector.CollectAll(ctx, w, videos, schema.Options.IncludeReplies, func(done, total int) {
			report(0.40+0.50*float64(done)/float64(max(total, 1)), "collect")
		})
	})
	if err != nil {
		return model.Reply{}, eris.Wrap(err, "pipeline: collect comments")
	}
	if res.Written == 0 {
		return p.noResults(sc), nil
	}

	report(0.90, "analyze")
	sample := sampler.SampleFile(sc.CorpusPath(), p.opts.Sample)
	sc.SampleText, sc.SampleMeta = sample.Text, sample.Meta

	fresh := &llm.Context{System: p.opts.SystemPrompt, Text: BuildContext(schema, sample)}
	ans, err := track(log, "analyze", func() (llm.Answer, error) {
		return p.llm.Ask(ctx, &sc.Cache, fresh, FirstTurnPrompt(message))
	})
	report(1, "done")
	log.Info("pipeline: first turn complete",
		zap.Int("videos", len(videos)),
		zap.Int("comments", res.Written),
		zap.Int("sample_lines", sample.Lines),
		zap.String("cache", string(ans.Outcome)),
	)
	return p.reply(sc, ans, err)
}

// FollowUp answers message from the session's cached sample.
func (p *Pipeline) FollowUp(ctx context.Context, sc *session.Context, message string) (model.Reply, error) {
	if !sc.HasAnalysis() {
		return model.Reply{}, ErrNoAnalysis
	}
	payload := FollowupPrompt(sc.Recent(p.opts.HistoryTurns), message, sc.Schema)
	sc.AddTurn(model.RoleUser, message, p.now())

	ans, err := track(zap.L().With(zap.String("session", sc.ID)), "followup", func() (llm.Answer, error) {
		return p.llm.Ask(ctx, &sc.Cache, nil, payload)
	})
	return p.reply(sc, ans, err)
}

// resolve gathers candidate ids in first-seen order.
func (p *Pipeline) resolve(ctx context.Context, schema *model.QuerySchema, explicit []string, onlyExplicit, firstParty bool) ([]string, error) {
	if onlyExplicit {
		return dedupe(explicit), nil
	}

	var ids []string
	for _, kw := range schema.Keywords {
		q := Hashtag(kw)
		if q == "" {
			continue
		}
		found, err := video.SearchIDs(ctx, p.videos, q, schema.Start.UTC(), schema.End.UTC(), p.opts.SearchMax)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: search")
		}
		ids = append(ids, found...)
	}
	ids = append(ids, explicit...)

	if firstParty {
		for _, kw := range schema.Keywords {
			found, err := p.catalog.Match(kw, schema.Start, schema.End)
			if err != nil {
				return nil, eris.Wrap(err, "pipeline: match catalog")
			}
			ids = append(ids, found...)
		}
	}
	return dedupe(ids), nil
}

// reply converts an Ask result, tidies it and records it in the transcript.
func (p *Pipeline) reply(sc *session.Context, ans llm.Answer, err error) (model.Reply, error) {
	reply, err := llm.ToReply(ans, err)
	if err != nil {
		return model.Reply{}, err
	}
	if reply.OK() {
		reply.Text = Tidy(reply.Text)
	}
	sc.AddTurn(model.RoleAssistant, reply.Text, p.now())
	return reply, nil
}

func (p *Pipeline) noResults(sc *session.Context) model.Reply {
	reply := model.Reply{Text: MsgNoResults, Status: model.ReplyNoResults}
	sc.AddTurn(model.RoleAssistant, reply.Text, p.now())
	return reply
}

// Hashtag prefixes a search keyword with '#'.
func Hashtag(keyword string) string {
	kw := strings.TrimSpace(keyword)
	if kw == "" || strings.HasPrefix(kw, "#") {
		return kw
	}
	return "#" + kw
}

func exclude(videos []model.VideoRecord, re *regexp.Regexp) []model.VideoRecord {
	out := make([]model.VideoRecord, 0, len(videos))
	for _, v := range videos {
		if re.MatchString(v.Title) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// track runs one stage and logs its duration.
func track[T any](log *zap.Logger, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	ms := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("pipeline: stage failed", zap.String("stage", stage), zap.Int64("duration_ms", ms), zap.Error(err))
		return out, err
	}
	log.Info("pipeline: stage complete", zap.String("stage", stage), zap.Int64("duration_ms", ms))
	return out, nil
}
