package main

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/catalog"
	"github.com/sells-group/commentscope/internal/collector"
	"github.com/sells-group/commentscope/internal/config"
	"github.com/sells-group/commentscope/internal/gate"
	"github.com/sells-group/commentscope/internal/interpret"
	"github.com/sells-group/commentscope/internal/keypool"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/pipeline"
	"github.com/sells-group/commentscope/internal/resilience"
	"github.com/sells-group/commentscope/internal/sampler"
	"github.com/sells-group/commentscope/internal/session"
	"github.com/sells-group/commentscope/internal/video"
	"github.com/sells-group/commentscope/pkg/anthropic"
	"github.com/sells-group/commentscope/pkg/gemini"
	"github.com/sells-group/commentscope/pkg/youtube"
)

// appEnv holds the store and pipeline needed by the analyze, ask and serve
// commands.
type appEnv struct {
	Store    session.Store
	Pipeline *pipeline.Pipeline
	WorkDir  string
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured session store.
func initStore(ctx context.Context) (session.Store, error) {
	var (
		st  session.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = session.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = session.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates config for mode, opens the store and builds the
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &appEnv{Store: st, Pipeline: p, WorkDir: cfg.Session.WorkDir}, nil
}

// buildPipeline wires the video clients, the LLM caller and cache manager,
// the interpreter and the catalog into a Pipeline.
func buildPipeline(c *config.Config) (*pipeline.Pipeline, error) {
	var ytOpts []youtube.Option
	if c.YouTube.Endpoint != "" {
		ytOpts = append(ytOpts, youtube.WithEndpoint(c.YouTube.Endpoint))
	}
	factory := youtube.NewFactory(ytOpts...)
	ytKeys := keypool.New(c.YouTube.Keys, keypool.WithObserver(func(idx int, key string) {
		zap.L().Info("youtube key rotated", zap.Int("index", idx), zap.String("key", keypool.Mask(key)))
	}))
	videos := video.New(ytKeys, factory)

	collCfg := collector.Config{
		Workers:      c.Collector.Workers,
		MaxPerVideo:  c.Collector.MaxPerVideo,
		MaxTotal:     c.Collector.MaxTotal,
		PageInterval: c.Collector.PageInterval,
		Retry:        resilience.DefaultPolicy(),
	}
	if c.Collector.RetryAttempts > 0 {
		collCfg.Retry.Attempts = c.Collector.RetryAttempts
	}
	coll := collector.New(collCfg, func() youtube.Client {
		return video.New(ytKeys.Clone(), factory)
	})

	settings := llm.DefaultSettings()
	settings.Model = c.LLM.Model
	if c.LLM.Temperature > 0 {
		settings.Temperature = c.LLM.Temperature
	}
	if c.LLM.MaxOutputTokens > 0 {
		settings.MaxOutputTokens = c.LLM.MaxOutputTokens
	}
	if c.LLM.Timeout > 0 {
		settings.Timeout = c.LLM.Timeout
	}
	if c.LLM.CacheTTL > 0 {
		settings.CacheTTL = c.LLM.CacheTTL
	}

	var dial llm.Dialer
	switch c.LLM.Provider {
	case config.ProviderAnthropic:
		var opts []anthropic.Option
		if c.LLM.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(c.LLM.BaseURL))
		}
		dial = llm.AnthropicDialer(settings, opts...)
	default:
		var opts []gemini.Option
		if c.LLM.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.LLM.BaseURL))
		}
		dial = llm.GeminiDialer(settings, opts...)
	}
	llmKeys := keypool.New(c.LLM.Keys, keypool.WithObserver(func(idx int, key string) {
		zap.L().Info("llm key rotated", zap.Int("index", idx), zap.String("key", keypool.Mask(key)))
	}))
	caller := llm.NewCaller(dial, llmKeys, gate.New(c.Gate.Capacity, c.Gate.Wait), settings)

	system, err := pipeline.LoadSystemPrompt(c.LLM.SystemPromptFile)
	if err != nil {
		return nil, err
	}
	opts := pipeline.DefaultOptions()
	opts.SystemPrompt = system
	opts.SearchMax = c.Search.MaxResults
	opts.HistoryTurns = c.Session.HistoryTurns
	opts.Sample = sampler.Options{
		MaxCharsPerComment: c.Sampler.MaxCharsPerComment,
		MaxTotalChars:      c.Sampler.MaxTotalChars,
		TopN:               c.Sampler.TopN,
		RandomN:            c.Sampler.RandomN,
		DedupKey:           c.Sampler.DedupKey,
		Seed:               c.Sampler.Seed,
	}
	if c.Search.Exclude != "" {
		re, err := regexp.Compile(c.Search.Exclude)
		if err != nil {
			return nil, eris.Wrap(err, "compile search.exclude")
		}
		opts.Exclude = re
	}

	var cat pipeline.Matcher
	if c.Catalog.Dir != "" {
		cat = catalog.New(c.Catalog.Dir)
	}

	interp := interpret.New(caller, interpret.LoadLocation(c.Session.Timezone))
	return pipeline.New(interp, videos, coll, cat, llm.NewCacheManager(caller), opts), nil
}
