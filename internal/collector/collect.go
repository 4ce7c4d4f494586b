package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/resilience"
	"github.com/sells-group/commentscope/pkg/youtube"
)

// Config bounds a collection run.
type Config struct {
	Workers      int
	MaxPerVideo  int
	MaxTotal     int
	PageInterval time.Duration
	Retry        resilience.Policy
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		Workers:      8,
		MaxPerVideo:  4000,
		MaxTotal:     120000,
		PageInterval: 200 * time.Millisecond,
		Retry:        resilience.DefaultPolicy(),
	}
}

// ClientFunc returns a fresh client for one task. Clients are never shared
// between tasks so credential rotation in one task cannot race another.
type ClientFunc func() youtube.Client

// ProgressFunc receives the number of finished tasks out of total. Calls are
// serialized and done never decreases.
type ProgressFunc func(done, total int)

// Failure records a video whose collection ended with an error.
type Failure struct {
	VideoID string
	Err     error
}

// Result summarizes a CollectAll run.
type Result struct {
	Path      string
	Written   int
	Completed int
	Skipped   int
	Discarded int
	Failures  []Failure
}

// Collector fans comment collection out across videos.
type Collector struct {
	cfg       Config
	newClient ClientFunc
}

// New builds a Collector. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, newClient ClientFunc) *Collector {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxPerVideo <= 0 {
		cfg.MaxPerVideo = def.MaxPerVideo
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = def.MaxTotal
	}
	return &Collector{cfg: cfg, newClient: newClient}
}

type taskResult struct {
	video   model.VideoRecord
	rows    []model.CommentRecord
	err     error
	skipped bool
}

// CollectAll runs one task per video with at most cfg.Workers in flight and
// streams every finished task into w. Once MaxTotal records are written no
// further completions are accepted and tasks that have not started are
// skipped; tasks already running finish and their output is discarded.
func (c *Collector) CollectAll(ctx context.Context, w *corpus.Writer, videos []model.VideoRecord, includeReplies bool, progress ProgressFunc) (*Result, error) {
	res := &Result{Path: w.Path()}
	total := len(videos)
	if total == 0 {
		return res, nil
	}

	results := make(chan taskResult, total)
	var stop atomic.Bool

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	go func() {
		for _, v := range videos {
			g.Go(func() error {
				if stop.Load() || ctx.Err() != nil {
					results <- taskResult{video: v, skipped: true}
					return nil
				}
				f := NewFetcher(c.newClient(), c.cfg.PageInterval, c.cfg.Retry)
				rows, err := f.Threads(ctx, v, c.cfg.MaxPerVideo, includeReplies)
				results <- taskResult{video: v, rows: rows, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var writeErr error
	done := 0
	for r := range results {
		done++
		switch {
		case r.skipped:
			res.Skipped++
		case stop.Load():
			res.Discarded++
		default:
			res.Completed++
			if r.err != nil {
				res.Failures = append(res.Failures, Failure{VideoID: r.video.ID, Err: r.err})
				zap.L().Warn("collector: video collection failed",
					zap.String("video_id", r.video.ID),
					zap.Int("rows", len(r.rows)),
					zap.Error(r.err),
				)
			}
			if err := w.Append(r.rows); err != nil {
				writeErr = err
				stop.Store(true)
				break
			}
			res.Written += len(r.rows)
			if res.Written >= c.cfg.MaxTotal {
				zap.L().Info("collector: global cap reached",
					zap.Int("written", res.Written),
					zap.Int("max_total", c.cfg.MaxTotal),
				)
				stop.Store(true)
			}
		}
		if progress != nil {
			progress(done, total)
		}
	}

	zap.L().Info("collector: collection finished",
		zap.Int("videos", total),
		zap.Int("completed", res.Completed),
		zap.Int("skipped", res.Skipped),
		zap.Int("discarded", res.Discarded),
		zap.Int("failures", len(res.Failures)),
		zap.Int("written", res.Written),
	)

	if writeErr != nil {
		return res, eris.Wrap(writeErr, "collector: append comments")
	}
	return res, nil
}
