// Package collector pages comment threads and replies for candidate videos.
package collector

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/resilience"
	"github.com/sells-group/commentscope/internal/video"
	"github.com/sells-group/commentscope/pkg/youtube"
)

// Fetcher pages one video's comments through a single client. A Fetcher is
// owned by one task and is not safe for concurrent use.
type Fetcher struct {
	client  youtube.Client
	limiter *rate.Limiter
	retry   resilience.Policy
}

// NewFetcher builds a Fetcher that spaces page requests by interval.
// A non-positive interval disables pacing.
func NewFetcher(client youtube.Client, interval time.Duration, retry resilience.Policy) *Fetcher {
	every := rate.Inf
	if interval > 0 {
		every = rate.Every(interval)
	}
	retry.Retryable = retryablePage
	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(every, 1),
		retry:   retry,
	}
}

// retryablePage retries network-level failures and 5xx responses. Quota
// errors are left to the rotating client.
func retryablePage(err error) bool {
	if errors.Is(err, video.ErrCredentialsExhausted) {
		return false
	}
	if code := youtube.StatusCode(err); code != 0 {
		return resilience.IsServerStatus(code)
	}
	return resilience.IsTransient(err)
}

func page[T any](ctx context.Context, f *Fetcher, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		var zero T
		return zero, eris.Wrap(err, "collector: wait for page slot")
	}
	p := f.retry
	p.OnRetry = resilience.LogRetries(op)
	return resilience.Retry(ctx, p, fn)
}

// Replies pages the replies under parentID. It stops at limit (limit <= 0 means
// unbounded), when no next page is reported, or on the first terminal error,
// which is logged and treated as the end of the thread.
func (f *Fetcher) Replies(ctx context.Context, parentID string, v model.VideoRecord, limit int) []model.CommentRecord {
	var out []model.CommentRecord
	token := ""
	for limit <= 0 || len(out) < limit {
		resp, err := page(ctx, f, "comments.list", func(ctx context.Context) (*youtube.CommentPage, error) {
			return f.client.Replies(ctx, parentID, token)
		})
		if err != nil {
			zap.L().Debug("collector: reply paging stopped",
				zap.String("video_id", v.ID),
				zap.String("parent_id", parentID),
				zap.Error(err),
			)
			break
		}
		for _, c := range resp.Comments {
			out = append(out, record(v, c, parentID))
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Threads pages top-level threads for v. Each thread contributes its
// top-level record followed by its replies, and replies are fetched with the
// budget left under limit so the limit holds across both. A terminal page error
// ends paging; the records gathered so far are returned with the error.
func (f *Fetcher) Threads(ctx context.Context, v model.VideoRecord, limit int, includeReplies bool) ([]model.CommentRecord, error) {
	var out []model.CommentRecord
	token := ""
	var pageErr error

paging:
	for limit <= 0 || len(out) < limit {
		resp, err := page(ctx, f, "commentThreads.list", func(ctx context.Context) (*youtube.ThreadPage, error) {
			return f.client.CommentThreads(ctx, v.ID, token)
		})
		if err != nil {
			pageErr = eris.Wrapf(err, "collector: threads for %s", v.ID)
			break
		}

		for _, th := range resp.Threads {
			out = append(out, record(v, th.TopLevel, ""))
			if !includeReplies || th.TotalReplyCount <= 0 {
				continue
			}
			left := 0
			if limit > 0 {
				left = limit - len(out)
				if left <= 0 {
					break paging
				}
			}
			out = append(out, f.Replies(ctx, th.TopLevel.ID, v, left)...)
		}

		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, pageErr
}

func record(v model.VideoRecord, c youtube.Comment, parentID string) model.CommentRecord {
	return model.CommentRecord{
		VideoID:       v.ID,
		VideoTitle:    v.Title,
		DurationClass: v.DurationClass,
		CommentID:     c.ID,
		ParentID:      parentID,
		IsReply:       parentID != "",
		Author:        c.Author,
		Text:          c.Text,
		PublishedAt:   c.PublishedAt,
		LikeCount:     c.LikeCount,
	}
}
