// Package video rotates YouTube API credentials on quota exhaustion.
package video

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/keypool"
	"github.com/sells-group/commentscope/pkg/youtube"
)

// ErrCredentialsExhausted is returned when every credential in the pool hit
// its quota during a single operation.
var ErrCredentialsExhausted = errors.New("video: all credentials exhausted")

// RotatingClient is a youtube.Client that swaps to the next credential and
// rebuilds the SDK client whenever a call is rejected for quota.
type RotatingClient struct {
	keys    *keypool.Rotator
	factory youtube.Factory

	mu     sync.Mutex
	client youtube.Client
	key    string
}

var _ youtube.Client = (*RotatingClient)(nil)

// New builds a RotatingClient. Each collector task should own its rotator.
func New(keys *keypool.Rotator, factory youtube.Factory) *RotatingClient {
	return &RotatingClient{keys: keys, factory: factory}
}

// Keys returns the rotator backing this client.
func (c *RotatingClient) Keys() *keypool.Rotator {
	return c.keys
}

// current returns the SDK client for the selected credential, building it
// on first use or after a rotation.
func (c *RotatingClient) current(ctx context.Context) (youtube.Client, error) {
	key, ok := c.keys.Current()
	if !ok {
		return nil, keypool.ErrNoCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.key == key {
		return c.client, nil
	}
	client, err := c.factory(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "video: build client")
	}
	c.client, c.key = client, key
	return client, nil
}

// Execute runs fn against the current client, rotating on quota errors.
// At most len(pool)+1 attempts are made with a rotation between each, so a
// pool of N credentials rotates N times before giving up. Any other error is
// returned as is.
func Execute[T any](ctx context.Context, c *RotatingClient, fn func(ctx context.Context, client youtube.Client) (T, error)) (T, error) {
	var zero T
	attempts := c.keys.Len() + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := c.current(ctx)
		if err != nil {
			return zero, err
		}

		val, err := fn(ctx, client)
		if err == nil {
			return val, nil
		}
		if !youtube.IsQuotaError(err) {
			return zero, err
		}

		lastErr = err
		if attempt == attempts {
			break
		}
		c.keys.Rotate()
		next, _ := c.keys.Current()
		zap.L().Warn("video: quota exceeded, rotating credential",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Int("status", youtube.StatusCode(err)),
			zap.String("next_key", keypool.Mask(next)),
		)
	}

	return zero, fmt.Errorf("%w: %w", ErrCredentialsExhausted, lastErr)
}

// Search implements youtube.Client.
func (c *RotatingClient) Search(ctx context.Context, req youtube.SearchRequest) (*youtube.SearchPage, error) {
	return Execute(ctx, c, func(ctx context.Context, yc youtube.Client) (*youtube.SearchPage, error) {
		return yc.Search(ctx, req)
	})
}

// Videos implements youtube.Client.
func (c *RotatingClient) Videos(ctx context.Context, ids []string) ([]youtube.Video, error) {
	return Execute(ctx, c, func(ctx context.Context, yc youtube.Client) ([]youtube.Video, error) {
		return yc.Videos(ctx, ids)
	})
}

// CommentThreads implements youtube.Client.
func (c *RotatingClient) CommentThreads(ctx context.Context, videoID, pageToken string) (*youtube.ThreadPage, error) {
	return Execute(ctx, c, func(ctx context.Context, yc youtube.Client) (*youtube.ThreadPage, error) {
		return yc.CommentThreads(ctx, videoID, pageToken)
	})
}

// Replies implements youtube.Client.
func (c *RotatingClient) Replies(ctx context.Context, parentID, pageToken string) (*youtube.CommentPage, error) {
	return Execute(ctx, c, func(ctx context.Context, yc youtube.Client) (*youtube.CommentPage, error) {
		return yc.Replies(ctx, parentID, pageToken)
	})
}
