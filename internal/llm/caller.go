package llm

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/gate"
	"github.com/sells-group/commentscope/internal/keypool"
)

// Caller makes one-shot uncached calls, rotating credentials on quota
// errors. The rotator is shared with the cache manager so rotation carries
// across turns.
type Caller struct {
	dial     Dialer
	keys     *keypool.Rotator
	gate     *gate.Gate
	settings Settings
}

// NewCaller builds a Caller.
func NewCaller(dial Dialer, keys *keypool.Rotator, g *gate.Gate, s Settings) *Caller {
	return &Caller{dial: dial, keys: keys, gate: g, settings: s}
}

// Keys returns the shared rotator.
func (c *Caller) Keys() *keypool.Rotator {
	return c.keys
}

// Generate sends system and prompt without a cache. p is the caller's gate
// permit; a held permit is reused, otherwise one slot is taken per attempt.
func (c *Caller) Generate(ctx context.Context, p gate.Permit, system, prompt string) (string, error) {
	attempts := max(c.keys.Len(), 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		key, ok := c.keys.Current()
		if !ok {
			return "", keypool.ErrNoCredentials
		}
		backend, err := c.dial(ctx, key)
		if err != nil {
			return "", eris.Wrap(err, "llm: dial backend")
		}

		text, err := gate.Run(ctx, c.gate, p, func(ctx context.Context, _ gate.Permit) (string, error) {
			return c.generate(ctx, backend, Request{System: system, Prompt: prompt})
		})
		if err == nil {
			return text, nil
		}
		if !IsQuota(err) {
			return "", err
		}

		lastErr = err
		if attempt < attempts {
			c.keys.Rotate()
			zap.L().Warn("llm: quota exceeded, rotating credential",
				zap.Int("attempt", attempt),
				zap.Int("key_index", c.keys.Index()),
			)
		}
	}
	return "", fmt.Errorf("%w: %w", ErrCredentialsExhausted, lastErr)
}

// generate applies the request timeout.
func (c *Caller) generate(ctx context.Context, b Backend, req Request) (string, error) {
	if c.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.Timeout)
		defer cancel()
	}
	return b.Generate(ctx, req)
}
