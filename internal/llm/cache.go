package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/gate"
	"github.com/sells-group/commentscope/internal/keypool"
)

// Outcome tags how a turn was served.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeReused           Outcome = "reused"
	OutcomeRecreated        Outcome = "recreated"
	OutcomeFallbackUncached Outcome = "fallback_uncached"
)

// Session is the per-session cache state. Handle is the live cache, if any;
// Backup is the context it was built from, kept so an expired cache can be
// rebuilt.
type Session struct {
	Handle *CacheHandle
	Backup *Context
}

// Answer is a generated reply and how it was produced.
type Answer struct {
	Text    string
	Outcome Outcome
}

// CacheManager serves turns from a provider-side context cache, creating,
// extending and rebuilding it as needed.
type CacheManager struct {
	caller *Caller
}

// NewCacheManager builds a CacheManager that shares the caller's dialer,
// rotator, gate and settings.
func NewCacheManager(caller *Caller) *CacheManager {
	return &CacheManager{caller: caller}
}

// Ask answers prompt for s. A non-nil fresh context replaces the session's
// cache; otherwise the existing cache is extended and reused, or rebuilt
// from the backup when it has expired.
func (m *CacheManager) Ask(ctx context.Context, s *Session, fresh *Context, prompt string) (Answer, error) {
	if fresh != nil {
		s.Handle = nil
		s.Backup = fresh
		return m.createAndExecute(ctx, s, prompt, OutcomeCreated)
	}

	if s.Handle != nil {
		backend, err := m.extend(ctx, s.Handle)
		if err == nil {
			return m.execute(ctx, s, backend, prompt, OutcomeReused)
		}
		if errors.Is(err, gate.ErrAdmissionTimeout) || ctx.Err() != nil {
			return Answer{}, err
		}
		zap.L().Info("llm: session cache expired",
			zap.String("cache_id", s.Handle.ID),
			zap.Error(err),
		)
		s.Handle = nil
	}

	if s.Backup == nil {
		return Answer{}, ErrCacheExpired
	}
	return m.createAndExecute(ctx, s, prompt, OutcomeRecreated)
}

// extend dials the credential that owns h, confirms the cache exists and
// pushes its expiry out by the configured TTL.
func (m *CacheManager) extend(ctx context.Context, h *CacheHandle) (Backend, error) {
	backend, err := m.caller.dial(ctx, h.Credential)
	if err != nil {
		return nil, eris.Wrap(err, "llm: dial cache owner")
	}
	err = m.caller.gate.Do(ctx, gate.Permit{}, func(ctx context.Context, _ gate.Permit) error {
		if err := backend.GetCache(ctx, h.ID); err != nil {
			return err
		}
		return backend.ExtendCache(ctx, h.ID, m.caller.settings.CacheTTL)
	})
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func (m *CacheManager) createAndExecute(ctx context.Context, s *Session, prompt string, outcome Outcome) (Answer, error) {
	backend, err := m.create(ctx, s)
	if err != nil {
		return Answer{}, err
	}
	if backend == nil {
		outcome = OutcomeFallbackUncached
	}
	return m.execute(ctx, s, backend, prompt, outcome)
}

// create builds a cache from s.Backup with the rotator's current credential.
// It returns a nil backend when the context is too small to cache or every
// credential is over quota; the turn then runs uncached.
func (m *CacheManager) create(ctx context.Context, s *Session) (Backend, error) {
	keys := m.caller.keys
	attempts := max(keys.Len(), 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		key, ok := keys.Current()
		if !ok {
			return nil, keypool.ErrNoCredentials
		}
		backend, err := m.caller.dial(ctx, key)
		if err != nil {
			return nil, eris.Wrap(err, "llm: dial backend")
		}

		id, err := gate.Run(ctx, m.caller.gate, gate.Permit{}, func(ctx context.Context, _ gate.Permit) (string, error) {
			return backend.CreateCache(ctx, s.Backup.System, s.Backup.Text, m.caller.settings.CacheTTL)
		})
		switch {
		case err == nil:
			s.Handle = &CacheHandle{ID: id, Credential: key}
			zap.L().Info("llm: cache created",
				zap.String("cache_id", id),
				zap.String("key", keypool.Mask(key)),
				zap.Int("context_chars", len(s.Backup.Text)),
			)
			return backend, nil
		case KindOf(err) == KindTooShort:
			zap.L().Info("llm: context too small to cache, running uncached")
			return nil, nil
		case IsQuota(err):
			if attempt < attempts {
				keys.Rotate()
			}
			zap.L().Warn("llm: quota exceeded creating cache",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		default:
			return nil, err
		}
	}

	zap.L().Warn("llm: no credential could create a cache, running uncached")
	return nil, nil
}

// execute runs the turn under one gate slot. Without a backend the prompt is
// sent uncached with the backup context inlined, reusing the same slot.
func (m *CacheManager) execute(ctx context.Context, s *Session, backend Backend, prompt string, outcome Outcome) (Answer, error) {
	text, err := gate.Run(ctx, m.caller.gate, gate.Permit{}, func(ctx context.Context, p gate.Permit) (string, error) {
		if backend != nil {
			return m.caller.generate(ctx, backend, Request{CacheID: s.Handle.ID, Prompt: prompt})
		}
		return m.caller.Generate(ctx, p, "", inline(s.Backup, prompt))
	})
	if err != nil {
		return Answer{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Answer{Outcome: outcome}, ErrNoOutput
	}
	return Answer{Text: text, Outcome: outcome}, nil
}

func inline(c *Context, prompt string) string {
	if c == nil {
		return prompt
	}
	return c.System + "\n\n" + c.Text + "\n\n" + prompt
}
