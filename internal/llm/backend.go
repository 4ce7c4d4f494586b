// Package llm drives analysis generation against a provider-side context
// cache, with credential rotation and an uncached fallback.
package llm

import (
	"context"
	"time"
)

// Request is one generation call. With CacheID set the system prompt and
// context come from the cache.
type Request struct {
	System  string
	Prompt  string
	CacheID string
}

// Backend is an LLM provider bound to one credential.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	CreateCache(ctx context.Context, system, content string, ttl time.Duration) (string, error)
	GetCache(ctx context.Context, id string) error
	ExtendCache(ctx context.Context, id string, ttl time.Duration) error
}

// Dialer returns a Backend bound to credential.
type Dialer func(ctx context.Context, credential string) (Backend, error)

// Settings are the generation parameters shared by every backend.
type Settings struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
	CacheTTL        time.Duration
}

// DefaultSettings returns the production generation parameters.
func DefaultSettings() Settings {
	return Settings{
		Model:           "gemini-2.5-flash",
		Temperature:     0.2,
		MaxOutputTokens: 8192,
		Timeout:         120 * time.Second,
		CacheTTL:        20 * time.Minute,
	}
}

// CacheHandle identifies a remote cache and the credential that owns it.
// Only the owning credential can read or extend the cache.
type CacheHandle struct {
	ID         string `json:"id"`
	Credential string `json:"-"`
}

// Context is the large, cacheable part of a first-turn prompt.
type Context struct {
	System string
	Text   string
}
