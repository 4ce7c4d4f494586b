package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/commentscope/pkg/anthropic"
)

// MinCacheChars is the smallest context the Anthropic backend will try to
// cache. Shorter prefixes fall under the provider's cacheable minimum.
const MinCacheChars = 4096

// AnthropicDialer returns a Dialer for the Anthropic Messages API.
// Anthropic has no cache objects, so caches are kept locally as primed
// prompt prefixes; the registry is shared by every backend the dialer
// returns.
func AnthropicDialer(s Settings, opts ...anthropic.Option) Dialer {
	reg := newPrefixRegistry()
	return func(_ context.Context, credential string) (Backend, error) {
		if strings.TrimSpace(credential) == "" {
			return nil, eris.New("anthropic: api key is empty")
		}
		return newAnthropicBackend(anthropic.NewClient(credential, opts...), credential, s, reg), nil
	}
}

type prefix struct {
	system     string
	content    string
	credential string
	expires    time.Time
}

type prefixRegistry struct {
	mu      sync.Mutex
	entries map[string]*prefix
	now     func() time.Time
}

func newPrefixRegistry() *prefixRegistry {
	return &prefixRegistry{entries: make(map[string]*prefix), now: time.Now}
}

func (r *prefixRegistry) put(p *prefix) string {
	id := "prefix/" + uuid.NewString()
	r.mu.Lock()
	r.entries[id] = p
	r.mu.Unlock()
	return id
}

// get returns the live entry id owned by credential.
func (r *prefixRegistry) get(id, credential string) (*prefix, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	if r.now().After(p.expires) {
		delete(r.entries, id)
		return nil, false
	}
	if p.credential != credential {
		return nil, false
	}
	return p, true
}

func (r *prefixRegistry) extend(id, credential string, ttl time.Duration) bool {
	p, ok := r.get(id, credential)
	if !ok {
		return false
	}
	r.mu.Lock()
	p.expires = r.now().Add(ttl)
	r.mu.Unlock()
	return true
}

type anthropicBackend struct {
	client     anthropic.Client
	credential string
	settings   Settings
	reg        *prefixRegistry
}

func newAnthropicBackend(client anthropic.Client, credential string, s Settings, reg *prefixRegistry) *anthropicBackend {
	return &anthropicBackend{client: client, credential: credential, settings: s, reg: reg}
}

func (b *anthropicBackend) request(system []anthropic.SystemBlock, prompt string) anthropic.MessageRequest {
	temp := float64(b.settings.Temperature)
	return anthropic.MessageRequest{
		Model:       b.settings.Model,
		MaxTokens:   int64(b.settings.MaxOutputTokens),
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}
}

func (b *anthropicBackend) Generate(ctx context.Context, req Request) (string, error) {
	var system []anthropic.SystemBlock
	switch {
	case req.CacheID != "":
		p, ok := b.reg.get(req.CacheID, b.credential)
		if !ok {
			return "", &ProviderError{Provider: "anthropic", Kind: KindNotFound, Status: 404, Err: eris.Errorf("anthropic: prefix %s not found", req.CacheID)}
		}
		system = anthropic.BuildCachedSystemBlocks(p.system, p.content)
	case req.System != "":
		system = []anthropic.SystemBlock{{Text: req.System}}
	}

	resp, err := b.client.CreateMessage(ctx, b.request(system, req.Prompt))
	if err != nil {
		return "", classifyAnthropic(err)
	}
	resp.Usage.LogCost(b.settings.Model, "generate")
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", eris.Wrapf(ErrNoOutput, "anthropic: empty response (stop %s)", resp.StopReason)
	}
	return text, nil
}

func (b *anthropicBackend) CreateCache(ctx context.Context, system, content string, ttl time.Duration) (string, error) {
	if len(system)+len(content) < MinCacheChars {
		return "", &ProviderError{Provider: "anthropic", Kind: KindTooShort, Err: eris.New("anthropic: context below cacheable minimum")}
	}
	req := b.request(anthropic.BuildCachedSystemBlocks(system, content), "")
	if _, err := anthropic.Prime(ctx, b.client, req); err != nil {
		if errors.Is(err, anthropic.ErrNotCached) {
			return "", &ProviderError{Provider: "anthropic", Kind: KindTooShort, Err: err}
		}
		return "", classifyAnthropic(err)
	}
	return b.reg.put(&prefix{
		system:     system,
		content:    content,
		credential: b.credential,
		expires:    b.reg.now().Add(ttl),
	}), nil
}

func (b *anthropicBackend) GetCache(_ context.Context, id string) error {
	if _, ok := b.reg.get(id, b.credential); !ok {
		return &ProviderError{Provider: "anthropic", Kind: KindNotFound, Status: 404, Err: eris.Errorf("anthropic: prefix %s not found", id)}
	}
	return nil
}

func (b *anthropicBackend) ExtendCache(_ context.Context, id string, ttl time.Duration) error {
	if !b.reg.extend(id, b.credential, ttl) {
		return &ProviderError{Provider: "anthropic", Kind: KindNotFound, Status: 404, Err: eris.Errorf("anthropic: prefix %s not found", id)}
	}
	return nil
}

func classifyAnthropic(err error) error {
	status := anthropic.StatusCode(err)
	kind := KindOther
	switch status {
	case 429:
		kind = KindQuota
	case 404:
		kind = KindNotFound
	case 0:
		return err
	}
	return &ProviderError{Provider: "anthropic", Kind: kind, Status: status, Err: err}
}
