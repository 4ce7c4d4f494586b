package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/pkg/gemini"
)

// CacheNamePrefix prefixes the display name of every cache this service
// creates.
const CacheNamePrefix = "commentscope_"

// GeminiDialer returns a Dialer that binds Gemini clients to credentials.
// Clients are built once per credential and reused.
func GeminiDialer(s Settings, opts ...gemini.Option) Dialer {
	var (
		mu      sync.Mutex
		clients = make(map[string]gemini.Client)
	)
	return func(ctx context.Context, credential string) (Backend, error) {
		mu.Lock()
		defer mu.Unlock()
		if c, ok := clients[credential]; ok {
			return NewGeminiBackend(c, s), nil
		}
		c, err := gemini.NewClient(ctx, credential, opts...)
		if err != nil {
			return nil, err
		}
		clients[credential] = c
		return NewGeminiBackend(c, s), nil
	}
}

type geminiBackend struct {
	client   gemini.Client
	settings Settings
}

// NewGeminiBackend adapts a Gemini client to Backend.
func NewGeminiBackend(client gemini.Client, s Settings) Backend {
	return &geminiBackend{client: client, settings: s}
}

func (b *geminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := b.client.Generate(ctx, gemini.GenerateRequest{
		Model:           b.settings.Model,
		System:          req.System,
		Prompt:          req.Prompt,
		CachedContent:   req.CacheID,
		Temperature:     b.settings.Temperature,
		MaxOutputTokens: b.settings.MaxOutputTokens,
	})
	if err != nil {
		return "", classifyGemini(err, false)
	}
	zap.L().Debug("llm: gemini generate",
		zap.Bool("cached", req.CacheID != ""),
		zap.Int32("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int32("cached_tokens", resp.Usage.CachedTokens),
		zap.Int32("output_tokens", resp.Usage.OutputTokens),
	)
	if resp.BlockReason != "" {
		return "", eris.Wrapf(ErrNoOutput, "gemini: prompt blocked (%s)", resp.BlockReason)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", eris.Wrapf(ErrNoOutput, "gemini: empty response (finish %s)", resp.FinishReason)
	}
	return resp.Text, nil
}

func (b *geminiBackend) CreateCache(ctx context.Context, system, content string, ttl time.Duration) (string, error) {
	cache, err := b.client.CreateCache(ctx, gemini.CacheRequest{
		Model:       b.settings.Model,
		DisplayName: CacheNamePrefix + uuid.NewString()[:8],
		System:      system,
		Content:     content,
		TTL:         ttl,
	})
	if err != nil {
		return "", classifyGemini(err, true)
	}
	return cache.Name, nil
}

func (b *geminiBackend) GetCache(ctx context.Context, id string) error {
	if _, err := b.client.GetCache(ctx, id); err != nil {
		return classifyGemini(err, false)
	}
	return nil
}

func (b *geminiBackend) ExtendCache(ctx context.Context, id string, ttl time.Duration) error {
	if _, err := b.client.UpdateCacheTTL(ctx, id, ttl); err != nil {
		return classifyGemini(err, false)
	}
	return nil
}

// classifyGemini tags a Gemini error with its Kind. Invalid-argument
// rejections on cache creation mean the content is under the cacheable
// minimum.
func classifyGemini(err error, creating bool) error {
	var apiErr *gemini.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.ToLower(apiErr.Message)
	kind := KindOther
	switch {
	case apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED" || strings.Contains(msg, "quota"):
		kind = KindQuota
	case apiErr.Code == 404 || apiErr.Status == "NOT_FOUND":
		kind = KindNotFound
	case creating && (apiErr.Code == 400 || strings.Contains(msg, "too short") ||
		strings.Contains(msg, "too small") || strings.Contains(msg, "min_total_token_count")):
		kind = KindTooShort
	}
	return &ProviderError{Provider: "gemini", Kind: kind, Status: apiErr.Code, Err: err}
}
