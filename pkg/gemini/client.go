// Package gemini wraps the Gemini API (google.golang.org/genai) for
// generation against remote context caches.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini operations used by the analysis backend.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	CreateCache(ctx context.Context, req CacheRequest) (*Cache, error)
	GetCache(ctx context.Context, name string) (*Cache, error)
	UpdateCacheTTL(ctx context.Context, name string, ttl time.Duration) (*Cache, error)
}

// GenerateRequest is one generateContent call. When CachedContent is set the
// system instruction lives in the cache and System is ignored.
type GenerateRequest struct {
	Model           string
	System          string
	Prompt          string
	CachedContent   string
	Temperature     float32
	MaxOutputTokens int32
}

// GenerateResponse is the text and accounting of one call.
type GenerateResponse struct {
	Text         string
	BlockReason  string
	FinishReason string
	Usage        Usage
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens    int32
	OutputTokens    int32
	CachedTokens    int32
	TotalTokenCount int32
}

// CacheRequest describes a CachedContent to create.
type CacheRequest struct {
	Model       string
	DisplayName string
	System      string
	Content     string
	TTL         time.Duration
}

// Cache is a remote CachedContent.
type Cache struct {
	Name        string
	Model       string
	DisplayName string
	ExpireTime  time.Time
	TotalTokens int32
}

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	Code    int
	Status  string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Option configures the SDK client.
type Option func(*genai.ClientConfig)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = url
	}
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPClient = hc
	}
}

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini client bound to one API key.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, eris.New("gemini: api key is empty")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, fn := range opts {
		fn(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return &sdkClient{client: client}, nil
}

// safetyOff disables every adjustable harm filter.
func safetyOff() []*genai.SafetySetting {
	cats := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	out := make([]*genai.SafetySetting, len(cats))
	for i, c := range cats {
		out[i] = &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockNone}
	}
	return out
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
		SafetySettings:  safetyOff(),
	}
	if req.CachedContent != "" {
		cfg.CachedContent = req.CachedContent
	} else if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, wrapAPIError(err, "gemini: generate content")
	}

	out := &GenerateResponse{Text: resp.Text()}
	if resp.PromptFeedback != nil {
		out.BlockReason = string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:    u.PromptTokenCount,
			OutputTokens:    u.CandidatesTokenCount,
			CachedTokens:    u.CachedContentTokenCount,
			TotalTokenCount: u.TotalTokenCount,
		}
	}
	return out, nil
}

func (c *sdkClient) CreateCache(ctx context.Context, req CacheRequest) (*Cache, error) {
	cfg := &genai.CreateCachedContentConfig{
		TTL:         req.TTL,
		DisplayName: req.DisplayName,
		Contents:    []*genai.Content{genai.NewContentFromText(req.Content, genai.RoleUser)},
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	cc, err := c.client.Caches.Create(ctx, req.Model, cfg)
	if err != nil {
		return nil, wrapAPIError(err, "gemini: create cache")
	}
	return fromCachedContent(cc), nil
}

func (c *sdkClient) GetCache(ctx context.Context, name string) (*Cache, error) {
	cc, err := c.client.Caches.Get(ctx, name, nil)
	if err != nil {
		return nil, wrapAPIError(err, "gemini: get cache")
	}
	return fromCachedContent(cc), nil
}

func (c *sdkClient) UpdateCacheTTL(ctx context.Context, name string, ttl time.Duration) (*Cache, error) {
	cc, err := c.client.Caches.Update(ctx, name, &genai.UpdateCachedContentConfig{TTL: ttl})
	if err != nil {
		return nil, wrapAPIError(err, "gemini: update cache")
	}
	return fromCachedContent(cc), nil
}

func fromCachedContent(cc *genai.CachedContent) *Cache {
	out := &Cache{
		Name:        cc.Name,
		Model:       cc.Model,
		DisplayName: cc.DisplayName,
		ExpireTime:  cc.ExpireTime,
	}
	if cc.UsageMetadata != nil {
		out.TotalTokens = cc.UsageMetadata.TotalTokenCount
	}
	return out
}

// wrapAPIError lifts genai.APIError into APIError. The SDK returns it by
// value; the pointer form is accepted too.
func wrapAPIError(err error, msg string) error {
	var val genai.APIError
	if errors.As(err, &val) {
		return &APIError{Code: val.Code, Status: val.Status, Message: val.Message, Err: eris.Wrapf(err, "%s (status %d)", msg, val.Code)}
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return &APIError{Code: ptr.Code, Status: ptr.Status, Message: ptr.Message, Err: eris.Wrapf(err, "%s (status %d)", msg, ptr.Code)}
	}
	return eris.Wrap(err, msg)
}
