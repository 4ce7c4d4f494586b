// Package youtube wraps the YouTube Data API v3 behind a small interface.
package youtube

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// PageSize is the largest page the comment endpoints return.
const PageSize = 100

// Client defines the YouTube Data API operations used by the collector.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchPage, error)
	Videos(ctx context.Context, ids []string) ([]Video, error)
	CommentThreads(ctx context.Context, videoID, pageToken string) (*ThreadPage, error)
	Replies(ctx context.Context, parentID, pageToken string) (*CommentPage, error)
}

// Factory builds a Client bound to one API key.
type Factory func(ctx context.Context, apiKey string) (Client, error)

// SearchRequest is one page of a video search.
type SearchRequest struct {
	Query           string
	PublishedAfter  time.Time
	PublishedBefore time.Time
	Order           string
	MaxResults      int64
	PageToken       string
}

// SearchPage holds the video ids of one search page.
type SearchPage struct {
	VideoIDs      []string
	NextPageToken string
}

// Video is the subset of a videos.list item the pipeline needs.
type Video struct {
	ID           string
	Title        string
	ChannelTitle string
	PublishedAt  string
	Duration     string
	ViewCount    uint64
	LikeCount    uint64
	CommentCount uint64
}

// Comment is a top-level comment or a reply.
type Comment struct {
	ID          string
	ParentID    string
	Author      string
	Text        string
	PublishedAt string
	LikeCount   int64
}

// Thread is a top-level comment plus its reply count.
type Thread struct {
	TopLevel        Comment
	TotalReplyCount int64
}

// ThreadPage is one page of commentThreads.list.
type ThreadPage struct {
	Threads       []Thread
	NextPageToken string
}

// CommentPage is one page of comments.list.
type CommentPage struct {
	Comments      []Comment
	NextPageToken string
}

// StatusError is an API error carrying the HTTP status and error reasons.
type StatusError struct {
	Code    int
	Message string
	Reasons []string
	Err     error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// IsQuota reports whether the error is a quota or rate-limit rejection:
// a 403 or 429 whose message or reasons mention quota, rate or limit.
func (e *StatusError) IsQuota() bool {
	if e.Code != http.StatusForbidden && e.Code != http.StatusTooManyRequests {
		return false
	}
	text := strings.ToLower(e.Message + " " + strings.Join(e.Reasons, " "))
	for _, kw := range []string{"quota", "rate", "limit"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// IsQuotaError reports whether err (or its chain) is a quota StatusError.
func IsQuotaError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.IsQuota()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Option configures the SDK-backed client.
type Option func(*options)

type options struct {
	endpoint   string
	httpClient *http.Client
}

// WithEndpoint overrides the API endpoint.
func WithEndpoint(url string) Option {
	return func(o *options) {
		o.endpoint = url
	}
}

// WithHTTPClient overrides the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

type sdkClient struct {
	svc *yt.Service
}

// NewClient builds a Client backed by google.golang.org/api/youtube/v3.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, eris.New("youtube: api key is empty")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if o.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(o.endpoint))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(o.httpClient))
	}

	svc, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "youtube: new service")
	}
	return &sdkClient{svc: svc}, nil
}

// NewFactory returns a Factory that applies opts to every client it builds.
func NewFactory(opts ...Option) Factory {
	return func(ctx context.Context, apiKey string) (Client, error) {
		return NewClient(ctx, apiKey, opts...)
	}
}

func (c *sdkClient) Search(ctx context.Context, req SearchRequest) (*SearchPage, error) {
	call := c.svc.Search.List([]string{"id"}).
		Q(req.Query).
		Type("video").
		MaxResults(req.MaxResults)
	if req.Order != "" {
		call = call.Order(req.Order)
	}
	if !req.PublishedAfter.IsZero() {
		call = call.PublishedAfter(req.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if !req.PublishedBefore.IsZero() {
		call = call.PublishedBefore(req.PublishedBefore.UTC().Format(time.RFC3339))
	}
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError(err, "youtube: search")
	}

	page := &SearchPage{NextPageToken: resp.NextPageToken}
	for _, it := range resp.Items {
		if it.Id != nil && it.Id.VideoId != "" {
			page.VideoIDs = append(page.VideoIDs, it.Id.VideoId)
		}
	}
	return page, nil
}

func (c *sdkClient) Videos(ctx context.Context, ids []string) ([]Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	resp, err := c.svc.Videos.List([]string{"statistics", "snippet", "contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError(err, "youtube: list videos")
	}

	out := make([]Video, 0, len(resp.Items))
	for _, it := range resp.Items {
		v := Video{ID: it.Id}
		if it.Snippet != nil {
			v.Title = it.Snippet.Title
			v.ChannelTitle = it.Snippet.ChannelTitle
			v.PublishedAt = it.Snippet.PublishedAt
		}
		if it.ContentDetails != nil {
			v.Duration = it.ContentDetails.Duration
		}
		if it.Statistics != nil {
			v.ViewCount = it.Statistics.ViewCount
			v.LikeCount = it.Statistics.LikeCount
			v.CommentCount = it.Statistics.CommentCount
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *sdkClient) CommentThreads(ctx context.Context, videoID, pageToken string) (*ThreadPage, error) {
	call := c.svc.CommentThreads.List([]string{"snippet", "replies"}).
		VideoId(videoID).
		MaxResults(PageSize).
		TextFormat("plainText")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError(err, "youtube: list comment threads")
	}

	page := &ThreadPage{NextPageToken: resp.NextPageToken}
	for _, it := range resp.Items {
		if it.Snippet == nil || it.Snippet.TopLevelComment == nil {
			continue
		}
		page.Threads = append(page.Threads, Thread{
			TopLevel:        fromSDKComment(it.Snippet.TopLevelComment, ""),
			TotalReplyCount: it.Snippet.TotalReplyCount,
		})
	}
	return page, nil
}

func (c *sdkClient) Replies(ctx context.Context, parentID, pageToken string) (*CommentPage, error) {
	call := c.svc.Comments.List([]string{"snippet"}).
		ParentId(parentID).
		MaxResults(PageSize).
		TextFormat("plainText")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError(err, "youtube: list replies")
	}

	page := &CommentPage{NextPageToken: resp.NextPageToken}
	for _, it := range resp.Items {
		page.Comments = append(page.Comments, fromSDKComment(it, parentID))
	}
	return page, nil
}

func fromSDKComment(c *yt.Comment, parentID string) Comment {
	out := Comment{ID: c.Id, ParentID: parentID}
	if c.Snippet != nil {
		out.Author = c.Snippet.AuthorDisplayName
		out.Text = c.Snippet.TextDisplay
		out.PublishedAt = c.Snippet.PublishedAt
		out.LikeCount = c.Snippet.LikeCount
	}
	return out
}

// wrapAPIError converts a googleapi.Error into a StatusError so callers can
// classify quota failures without importing the SDK.
func wrapAPIError(err error, msg string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return eris.Wrap(err, msg)
	}
	reasons := make([]string, 0, len(gerr.Errors))
	for _, item := range gerr.Errors {
		reasons = append(reasons, item.Reason)
	}
	message := gerr.Message
	if message == "" {
		message = gerr.Body
	}
	return &StatusError{
		Code:    gerr.Code,
		Message: message,
		Reasons: reasons,
		Err:     eris.Wrapf(err, "%s (status %d)", msg, gerr.Code),
	}
}
