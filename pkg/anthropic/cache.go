package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// CacheTTL is the breakpoint lifetime used for primed contexts.
const CacheTTL = "1h"

// ErrNotCached is returned by Prime when the provider neither wrote nor read
// the cache, which happens when the prefix is below the cacheable minimum.
var ErrNotCached = eris.New("anthropic: prompt prefix was not cached")

// BuildCachedSystemBlocks returns the system prompt followed by the context
// block carrying the cache breakpoint. Everything up to the breakpoint is
// cached as one prefix.
func BuildCachedSystemBlocks(system, corpus string) []SystemBlock {
	blocks := make([]SystemBlock, 0, 2)
	if system != "" {
		blocks = append(blocks, SystemBlock{Text: system})
	}
	return append(blocks, SystemBlock{
		Text:         corpus,
		CacheControl: &CacheControl{TTL: CacheTTL},
	})
}

// Prime sends a minimal request so the prefix in req.System is written to
// the prompt cache. It fails with ErrNotCached when nothing was cached.
func Prime(ctx context.Context, client Client, req MessageRequest) (*MessageResponse, error) {
	req.MaxTokens = 1
	req.Messages = []Message{{Role: "user", Content: "ok"}}
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: prime cache")
	}
	resp.Usage.LogCost(req.Model, "prime")
	if !resp.Usage.Cached() {
		return resp, ErrNotCached
	}
	return resp, nil
}
