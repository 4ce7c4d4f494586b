package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/commentscope/internal/gate"
)

// world is a fake provider shared by every backend the fake dialer hands
// out. Caches are owned by the credential that created them.
type world struct {
	mu sync.Mutex

	gate *gate.Gate

	caches    map[string]string
	nextID    int
	createErr map[string]error
	genErr    map[string]error
	genText   string

	creates   []string
	gets      []string
	extends   []string
	generates []Request
	genKeys   []string
	peak      int
}

func newWorld(g *gate.Gate) *world {
	return &world{
		gate:      g,
		caches:    make(map[string]string),
		createErr: make(map[string]error),
		genErr:    make(map[string]error),
		genText:   "analysis",
	}
}

func (w *world) dialer() Dialer {
	return func(_ context.Context, credential string) (Backend, error) {
		return &fakeBackend{w: w, credential: credential}, nil
	}
}

func (w *world) observe() {
	if w.gate == nil {
		return
	}
	if n := w.gate.InFlight(); n > w.peak {
		w.peak = n
	}
}

type fakeBackend struct {
	w          *world
	credential string
}

func (b *fakeBackend) Generate(_ context.Context, req Request) (string, error) {
	w := b.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observe()
	w.generates = append(w.generates, req)
	w.genKeys = append(w.genKeys, b.credential)
	if err := w.genErr[b.credential]; err != nil {
		return "", err
	}
	if req.CacheID != "" && w.caches[req.CacheID] != b.credential {
		return "", notFound()
	}
	return w.genText, nil
}

func (b *fakeBackend) CreateCache(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	w := b.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observe()
	w.creates = append(w.creates, b.credential)
	if err := w.createErr[b.credential]; err != nil {
		return "", err
	}
	w.nextID++
	id := fmt.Sprintf("cachedContents/%d", w.nextID)
	w.caches[id] = b.credential
	return id, nil
}

func (b *fakeBackend) GetCache(_ context.Context, id string) error {
	w := b.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gets = append(w.gets, b.credential)
	if w.caches[id] != b.credential {
		return notFound()
	}
	return nil
}

func (b *fakeBackend) ExtendCache(_ context.Context, id string, _ time.Duration) error {
	w := b.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observe()
	w.extends = append(w.extends, b.credential)
	if w.caches[id] != b.credential {
		return notFound()
	}
	return nil
}

func quota() error {
	return &ProviderError{Provider: "fake", Kind: KindQuota, Status: 429, Err: errors.New("quota exceeded")}
}

func tooShort() error {
	return &ProviderError{Provider: "fake", Kind: KindTooShort, Status: 400, Err: errors.New("cached content is too small")}
}

func notFound() error {
	return &ProviderError{Provider: "fake", Kind: KindNotFound, Status: 404, Err: errors.New("not found")}
}
