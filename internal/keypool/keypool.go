// Package keypool round-robins across a provider's API credentials.
package keypool

import (
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// MaxKeys caps the number of credentials kept per provider.
const MaxKeys = 10

// ErrNoCredentials is returned by callers when the pool is empty.
var ErrNoCredentials = eris.New("keypool: no credentials configured")

// Observer is notified after every rotation.
type Observer func(index int, credential string)

// Option configures a Rotator.
type Option func(*Rotator)

// WithCursor restores a previously persisted cursor. Out-of-range values wrap.
func WithCursor(cursor int) Option {
	return func(r *Rotator) {
		r.idx = cursor
	}
}

// WithObserver registers a callback invoked after each rotation.
func WithObserver(fn Observer) Option {
	return func(r *Rotator) {
		r.onRotate = fn
	}
}

// Rotator selects the current credential from an ordered pool.
type Rotator struct {
	mu       sync.Mutex
	keys     []string
	idx      int
	onRotate Observer
}

// New builds a Rotator from raw credentials. Blank entries are dropped and
// the pool is capped at MaxKeys.
func New(keys []string, opts ...Option) *Rotator {
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		clean = append(clean, k)
		if len(clean) == MaxKeys {
			break
		}
	}

	r := &Rotator{keys: clean}
	for _, o := range opts {
		o(r)
	}
	if len(r.keys) == 0 {
		r.idx = 0
	} else {
		r.idx = ((r.idx % len(r.keys)) + len(r.keys)) % len(r.keys)
	}
	return r
}

// Current returns the selected credential, or false if the pool is empty.
func (r *Rotator) Current() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", false
	}
	return r.keys[r.idx], true
}

// Rotate advances the cursor by one. It is a no-op on an empty pool.
func (r *Rotator) Rotate() {
	r.mu.Lock()
	if len(r.keys) == 0 {
		r.mu.Unlock()
		return
	}
	r.idx = (r.idx + 1) % len(r.keys)
	idx, key, fn := r.idx, r.keys[r.idx], r.onRotate
	r.mu.Unlock()

	if fn != nil {
		fn(idx, key)
	}
}

// Len returns the pool size.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Index returns the current cursor.
func (r *Rotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx
}

// Clone returns an independent rotator over the same pool starting at the
// same cursor. The observer is shared.
func (r *Rotator) Clone() *Rotator {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return &Rotator{keys: keys, idx: r.idx, onRotate: r.onRotate}
}

// Mask hides all but the last four characters of a credential for logging.
func Mask(credential string) string {
	if len(credential) <= 4 {
		return "****"
	}
	return "****" + credential[len(credential)-4:]
}
