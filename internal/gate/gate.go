// Package gate bounds concurrent calls to the LLM provider.
package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultCapacity is the number of LLM calls allowed in flight.
	DefaultCapacity = 3
	// DefaultWait is how long Enter waits for a free slot.
	DefaultWait = 120 * time.Second
)

// ErrAdmissionTimeout is returned when no slot frees up within the wait
// ceiling. It is distinct from provider errors and caller cancellation.
var ErrAdmissionTimeout = errors.New("gate: admission timeout")

// Permit records that the current call chain already holds a slot. The zero
// value holds nothing. Pass it down to nested calls so they do not consume
// a second slot.
type Permit struct {
	held bool
}

// Held reports whether the permit owns a slot.
func (p Permit) Held() bool {
	return p.held
}

// Gate is a counting semaphore with a bounded admission wait.
type Gate struct {
	sem      *semaphore.Weighted
	wait     time.Duration
	capacity int
	inflight atomic.Int64
}

// New builds a Gate. Non-positive arguments fall back to the defaults.
func New(capacity int, wait time.Duration) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		wait:     wait,
		capacity: capacity,
	}
}

// Capacity returns the number of slots.
func (g *Gate) Capacity() int {
	return g.capacity
}

// InFlight returns the number of slots currently taken.
func (g *Gate) InFlight() int {
	return int(g.inflight.Load())
}

// Enter admits the caller. A held permit passes straight through and its
// release is a no-op. Otherwise Enter waits up to the ceiling for a slot and
// returns a held permit whose release frees it exactly once.
func (g *Gate) Enter(ctx context.Context, p Permit) (Permit, func(), error) {
	if p.held {
		return p, func() {}, nil
	}

	wctx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()
	if err := g.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return Permit{}, func() {}, eris.Wrap(ctx.Err(), "gate: admission cancelled")
		}
		return Permit{}, func() {}, ErrAdmissionTimeout
	}
	g.inflight.Add(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.inflight.Add(-1)
			g.sem.Release(1)
		})
	}
	return Permit{held: true}, release, nil
}

// Do runs fn inside the gate, handing it the permit to pass further down.
func (g *Gate) Do(ctx context.Context, p Permit, fn func(ctx context.Context, p Permit) error) error {
	_, err := Run(ctx, g, p, func(ctx context.Context, p Permit) (struct{}, error) {
		return struct{}{}, fn(ctx, p)
	})
	return err
}

// Run is Do for functions that return a value.
func Run[T any](ctx context.Context, g *Gate, p Permit, fn func(ctx context.Context, p Permit) (T, error)) (T, error) {
	held, release, err := g.Enter(ctx, p)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx, held)
}
