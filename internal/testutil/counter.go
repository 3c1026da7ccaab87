package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/engage/internal/reaction"
)

// ErrInjected is the failure FlakyCounter returns while failing.
var ErrInjected = errors.New("injected counter failure")

// Counter is the aggregate counter contract FlakyCounter wraps.
type Counter interface {
	Count(ctx context.Context, postID string) (reaction.Tally, error)
	ApplyDelta(ctx context.Context, postID string, d reaction.Delta) (reaction.Tally, error)
	Reset(ctx context.Context, postID string, t reaction.Tally) error
}

// FlakyCounter wraps a Counter and fails ApplyDelta on demand, to simulate a
// counter write that fails after the record write has committed.
type FlakyCounter struct {
	Counter

	mu      sync.Mutex
	failing int // remaining ApplyDelta calls to fail; -1 fails forever
	applied int
}

// NewFlakyCounter wraps inner. It starts healthy.
func NewFlakyCounter(inner Counter) *FlakyCounter {
	return &FlakyCounter{Counter: inner}
}

// FailNext makes the next n ApplyDelta calls fail. n < 0 fails until Heal.
func (f *FlakyCounter) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = n
}

// Heal stops injecting failures.
func (f *FlakyCounter) Heal() {
	f.FailNext(0)
}

// Applied returns how many ApplyDelta calls reached the inner counter.
func (f *FlakyCounter) Applied() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}

// ApplyDelta fails with ErrInjected while failures are armed, otherwise
// forwards to the inner counter.
func (f *FlakyCounter) ApplyDelta(ctx context.Context, postID string, d reaction.Delta) (reaction.Tally, error) {
	f.mu.Lock()
	if f.failing != 0 {
		if f.failing > 0 {
			f.failing--
		}
		f.mu.Unlock()
		return reaction.Tally{}, ErrInjected
	}
	f.applied++
	f.mu.Unlock()
	return f.Counter.ApplyDelta(ctx, postID, d)
}
