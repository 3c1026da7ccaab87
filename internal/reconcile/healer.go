package reconcile

import (
	"context"
	"strings"
	"sync"
	"time"
)

// dirtySet tracks posts whose counter may disagree with their records.
//
// A post enters the FIFO queue once when first marked. If healing fails it
// stays in the set, off the queue, until the next sweep requeues it; a post
// that keeps failing therefore costs one attempt per sweep, not a busy loop.
type dirtySet struct {
	mu     sync.Mutex
	posts  map[string]bool // value: currently queued
	queue  []string
	signal chan struct{} // buffered, size 1
}

func newDirtySet() *dirtySet {
	return &dirtySet{
		posts:  make(map[string]bool),
		queue:  make([]string, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// mark adds postID and queues it if it is not already dirty.
func (d *dirtySet) mark(postID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.posts[postID]; ok {
		return
	}
	d.posts[postID] = true
	d.push(postID)
}

// push appends to the queue. Caller holds mu.
func (d *dirtySet) push(postID string) {
	d.queue = append(d.queue, postID)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// tryDequeue pops the oldest queued post.
func (d *dirtySet) tryDequeue() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return "", false
	}
	id := d.queue[0]
	if len(d.queue) == 1 {
		d.queue = d.queue[:0]
	} else {
		d.queue = d.queue[1:]
	}
	if _, ok := d.posts[id]; ok {
		d.posts[id] = false
	}
	return id, true
}

// requeue puts every dirty post that is not queued back on the queue.
func (d *dirtySet) requeue() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, queued := range d.posts {
		if !queued {
			d.posts[id] = true
			d.push(id)
			n++
		}
	}
	return n
}

func (d *dirtySet) clear(postID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.posts, postID)
}

func (d *dirtySet) contains(postID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.posts[postID]
	return ok
}

func (d *dirtySet) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.posts)
}

// wait signals that posts may be queued.
func (d *dirtySet) wait() <-chan struct{} {
	return d.signal
}

// markDirty records postID for healing. The ID is cloned because it outlives
// the call and may alias a transport buffer.
func (s *Service) markDirty(postID string) {
	s.dirty.mark(strings.Clone(postID))
}

// Dirty returns how many posts are waiting to be healed.
func (s *Service) Dirty() int {
	return s.dirty.len()
}

// HealPending recounts every queued dirty post and returns how many were
// healed. Failures are logged and left for the next sweep; the first one is
// returned after the queue is drained.
func (s *Service) HealPending(ctx context.Context) (int, error) {
	healed := 0
	var firstErr error
	for {
		if err := ctx.Err(); err != nil {
			return healed, err
		}
		postID, ok := s.dirty.tryDequeue()
		if !ok {
			return healed, firstErr
		}
		if _, err := s.recount(ctx, postID); err != nil {
			s.logger.Warn("heal failed, will retry on next sweep", "post", postID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		healed++
		s.logger.Info("post healed", "post", postID)
	}
}

// RunHealer heals dirty posts as they are marked and sweeps for earlier
// failures every interval. Blocks until ctx is done.
func (s *Service) RunHealer(ctx context.Context, interval time.Duration) error {
	s.logger.Info("healer starting", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("healer stopping: context cancelled")
			return ctx.Err()

		case <-s.dirty.wait():
			_, _ = s.HealPending(ctx)

		case <-ticker.C:
			if n := s.dirty.requeue(); n > 0 {
				s.logger.Debug("healer sweep requeued posts", "count", n)
			}
		}
	}
}
