package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/engage/internal/reaction"
)

// React sets (next != nil) or removes (next == nil) userID's reaction on
// postID and returns the post's resulting count.
//
// Errors:
//   - INVALID_REACTION: empty IDs or a kind outside the catalog
//   - POST_NOT_FOUND: the gate rejected the post; nothing was written
//   - STORE_UNAVAILABLE: a store failed; the call is safe to retry
func (s *Service) React(ctx context.Context, postID, userID string, next *reaction.Reaction) (Result, error) {
	postID, err := reaction.NormalizeID("post id", postID)
	if err != nil {
		return Result{}, err
	}
	userID, err = reaction.NormalizeID("user id", userID)
	if err != nil {
		return Result{}, err
	}
	if next != nil {
		resolved, err := s.catalog.Resolve(string(next.Kind), next.Label)
		if err != nil {
			return Result{}, err
		}
		next = &resolved
	}

	opID := s.ids.Generate()
	ctx = reaction.WithOperation(ctx, opID)
	log := s.logger.With("op", opID, "post", postID, "user", userID)

	if err := s.gate.EnsureExists(ctx, postID); err != nil {
		return Result{}, err
	}

	// Post lock before user lock: Recount's exclusive post lock must never
	// wait behind a reader that is itself waiting on a user lock.
	unlockPost, err := s.postLocks.RLock(ctx, postID)
	if err != nil {
		return Result{}, asUnavailable(postID, userID, "acquire post lock", err)
	}
	defer unlockPost()

	unlockUser, err := s.userLocks.Lock(ctx, postID+"\x00"+userID)
	if err != nil {
		return Result{}, asUnavailable(postID, userID, "acquire reaction lock", err)
	}
	defer unlockUser()

	prev, err := s.records.SwapUserReaction(ctx, postID, userID, next)
	if err != nil {
		// the write may have committed before the error surfaced
		s.markDirty(postID)
		return Result{}, asUnavailable(postID, userID, "swap reaction", err)
	}

	delta := reaction.ComputeDelta(prev, next)
	log.Debug("reaction swapped",
		"previous", kindOf(prev),
		"next", kindOf(next),
		"delta", delta.Total,
	)

	if delta.IsZero() {
		tally, err := s.currentTally(ctx, postID, log)
		if err != nil {
			return Result{}, asUnavailable(postID, userID, "read count", err)
		}
		return resultFrom(tally, prev, false), nil
	}

	tally, err := s.applyDelta(ctx, postID, delta, log)
	if err != nil {
		s.markDirty(postID)
		log.Error("counter write failed after reaction swap, post marked for healing",
			"delta", delta.Total,
			"error", err,
		)
		return Result{}, asUnavailable(postID, userID, "apply delta", err)
	}
	if s.dirty.contains(postID) {
		// the delta landed on a counter that is still behind its records
		if tally, err = s.recordTally(ctx, postID); err != nil {
			return Result{}, asUnavailable(postID, userID, "read count", err)
		}
	}
	return resultFrom(tally, prev, true), nil
}

// Reactions returns the reaction record of an existing post.
func (s *Service) Reactions(ctx context.Context, postID string) (reaction.Record, error) {
	postID, err := reaction.NormalizeID("post id", postID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.EnsureExists(ctx, postID); err != nil {
		return nil, err
	}
	record, err := s.records.Reactions(ctx, postID)
	if err != nil {
		return nil, asUnavailable(postID, "", "read reactions", err)
	}
	return record, nil
}

// applyDelta writes to the counter detached from caller cancellation, so a
// caller that gives up after the swap does not widen the inconsistency.
// A counter with no value yet is answered from the record store and the
// post is left for the healer to rebuild under its exclusive lock.
func (s *Service) applyDelta(ctx context.Context, postID string, d reaction.Delta, log *slog.Logger) (reaction.Tally, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.counterTimeout)
	defer cancel()

	tally, err := s.counter.ApplyDelta(wctx, postID, d)
	if errors.Is(err, reaction.ErrCounterMiss) {
		return s.tallyFromRecords(ctx, postID, log)
	}
	if err != nil {
		return reaction.Tally{}, err
	}
	return tally, nil
}

// currentTally reads the counter, falling back to the record store on a miss
// or while the post is waiting to be healed.
func (s *Service) currentTally(ctx context.Context, postID string, log *slog.Logger) (reaction.Tally, error) {
	if s.dirty.contains(postID) {
		log.Debug("post awaiting heal, answering from records")
		return s.recordTally(ctx, postID)
	}
	tally, err := s.counter.Count(ctx, postID)
	if errors.Is(err, reaction.ErrCounterMiss) {
		return s.tallyFromRecords(ctx, postID, log)
	}
	return tally, err
}

func (s *Service) tallyFromRecords(ctx context.Context, postID string, log *slog.Logger) (reaction.Tally, error) {
	log.Info("counter has no value, answering from records")
	s.markDirty(postID)
	return s.recordTally(ctx, postID)
}

func (s *Service) recordTally(ctx context.Context, postID string) (reaction.Tally, error) {
	record, err := s.records.Reactions(ctx, postID)
	if err != nil {
		return reaction.Tally{}, fmt.Errorf("read reactions: %w", err)
	}
	return record.Tally(), nil
}

func kindOf(r *reaction.Reaction) string {
	if r == nil {
		return ""
	}
	return string(r.Kind)
}
