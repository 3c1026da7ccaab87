package reconcile

import (
	"context"
	"errors"

	"github.com/roach88/engage/internal/reaction"
)

// Count returns the post's aggregate. A post marked dirty, or one the counter
// holds no value for, is recounted first.
func (s *Service) Count(ctx context.Context, postID string) (reaction.Tally, error) {
	postID, err := reaction.NormalizeID("post id", postID)
	if err != nil {
		return reaction.Tally{}, err
	}
	if err := s.gate.EnsureExists(ctx, postID); err != nil {
		return reaction.Tally{}, err
	}

	if !s.dirty.contains(postID) {
		tally, err := s.counter.Count(ctx, postID)
		if err == nil {
			return tally, nil
		}
		if !errors.Is(err, reaction.ErrCounterMiss) {
			return reaction.Tally{}, asUnavailable(postID, "", "read count", err)
		}
	}

	return s.recount(ctx, postID)
}

// Recount rebuilds the post's aggregate from the record store and returns the
// exact count. Any disagreement with the counter is logged as
// COUNTER_DRIFT_DETECTED and corrected.
func (s *Service) Recount(ctx context.Context, postID string) (int64, error) {
	postID, err := reaction.NormalizeID("post id", postID)
	if err != nil {
		return 0, err
	}
	if err := s.gate.EnsureExists(ctx, postID); err != nil {
		return 0, err
	}
	tally, err := s.recount(ctx, postID)
	if err != nil {
		return 0, err
	}
	return tally.Total, nil
}

func (s *Service) recount(ctx context.Context, postID string) (reaction.Tally, error) {
	unlock, err := s.postLocks.Lock(ctx, postID)
	if err != nil {
		return reaction.Tally{}, asUnavailable(postID, "", "acquire post lock", err)
	}
	defer unlock()

	record, err := s.records.Reactions(ctx, postID)
	if err != nil {
		return reaction.Tally{}, asUnavailable(postID, "", "read reactions", err)
	}
	actual := record.Tally()

	cached, err := s.counter.Count(ctx, postID)
	switch {
	case errors.Is(err, reaction.ErrCounterMiss):
		s.logger.Info("counter rebuilt from records", "post", postID, "count", actual.Total)
	case err != nil:
		return reaction.Tally{}, asUnavailable(postID, "", "read count", err)
	case !cached.Equal(actual):
		drift := reaction.NewCounterDrift(postID, cached.Total, actual.Total)
		s.logger.Warn("counter drift corrected",
			"post", postID,
			"code", string(drift.Code),
			"cached", cached.Total,
			"actual", actual.Total,
			"error", drift,
		)
	}

	if err := s.counter.Reset(ctx, postID, actual); err != nil {
		return reaction.Tally{}, asUnavailable(postID, "", "reset count", err)
	}
	s.dirty.clear(postID)
	return actual, nil
}
