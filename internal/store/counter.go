package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/engage/internal/reaction"
)

// Count returns the cached tally for a post.
// Returns a POST_NOT_FOUND error if the post row is missing.
func (s *Store) Count(ctx context.Context, postID string) (reaction.Tally, error) {
	var tally reaction.Tally
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		tally, err = readTally(ctx, tx, postID)
		return err
	})
	if err != nil {
		return reaction.Tally{}, err
	}
	return tally, nil
}

// ApplyDelta adds d to the post's cached tally and returns the new value.
//
// The read-modify-write runs in one transaction owned by the store, so
// concurrent deltas for the same post never lose updates. Results are clamped
// at zero; a clamp means a reconciliation bug upstream and is logged.
func (s *Store) ApplyDelta(ctx context.Context, postID string, d reaction.Delta) (reaction.Tally, error) {
	var next reaction.Tally
	err := s.withRetry(ctx, postID, "apply delta", func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			current, err := readTally(ctx, tx, postID)
			if err != nil {
				return err
			}

			var clamped bool
			next, clamped = current.Apply(d)
			if clamped {
				s.logger.Error("negative reaction count clamped",
					"post", postID,
					"current", current.Total,
					"delta", d.Total,
					"kinds", d.Kinds,
				)
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE posts SET reaction_count = ?, updated_at = ? WHERE id = ?
			`, next.Total, s.nowMillis(), postID); err != nil {
				return fmt.Errorf("write reaction count: %w", err)
			}

			for _, kind := range sortedKinds(d.Kinds) {
				if err := writeKindCount(ctx, tx, postID, kind, next.Kinds[kind]); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return reaction.Tally{}, err
	}
	return next, nil
}

// Reset overwrites the cached tally with an exact value.
// Only recount should call this.
func (s *Store) Reset(ctx context.Context, postID string, t reaction.Tally) error {
	return s.withRetry(ctx, postID, "reset count", func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, `
				UPDATE posts SET reaction_count = ?, updated_at = ? WHERE id = ?
			`, t.Total, s.nowMillis(), postID)
			if err != nil {
				return fmt.Errorf("reset reaction count: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("reset reaction count: rows affected: %w", err)
			}
			if n == 0 {
				return reaction.NewPostNotFound(postID)
			}

			if _, err := tx.ExecContext(ctx, `
				DELETE FROM post_reaction_kinds WHERE post_id = ?
			`, postID); err != nil {
				return fmt.Errorf("reset kind counts: %w", err)
			}
			for _, kind := range sortedKinds(t.Kinds) {
				if err := writeKindCount(ctx, tx, postID, kind, t.Kinds[kind]); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// readTally loads the scalar count and histogram inside a transaction.
func readTally(ctx context.Context, tx *sql.Tx, postID string) (reaction.Tally, error) {
	t := reaction.Tally{Kinds: make(map[reaction.Kind]int64)}
	err := tx.QueryRowContext(ctx, `
		SELECT reaction_count FROM posts WHERE id = ?
	`, postID).Scan(&t.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return reaction.Tally{}, reaction.NewPostNotFound(postID)
	}
	if err != nil {
		return reaction.Tally{}, fmt.Errorf("read reaction count: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT kind, count FROM post_reaction_kinds
		WHERE post_id = ?
		ORDER BY kind COLLATE BINARY ASC
	`, postID)
	if err != nil {
		return reaction.Tally{}, fmt.Errorf("query kind counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return reaction.Tally{}, fmt.Errorf("scan kind count: %w", err)
		}
		t.Kinds[reaction.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return reaction.Tally{}, fmt.Errorf("iterate kind counts: %w", err)
	}
	return t, nil
}

// writeKindCount stores one histogram bucket. Zero buckets are deleted.
func writeKindCount(ctx context.Context, tx *sql.Tx, postID string, kind reaction.Kind, n int64) error {
	var err error
	if n <= 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM post_reaction_kinds WHERE post_id = ? AND kind = ?
		`, postID, string(kind))
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO post_reaction_kinds (post_id, kind, count)
			VALUES (?, ?, ?)
			ON CONFLICT(post_id, kind) DO UPDATE SET count = excluded.count
		`, postID, string(kind), n)
	}
	if err != nil {
		return fmt.Errorf("write kind count %s: %w", kind, err)
	}
	return nil
}

// withRetry runs fn until it succeeds, fails with a non-contention error, or
// the retry budget is spent. Exhausting the budget yields STORE_UNAVAILABLE.
func (s *Store) withRetry(ctx context.Context, postID, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}

		s.logger.Warn("store contention, retrying",
			"post", postID,
			"op", op,
			"attempt", attempt,
			"max_retries", s.maxRetries,
		)

		if attempt == s.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return reaction.NewStoreUnavailable(postID, op, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.retryBackoff):
		}
	}
	return reaction.NewStoreUnavailable(postID, op,
		fmt.Errorf("gave up after %d attempts: %w", s.maxRetries, err))
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func sortedKinds(m map[reaction.Kind]int64) []reaction.Kind {
	kinds := make([]reaction.Kind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
