package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/engage/internal/reaction"
)

// Reactions returns the reaction record for a post.
// Returns an empty (non-nil) record if the post has no reactions or does not exist.
func (s *Store) Reactions(ctx context.Context, postID string) (reaction.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, kind, label
		FROM reactions
		WHERE post_id = ?
		ORDER BY user_id COLLATE BINARY ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	record := reaction.Record{}
	for rows.Next() {
		var userID, kind, label string
		if err := rows.Scan(&userID, &kind, &label); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		record[userID] = reaction.Reaction{Kind: reaction.Kind(kind), Label: label}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}

	return record, nil
}

// SwapUserReaction replaces one user's entry and returns the entry it replaced.
// A nil next removes the entry. The read of the previous value and the write
// happen in one transaction, and only the (postID, userID) row is touched.
//
// When the entry actually changes, a reaction_events row is appended in the
// same transaction, tagged with the operation ID carried by ctx.
func (s *Store) SwapUserReaction(ctx context.Context, postID, userID string, next *reaction.Reaction) (*reaction.Reaction, error) {
	var prev *reaction.Reaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		prev, err = selectUserReaction(ctx, tx, postID, userID)
		if err != nil {
			return err
		}

		if !entryChanged(prev, next) {
			return nil
		}

		now := s.nowMillis()
		if next == nil {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM reactions WHERE post_id = ? AND user_id = ?
			`, postID, userID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO reactions (post_id, user_id, kind, label, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(post_id, user_id) DO UPDATE SET
					kind = excluded.kind,
					label = excluded.label,
					updated_at = excluded.updated_at
			`, postID, userID, string(next.Kind), next.Label, now)
		}
		if err != nil {
			return fmt.Errorf("write reaction: %w", err)
		}

		return appendEvent(ctx, tx, reaction.OperationFrom(ctx), postID, userID, prev, next, now)
	})
	if err != nil {
		return nil, fmt.Errorf("swap reaction: %w", err)
	}
	return prev, nil
}

// selectUserReaction reads one entry inside a transaction. Returns nil if absent.
func selectUserReaction(ctx context.Context, tx *sql.Tx, postID, userID string) (*reaction.Reaction, error) {
	var kind, label string
	err := tx.QueryRowContext(ctx, `
		SELECT kind, label FROM reactions WHERE post_id = ? AND user_id = ?
	`, postID, userID).Scan(&kind, &label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reaction: %w", err)
	}
	return &reaction.Reaction{Kind: reaction.Kind(kind), Label: label}, nil
}

// entryChanged reports whether writing next over prev changes the stored row.
func entryChanged(prev, next *reaction.Reaction) bool {
	if prev == nil || next == nil {
		return prev != next
	}
	return *prev != *next
}
