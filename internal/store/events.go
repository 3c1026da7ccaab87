package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/engage/internal/reaction"
)

// Event is one entry of the reaction audit log.
// An empty PrevKind or NextKind means "no reaction" on that side.
type Event struct {
	Seq        int64         `json:"seq"`
	OpID       string        `json:"opId"`
	PostID     string        `json:"postId"`
	UserID     string        `json:"userId"`
	PrevKind   reaction.Kind `json:"prevKind,omitempty"`
	NextKind   reaction.Kind `json:"nextKind,omitempty"`
	Label      string        `json:"label,omitempty"`
	RecordedAt time.Time     `json:"recordedAt"`
}

// appendEvent writes an audit row inside the caller's transaction.
func appendEvent(ctx context.Context, tx *sql.Tx, opID, postID, userID string, prev, next *reaction.Reaction, at int64) error {
	var prevKind, nextKind, label string
	if prev != nil {
		prevKind = string(prev.Kind)
	}
	if next != nil {
		nextKind = string(next.Kind)
		label = next.Label
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO reaction_events (op_id, post_id, user_id, prev_kind, next_kind, label, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, opID, postID, userID, prevKind, nextKind, label, at)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ReadEvents returns the audit log for a post ordered by seq ASC.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadEvents(ctx context.Context, postID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, op_id, post_id, user_id, prev_kind, next_kind, label, recorded_at
		FROM reaction_events
		WHERE post_id = ?
		ORDER BY seq ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var prevKind, nextKind string
		var at int64
		if err := rows.Scan(&e.Seq, &e.OpID, &e.PostID, &e.UserID, &prevKind, &nextKind, &e.Label, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.PrevKind = reaction.Kind(prevKind)
		e.NextKind = reaction.Kind(nextKind)
		e.RecordedAt = time.UnixMilli(at).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
