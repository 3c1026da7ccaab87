package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/engage/internal/reaction"
)

// CreatePost inserts an empty post. Returns created=false if it already existed.
func (s *Store) CreatePost(ctx context.Context, id string) (created bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, reaction_count, comment_count, updated_at)
		VALUES (?, 0, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, s.nowMillis())
	if err != nil {
		return false, fmt.Errorf("create post: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create post: rows affected: %w", err)
	}
	return n > 0, nil
}

// PostExists reports whether a post row exists.
func (s *Store) PostExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("post exists: %w", err)
	}
	return true, nil
}

// ReadPost returns a post row. Returns a POST_NOT_FOUND error if missing.
func (s *Store) ReadPost(ctx context.Context, id string) (reaction.Post, error) {
	var p reaction.Post
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reaction_count, comment_count, updated_at
		FROM posts
		WHERE id = ?
	`, id).Scan(&p.ID, &p.ReactionCount, &p.CommentCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return reaction.Post{}, reaction.NewPostNotFound(id)
	}
	if err != nil {
		return reaction.Post{}, fmt.Errorf("read post: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return p, nil
}

// ListPostIDs returns every post ID in ascending order.
// Used by maintenance sweeps that recount all posts.
func (s *Store) ListPostIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM posts ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return ids, nil
}

// ApplyCommentDelta adjusts comment_count with the same clamped,
// retried read-modify-write the reaction counter uses.
func (s *Store) ApplyCommentDelta(ctx context.Context, id string, delta int64) (int64, error) {
	var next int64
	err := s.withRetry(ctx, id, "apply comment delta", func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var current int64
			err := tx.QueryRowContext(ctx, `SELECT comment_count FROM posts WHERE id = ?`, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return reaction.NewPostNotFound(id)
			}
			if err != nil {
				return fmt.Errorf("read comment count: %w", err)
			}

			next = current + delta
			if next < 0 {
				s.logger.Error("negative comment count clamped",
					"post", id,
					"current", current,
					"delta", delta,
				)
				next = 0
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE posts SET comment_count = ?, updated_at = ? WHERE id = ?
			`, next, s.nowMillis(), id)
			if err != nil {
				return fmt.Errorf("write comment count: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
