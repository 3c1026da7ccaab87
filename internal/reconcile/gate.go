package reconcile

import (
	"context"

	"github.com/roach88/engage/internal/reaction"
)

// PostRepository is the post existence source the gate consults.
type PostRepository interface {
	PostExists(ctx context.Context, postID string) (bool, error)
}

// Gate confirms a post exists before any reaction is accepted.
type Gate struct {
	posts PostRepository
}

// NewGate returns a gate over posts.
func NewGate(posts PostRepository) *Gate {
	return &Gate{posts: posts}
}

// EnsureExists performs one existence read. A missing post is POST_NOT_FOUND;
// a repository failure is STORE_UNAVAILABLE. No retries.
func (g *Gate) EnsureExists(ctx context.Context, postID string) error {
	ok, err := g.posts.PostExists(ctx, postID)
	if err != nil {
		if reaction.IsPostNotFound(err) {
			return err
		}
		return reaction.NewStoreUnavailable(postID, "check post", err)
	}
	if !ok {
		return reaction.NewPostNotFound(postID)
	}
	return nil
}
