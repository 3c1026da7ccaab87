package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/engage/internal/reaction"
)

type postDoc struct {
	ID            string           `bson:"_id"`
	ReactionCount int64            `bson:"reactionCount"`
	CommentCount  int64            `bson:"commentCount"`
	ReactionKinds map[string]int64 `bson:"reactionKinds,omitempty"`
	UpdatedAt     time.Time        `bson:"updatedAt"`
}

func (d postDoc) post() reaction.Post {
	return reaction.Post{
		ID:            d.ID,
		ReactionCount: d.ReactionCount,
		CommentCount:  d.CommentCount,
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

func (d postDoc) tally() reaction.Tally {
	t := reaction.Tally{Total: d.ReactionCount, Kinds: make(map[reaction.Kind]int64)}
	for k, n := range d.ReactionKinds {
		if n > 0 {
			t.Kinds[reaction.Kind(k)] = n
		}
	}
	return t
}

// CreatePost inserts an empty post. Returns created=false if it already existed.
func (s *Store) CreatePost(ctx context.Context, id string) (bool, error) {
	_, err := s.posts.InsertOne(ctx, postDoc{
		ID:            id,
		ReactionKinds: map[string]int64{},
		UpdatedAt:     s.now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create post: %w", err)
	}
	return true, nil
}

// PostExists reports whether a post document exists.
func (s *Store) PostExists(ctx context.Context, id string) (bool, error) {
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("post exists: %w", err)
	}
	return n > 0, nil
}

// ReadPost returns a post. Returns a POST_NOT_FOUND error if missing.
func (s *Store) ReadPost(ctx context.Context, id string) (reaction.Post, error) {
	doc, err := s.readPostDoc(ctx, id)
	if err != nil {
		return reaction.Post{}, err
	}
	return doc.post(), nil
}

// ListPostIDs returns every post ID in ascending order.
func (s *Store) ListPostIDs(ctx context.Context) ([]string, error) {
	cur, err := s.posts.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// ApplyCommentDelta adjusts commentCount atomically, clamped at zero.
func (s *Store) ApplyCommentDelta(ctx context.Context, id string, delta int64) (int64, error) {
	var before postDoc
	err := s.writeOnce(id, "apply comment delta", func() error {
		return s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id},
			mongo.Pipeline{bson.D{{Key: "$set", Value: bson.D{
				{Key: "commentCount", Value: clampedAdd("$commentCount", delta)},
				{Key: "updatedAt", Value: s.now().UTC()},
			}}}},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&before)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, reaction.NewPostNotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("apply comment delta: %w", err)
	}

	next := before.CommentCount + delta
	if next < 0 {
		s.logger.Error("negative comment count clamped",
			"post", id,
			"current", before.CommentCount,
			"delta", delta,
		)
		next = 0
	}
	return next, nil
}

func (s *Store) readPostDoc(ctx context.Context, id string) (postDoc, error) {
	var doc postDoc
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return postDoc{}, reaction.NewPostNotFound(id)
	}
	if err != nil {
		return postDoc{}, fmt.Errorf("read post: %w", err)
	}
	return doc, nil
}

// clampedAdd builds the aggregation expression max(0, field + delta),
// treating a missing field as zero.
func clampedAdd(field string, delta int64) bson.D {
	return bson.D{{Key: "$max", Value: bson.A{
		int64(0),
		bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{field, int64(0)}}},
			delta,
		}}},
	}}}
}
