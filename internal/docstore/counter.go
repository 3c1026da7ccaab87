package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/engage/internal/reaction"
)

// Count returns the stored aggregate for a post.
func (s *Store) Count(ctx context.Context, postID string) (reaction.Tally, error) {
	doc, err := s.readPostDoc(ctx, postID)
	if err != nil {
		return reaction.Tally{}, err
	}
	return doc.tally(), nil
}

// ApplyDelta adds d to the post's aggregate in one pipeline update.
// Every field is clamped at zero on the server; a clamp is logged as an
// error because it means the aggregate had already drifted.
func (s *Store) ApplyDelta(ctx context.Context, postID string, d reaction.Delta) (reaction.Tally, error) {
	set := bson.D{
		{Key: "reactionCount", Value: clampedAdd("$reactionCount", d.Total)},
	}
	kinds := make([]string, 0, len(d.Kinds))
	for k := range d.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		field := "reactionKinds." + k
		set = append(set, bson.E{Key: field, Value: clampedAdd("$"+field, d.Kinds[reaction.Kind(k)])})
	}
	set = append(set, bson.E{Key: "updatedAt", Value: s.now().UTC()})

	var before postDoc
	err := s.writeOnce(postID, "apply delta", func() error {
		return s.posts.FindOneAndUpdate(ctx, bson.M{"_id": postID},
			mongo.Pipeline{bson.D{{Key: "$set", Value: set}}},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&before)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return reaction.Tally{}, reaction.NewPostNotFound(postID)
	}
	if err != nil {
		return reaction.Tally{}, fmt.Errorf("apply delta: %w", err)
	}

	next, clamped := before.tally().Apply(d)
	if clamped {
		s.logger.Error("negative reaction count clamped",
			"post", postID,
			"current", before.ReactionCount,
			"delta", d.Total,
		)
	}
	return next, nil
}

// Reset overwrites the aggregate with t. Used by recount.
func (s *Store) Reset(ctx context.Context, postID string, t reaction.Tally) error {
	kinds := make(map[string]int64, len(t.Kinds))
	for k, n := range t.Kinds {
		if n > 0 {
			kinds[string(k)] = n
		}
	}

	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$set": bson.M{
		"reactionCount": t.Total,
		"reactionKinds": kinds,
		"updatedAt":     s.now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	if res.MatchedCount == 0 {
		return reaction.NewPostNotFound(postID)
	}
	return nil
}
