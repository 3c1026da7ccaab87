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

type reactionDoc struct {
	PostID    string    `bson:"postId"`
	UserID    string    `bson:"userId"`
	Kind      string    `bson:"kind"`
	Label     string    `bson:"label"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d reactionDoc) reaction() *reaction.Reaction {
	return &reaction.Reaction{Kind: reaction.Kind(d.Kind), Label: d.Label}
}

// Reactions returns the reaction record for a post.
// Returns an empty (non-nil) record if the post has no reactions.
func (s *Store) Reactions(ctx context.Context, postID string) (reaction.Record, error) {
	cur, err := s.reactions.Find(ctx, bson.M{"postId": postID},
		options.Find().SetSort(bson.D{{Key: "userId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	var docs []reactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}

	record := make(reaction.Record, len(docs))
	for _, d := range docs {
		record[d.UserID] = *d.reaction()
	}
	return record, nil
}

// SwapUserReaction replaces one user's entry and returns the entry it replaced.
// A nil next removes the entry. Only the (postId, userId) document is touched
// and the previous value comes back from the same atomic server operation.
func (s *Store) SwapUserReaction(ctx context.Context, postID, userID string, next *reaction.Reaction) (*reaction.Reaction, error) {
	filter := bson.M{"postId": postID, "userId": userID}

	var prev *reaction.Reaction
	err := s.withRetry(ctx, postID, "swap reaction", isUpsertRace, func() error {
		var res *mongo.SingleResult
		if next == nil {
			res = s.reactions.FindOneAndDelete(ctx, filter)
		} else {
			res = s.reactions.FindOneAndUpdate(ctx, filter,
				bson.M{"$set": bson.M{
					"kind":      string(next.Kind),
					"label":     next.Label,
					"updatedAt": s.now().UTC(),
				}},
				options.FindOneAndUpdate().
					SetUpsert(true).
					SetReturnDocument(options.Before),
			)
		}

		var doc reactionDoc
		err := res.Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			prev = nil
			return nil
		}
		if err != nil {
			return err
		}
		prev = doc.reaction()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("swap reaction: %w", err)
	}
	return prev, nil
}
