package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/roach88/engage/internal/reaction"
)

const (
	postsCollection     = "posts"
	reactionsCollection = "reactions"
)

// Defaults for transient-failure handling.
const (
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 20 * time.Millisecond
)

// Store is the MongoDB reaction store. It implements the reaction record
// store, the aggregate counter and the post repository.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	posts        *mongo.Collection
	reactions    *mongo.Collection
	logger       *slog.Logger
	now          func() time.Time
	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries sets how many attempts a counter write gets on transient errors.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between counter write attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Store) {
		s.retryBackoff = d
	}
}

// WithLogger sets the logger used for clamp and retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for updatedAt fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to MongoDB, verifies the connection and ensures indexes.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	if database == "" {
		return nil, fmt.Errorf("docstore: database name is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetRetryWrites(true))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:       client,
		db:           db,
		posts:        db.Collection(postsCollection),
		reactions:    db.Collection(reactionsCollection),
		logger:       slog.Default(),
		now:          time.Now,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// ensureIndexes creates the (postId, userId) uniqueness constraint that
// guarantees one reaction document per user per post.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.reactions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "postId", Value: 1},
			{Key: "userId", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("uniq_post_user"),
	})
	return err
}

// withRetry retries fn while retryable(err) holds, then reports
// STORE_UNAVAILABLE.
func (s *Store) withRetry(ctx context.Context, postID, op string, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}

		s.logger.Warn("mongodb transient error, retrying",
			"post", postID,
			"op", op,
			"attempt", attempt,
			"error", err,
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

// writeOnce runs a non-idempotent write (an $add) a single time, since a
// timeout may hide a committed write. The driver's retryable
// writes re-issue it safely; anything left surfaces as STORE_UNAVAILABLE and
// the post is recounted.
func (s *Store) writeOnce(postID, op string, fn func() error) error {
	err := fn()
	if err != nil && isTransient(err) {
		s.logger.Warn("mongodb write outcome unknown, not retrying",
			"post", postID,
			"op", op,
			"error", err,
		)
		return reaction.NewStoreUnavailable(postID, op, err)
	}
	return err
}

// isUpsertRace reports a concurrent upsert losing on the unique index. The
// losing write did not commit, so it is safe to re-issue.
func isUpsertRace(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// isTransient reports errors that leave the outcome of a write unknown:
// timeouts, network failures and upsert races on the unique index.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err) || mongo.IsDuplicateKeyError(err)
}
