package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/engage/internal/reaction"
)

// DefaultCounterTimeout bounds a counter write once the swap has committed.
const DefaultCounterTimeout = 5 * time.Second

// RecordStore holds each post's per-user reaction entries.
type RecordStore interface {
	Reactions(ctx context.Context, postID string) (reaction.Record, error)

	// SwapUserReaction writes one entry (nil removes it) and returns the entry
	// it replaced, read in the same atomic step.
	SwapUserReaction(ctx context.Context, postID, userID string, next *reaction.Reaction) (*reaction.Reaction, error)
}

// Counter holds each post's aggregate. ApplyDelta must be a serialized
// read-modify-write that clamps at zero.
type Counter interface {
	Count(ctx context.Context, postID string) (reaction.Tally, error)
	ApplyDelta(ctx context.Context, postID string, d reaction.Delta) (reaction.Tally, error)
	Reset(ctx context.Context, postID string, t reaction.Tally) error
}

// Result is the outcome of one React call.
type Result struct {
	ReactionCount int64                   `json:"reactionCount"`
	Kinds         map[reaction.Kind]int64 `json:"kinds"`

	// Previous is the entry the call replaced, nil if the user had none.
	Previous *reaction.Reaction `json:"previous,omitempty"`

	// Changed reports whether the aggregate moved (non-zero delta).
	Changed bool `json:"changed"`
}

// Service is the reconciliation protocol over a record store and a counter.
//
// Thread-safety: all methods are safe for concurrent use.
type Service struct {
	records        RecordStore
	counter        Counter
	gate           *Gate
	catalog        *reaction.Catalog
	ids            IDGenerator
	logger         *slog.Logger
	counterTimeout time.Duration

	userLocks *keyedMutex
	postLocks *keyedRWMutex
	dirty     *dirtySet
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator sets the operation ID source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithCatalog sets the accepted reaction kinds. Defaults to reaction.DefaultCatalog().
func WithCatalog(c *reaction.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithCounterTimeout bounds the detached counter write.
func WithCounterTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.counterTimeout = d
		}
	}
}

// New creates a Service. records and counter may be the same backend.
func New(records RecordStore, counter Counter, posts PostRepository, opts ...Option) *Service {
	s := &Service{
		records:        records,
		counter:        counter,
		gate:           NewGate(posts),
		catalog:        reaction.DefaultCatalog(),
		ids:            UUIDv7Generator{},
		logger:         slog.Default(),
		counterTimeout: DefaultCounterTimeout,
		userLocks:      newKeyedMutex(),
		postLocks:      newKeyedRWMutex(),
		dirty:          newDirtySet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the accepted reaction kinds.
func (s *Service) Catalog() *reaction.Catalog {
	return s.catalog
}

// asUnavailable passes typed errors through and wraps anything else as
// STORE_UNAVAILABLE.
func asUnavailable(postID, userID, op string, err error) error {
	if reaction.CodeOf(err) != "" {
		return err
	}
	e := reaction.NewStoreUnavailable(postID, op, err)
	e.UserID = userID
	return e
}

func resultFrom(t reaction.Tally, prev *reaction.Reaction, changed bool) Result {
	kinds := make(map[reaction.Kind]int64, len(t.Kinds))
	for k, n := range t.Kinds {
		if n > 0 {
			kinds[k] = n
		}
	}
	return Result{
		ReactionCount: t.Total,
		Kinds:         kinds,
		Previous:      prev,
		Changed:       changed,
	}
}
