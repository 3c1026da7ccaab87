package reconcile

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/engage/internal/reaction"
	"github.com/roach88/engage/internal/store"
	"github.com/roach88/engage/internal/testutil"
)

var (
	like  = &reaction.Reaction{Kind: "like", Label: "Like"}
	funny = &reaction.Reaction{Kind: "funny", Label: "Funny"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// createTestStore opens a SQLite store that serves as record store, counter
// and post repository.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	clock := testutil.NewStepClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), time.Second)
	st, err := store.Open(filepath.Join(t.TempDir(), "engage.db"),
		store.WithLogger(discardLogger()),
		store.WithClock(clock.Now),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createTestService(t *testing.T, st *store.Store, counter Counter, opts ...Option) *Service {
	t.Helper()
	if counter == nil {
		counter = st
	}
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithIDGenerator(testutil.NewSequenceIDGenerator("op")),
	}, opts...)
	return New(st, counter, st, opts...)
}

func createTestPost(t *testing.T, st *store.Store, id string) {
	t.Helper()
	_, err := st.CreatePost(context.Background(), id)
	require.NoError(t, err)
}

// requireConsistent asserts that the counter equals the record tally.
func requireConsistent(t *testing.T, st *store.Store, postID string) reaction.Tally {
	t.Helper()
	ctx := context.Background()
	record, err := st.Reactions(ctx, postID)
	require.NoError(t, err)
	cached, err := st.Count(ctx, postID)
	require.NoError(t, err)
	require.True(t, record.Tally().Equal(cached),
		"counter %+v != records %+v", cached, record.Tally())
	return cached
}
