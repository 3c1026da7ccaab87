package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/engage/internal/reaction"
)

func TestCount_MissingPost(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Count(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, reaction.IsPostNotFound(err))
}

func TestApplyDelta_Sequence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "p1")

	tally, err := s.ApplyDelta(ctx, "p1", reaction.ComputeDelta(nil, &like))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tally.Total)

	tally, err = s.ApplyDelta(ctx, "p1", reaction.ComputeDelta(nil, &like))
	require.NoError(t, err)
	assert.Equal(t, int64(2), tally.Total)

	tally, err = s.ApplyDelta(ctx, "p1", reaction.ComputeDelta(&like, &funny))
	require.NoError(t, err)
	assert.Equal(t, int64(2), tally.Total)
	assert.Equal(t, map[reaction.Kind]int64{"like": 1, "funny": 1}, tally.Kinds)

	stored, err := s.Count(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, tally.Equal(stored))

	post, err := s.ReadPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), post.ReactionCount)
}

func TestApplyDelta_ClampsAtZero(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "p1")

	tally, err := s.ApplyDelta(ctx, "p1", reaction.ComputeDelta(&like, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), tally.Total)
	assert.Empty(t, tally.Kinds)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM post_reaction_kinds WHERE post_id='p1'").Scan(&n))
	assert.Equal(t, 0, n, "zero buckets are not stored")
}

func TestApplyDelta_MissingPost(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ApplyDelta(context.Background(), "nope", reaction.ComputeDelta(nil, &like))
	require.Error(t, err)
	assert.True(t, reaction.IsPostNotFound(err))
}

func TestApplyDelta_ConcurrentNoLostUpdates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "p1")

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyDelta(ctx, "p1", reaction.ComputeDelta(nil, &like))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tally, err := s.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), tally.Total)
	assert.Equal(t, int64(n), tally.Kinds["like"])
}

func TestReset(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "p1")

	_, err := s.ApplyDelta(ctx, "p1", reaction.ComputeDelta(nil, &like))
	require.NoError(t, err)

	want := reaction.Tally{Total: 3, Kinds: map[reaction.Kind]int64{"funny": 3}}
	require.NoError(t, s.Reset(ctx, "p1", want))

	got, err := s.Count(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "got %+v", got)

	err = s.Reset(ctx, "nope", want)
	assert.True(t, reaction.IsPostNotFound(err))
}

func TestWithRetry_GivesUpOnContention(t *testing.T) {
	s := createTestStore(t, WithMaxRetries(3), WithRetryBackoff(time.Millisecond))

	calls := 0
	err := s.withRetry(context.Background(), "p1", "apply delta", func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, reaction.IsStoreUnavailable(err))
}

func TestWithRetry_RecoversAfterContention(t *testing.T) {
	s := createTestStore(t, WithMaxRetries(3), WithRetryBackoff(time.Millisecond))

	calls := 0
	err := s.withRetry(context.Background(), "p1", "apply delta", func() error {
		calls++
		if calls < 2 {
			return sqlite3.Error{Code: sqlite3.ErrLocked}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_OtherErrorsAreNotRetried(t *testing.T) {
	s := createTestStore(t)
	boom := errors.New("boom")

	calls := 0
	err := s.withRetry(context.Background(), "p1", "apply delta", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	s := createTestStore(t, WithMaxRetries(5), WithRetryBackoff(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.withRetry(ctx, "p1", "apply delta", func() error {
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	require.Error(t, err)
	assert.True(t, reaction.IsStoreUnavailable(err))
	assert.ErrorIs(t, err, context.Canceled)
}
