package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/engage/internal/cache"
	"github.com/roach88/engage/internal/reaction"
)

func TestRecount_CorrectsDrift(t *testing.T) {
	st := createTestStore(t)
	logs := &syncBuffer{}
	svc := createTestService(t, st, nil,
		WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	ctx := context.Background()
	createTestPost(t, st, "p1")

	_, err := svc.React(ctx, "p1", "u1", like)
	require.NoError(t, err)
	_, err = svc.React(ctx, "p1", "u2", funny)
	require.NoError(t, err)

	// Desync the counter behind the service's back.
	require.NoError(t, st.Reset(ctx, "p1", reaction.Tally{Total: 7, Kinds: map[reaction.Kind]int64{"like": 7}}))

	n, err := svc.Recount(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	requireConsistent(t, st, "p1")

	out := logs.String()
	assert.Contains(t, out, "counter drift corrected")
	assert.Contains(t, out, string(reaction.ErrCodeCounterDrift))
}

func TestRecount_NoDriftLogsNothing(t *testing.T) {
	st := createTestStore(t)
	logs := &syncBuffer{}
	svc := createTestService(t, st, nil,
		WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	ctx := context.Background()
	createTestPost(t, st, "p1")

	_, err := svc.React(ctx, "p1", "u1", like)
	require.NoError(t, err)

	n, err := svc.Recount(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotContains(t, logs.String(), "counter drift corrected")
}

func TestRecount_PostNotFound(t *testing.T) {
	st := createTestStore(t)
	svc := createTestService(t, st, nil)

	_, err := svc.Recount(context.Background(), "ghost")
	assert.True(t, reaction.IsPostNotFound(err))
}

func TestCount_ReadsCounter(t *testing.T) {
	st := createTestStore(t)
	svc := createTestService(t, st, nil)
	ctx := context.Background()
	createTestPost(t, st, "p1")

	tally, err := svc.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), tally.Total)

	_, err = svc.React(ctx, "p1", "u1", like)
	require.NoError(t, err)

	tally, err = svc.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tally.Total)
}

// Records in SQLite, aggregate in Redis: an empty cache is rebuilt from records.
func TestRedisCounter_MissRebuildsFromRecords(t *testing.T) {
	st := createTestStore(t)
	mr := miniredis.RunT(t)
	counter, err := cache.New(cache.Config{Addr: mr.Addr()}, cache.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { counter.Close() })

	svc := createTestService(t, st, counter)
	ctx := context.Background()
	createTestPost(t, st, "p1")

	res, err := svc.React(ctx, "p1", "u1", like)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ReactionCount)
	assert.Equal(t, 1, svc.Dirty())

	healed, err := svc.HealPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, healed)

	cached, err := counter.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Total)

	res, err = svc.React(ctx, "p1", "u2", funny)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.ReactionCount)
	assert.Equal(t, 0, svc.Dirty())

	// Cache flushed: Count rebuilds it.
	mr.FlushAll()
	tally, err := svc.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tally.Total)
	_, err = counter.Count(ctx, "p1")
	assert.False(t, errors.Is(err, reaction.ErrCounterMiss))
}
