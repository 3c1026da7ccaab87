package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/engage/internal/reaction"
)

func TestCreatePost_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created, err := s.CreatePost(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreatePost(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPostExists(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "p1")

	ok, err := s.PostExists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.PostExists(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadPost(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "p1")

	post, err := s.ReadPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, reaction.Post{ID: "p1", UpdatedAt: fixedClock()}, post)

	_, err = s.ReadPost(ctx, "p2")
	assert.True(t, reaction.IsPostNotFound(err))
}

func TestListPostIDs(t *testing.T) {
	s := createTestStore(t)
	createTestPost(t, s, "b")
	createTestPost(t, s, "a")

	ids, err := s.ListPostIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestApplyCommentDelta(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "p1")

	n, err := s.ApplyCommentDelta(ctx, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.ApplyCommentDelta(ctx, "p1", -5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "comment count clamps at zero")

	_, err = s.ApplyCommentDelta(ctx, "nope", 1)
	assert.True(t, reaction.IsPostNotFound(err))
}
