package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/engage/internal/reaction"
)

var (
	like  = reaction.Reaction{Kind: "like", Label: "Like"}
	funny = reaction.Reaction{Kind: "funny", Label: "Funny"}
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(fixedClock),
	}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestPost inserts a post and fails the test on error.
func createTestPost(t *testing.T, s *Store, id string) {
	t.Helper()
	created, err := s.CreatePost(context.Background(), id)
	require.NoError(t, err)
	require.True(t, created)
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}
