package docstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/engage/internal/reaction"
)

// testURIEnv names the variable that points the integration tests at a server.
const testURIEnv = "ENGAGE_TEST_MONGO_URI"

var (
	like  = reaction.Reaction{Kind: "like", Label: "Like"}
	funny = reaction.Reaction{Kind: "funny", Label: "Funny"}
)

// createTestStore opens a store on a throwaway database, or skips the test
// when no MongoDB server is configured.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv(testURIEnv)
	if uri == "" {
		t.Skipf("%s not set; skipping MongoDB integration test", testURIEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name := fmt.Sprintf("engage_test_%d", time.Now().UnixNano())
	s, err := Open(ctx, uri, name,
		WithLogger(discardLogger()),
		WithClock(fixedClock),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func createTestPost(t *testing.T, s *Store, id string) {
	t.Helper()
	created, err := s.CreatePost(context.Background(), id)
	require.NoError(t, err)
	require.True(t, created)
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
