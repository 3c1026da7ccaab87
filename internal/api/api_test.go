package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/engage/internal/reaction"
	"github.com/roach88/engage/internal/reconcile"
	"github.com/roach88/engage/internal/store"
	"github.com/roach88/engage/internal/testutil"
)

const testSecret = "test-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestServer(t *testing.T, opts ...Option) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"), store.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.CreatePost(context.Background(), "p1")
	require.NoError(t, err)

	svc := reconcile.New(st, st, st, reconcile.WithLogger(discardLogger()))
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return New(svc, opts...), st
}

type response struct {
	status int
	body   map[string]any
}

func do(t *testing.T, s *Server, method, path, body string, headers map[string]string) response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, body: map[string]any{}}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func asUser(uid string) map[string]string {
	return map[string]string{headerUserID: uid}
}

func bearer(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key any) map[string]string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + signed}
}

func TestHealthz(t *testing.T) {
	s, _ := createTestServer(t)
	res := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body["status"])
}

func TestReactionLifecycle(t *testing.T) {
	s, _ := createTestServer(t)

	res := do(t, s, http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"like"}}`, asUser("u1"))
	require.Equal(t, http.StatusOK, res.status, res.body)
	assert.Equal(t, float64(1), res.body["reactionCount"])
	assert.Equal(t, true, res.body["changed"])

	res = do(t, s, http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"like"}}`, asUser("u2"))
	assert.Equal(t, float64(2), res.body["reactionCount"])

	res = do(t, s, http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"funny","label":"Haha"}}`, asUser("u1"))
	assert.Equal(t, float64(2), res.body["reactionCount"])
	assert.Equal(t, map[string]any{"like": float64(1), "funny": float64(1)}, res.body["kinds"])

	res = do(t, s, http.MethodPut, "/posts/p1/reactions", `{"reaction":null}`, asUser("u1"))
	assert.Equal(t, float64(1), res.body["reactionCount"])

	res = do(t, s, http.MethodDelete, "/posts/p1/reactions", "", asUser("u2"))
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, float64(0), res.body["reactionCount"])

	res = do(t, s, http.MethodDelete, "/posts/p1/reactions", "", asUser("u2"))
	assert.Equal(t, false, res.body["changed"])
}

func TestGetReactions(t *testing.T) {
	s, _ := createTestServer(t)
	do(t, s, http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"wow"}}`, asUser("u1"))

	res := do(t, s, http.MethodGet, "/posts/p1/reactions", "", nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, float64(1), res.body["reactionCount"])
	assert.Equal(t, map[string]any{
		"u1": map[string]any{"kind": "wow", "label": "Wow"},
	}, res.body["reactions"])
}

func TestRecountEndpoint(t *testing.T) {
	s, st := createTestServer(t)
	do(t, s, http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"sad"}}`, asUser("u1"))
	require.NoError(t, st.Reset(context.Background(), "p1", reaction.Tally{Total: 9}))

	res := do(t, s, http.MethodPost, "/posts/p1/recount", "", nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, float64(1), res.body["reactionCount"])
}

func TestErrorMapping(t *testing.T) {
	s, _ := createTestServer(t)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"unknown post", http.MethodPut, "/posts/ghost/reactions", `{"reaction":{"kind":"like"}}`, asUser("u1"), 404, "POST_NOT_FOUND"},
		{"unknown post read", http.MethodGet, "/posts/ghost/reactions", "", nil, 404, "POST_NOT_FOUND"},
		{"unknown kind", http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"meh"}}`, asUser("u1"), 400, "INVALID_REACTION"},
		{"missing reaction field", http.MethodPut, "/posts/p1/reactions", `{}`, asUser("u1"), 400, "INVALID_REACTION"},
		{"malformed body", http.MethodPut, "/posts/p1/reactions", `{`, asUser("u1"), 400, "INVALID_REACTION"},
		{"reaction not an object", http.MethodPut, "/posts/p1/reactions", `{"reaction":3}`, asUser("u1"), 400, "INVALID_REACTION"},
		{"anonymous write", http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"like"}}`, nil, 401, "UNAUTHORIZED"},
		{"anonymous delete", http.MethodDelete, "/posts/p1/reactions", "", nil, 401, "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, s, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.status, res.status)
			assert.Equal(t, tt.code, res.body["code"])
		})
	}
}

type failingReactor struct{ Reactor }

func (failingReactor) React(context.Context, string, string, *reaction.Reaction) (reconcile.Result, error) {
	return reconcile.Result{}, reaction.NewStoreUnavailable("p1", "apply delta", errors.New("disk full"))
}

func TestStoreUnavailableIs503(t *testing.T) {
	s := New(failingReactor{}, WithLogger(discardLogger()))
	res := do(t, s, http.MethodDelete, "/posts/p1/reactions", "", asUser("u1"))
	assert.Equal(t, http.StatusServiceUnavailable, res.status)
	assert.Equal(t, "STORE_UNAVAILABLE", res.body["code"])
}

func TestJWTAuth(t *testing.T) {
	s, _ := createTestServer(t, WithJWTSecret(testSecret))
	body := `{"reaction":{"kind":"like"}}`

	t.Run("uid claim", func(t *testing.T) {
		res := do(t, s, http.MethodPut, "/posts/p1/reactions", body,
			bearer(t, jwt.MapClaims{"uid": "u1"}, jwt.SigningMethodHS256, []byte(testSecret)))
		assert.Equal(t, http.StatusOK, res.status, res.body)
	})

	t.Run("sub claim", func(t *testing.T) {
		res := do(t, s, http.MethodPut, "/posts/p1/reactions", body,
			bearer(t, jwt.MapClaims{"sub": "u2"}, jwt.SigningMethodHS256, []byte(testSecret)))
		assert.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, float64(2), res.body["reactionCount"])
	})

	t.Run("wrong secret", func(t *testing.T) {
		res := do(t, s, http.MethodPut, "/posts/p1/reactions", body,
			bearer(t, jwt.MapClaims{"uid": "u3"}, jwt.SigningMethodHS256, []byte("other")))
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		res := do(t, s, http.MethodPut, "/posts/p1/reactions", body,
			bearer(t, jwt.MapClaims{"uid": "u3"}, jwt.SigningMethodHS384, []byte(testSecret)))
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("no identity claim", func(t *testing.T) {
		res := do(t, s, http.MethodPut, "/posts/p1/reactions", body,
			bearer(t, jwt.MapClaims{"role": "admin"}, jwt.SigningMethodHS256, []byte(testSecret)))
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("header ignored when jwt enabled", func(t *testing.T) {
		res := do(t, s, http.MethodPut, "/posts/p1/reactions", body, asUser("u9"))
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		res := do(t, s, http.MethodGet, "/posts/p1/reactions", "", map[string]string{"Authorization": "Basic abc"})
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})
}

func TestCounterFailureHealsRequestedPost(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"), store.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	for _, id := range []string{"p1", "q9"} {
		_, err := st.CreatePost(ctx, id)
		require.NoError(t, err)
	}

	flaky := testutil.NewFlakyCounter(st)
	svc := reconcile.New(st, flaky, st, reconcile.WithLogger(discardLogger()))
	s := New(svc, WithLogger(discardLogger()))

	flaky.FailNext(-1)
	res := do(t, s, http.MethodPut, "/posts/p1/reactions", `{"reaction":{"kind":"like"}}`, asUser("u1"))
	require.Equal(t, http.StatusServiceUnavailable, res.status)
	require.Equal(t, 1, svc.Dirty())

	// later requests reuse the transport buffers
	for i := 0; i < 5; i++ {
		res = do(t, s, http.MethodGet, "/posts/q9/reactions", "", nil)
		require.Equal(t, http.StatusOK, res.status)
	}

	flaky.Heal()
	healed, err := svc.HealPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, healed)
	assert.Equal(t, 0, svc.Dirty())

	tally, err := st.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tally.Total)
}
