// Package api exposes the reconciliation service over HTTP using fiber.
//
// Routes:
//
//	PUT    /posts/:postID/reactions   {"reaction": {"kind", "label"} | null}
//	DELETE /posts/:postID/reactions
//	GET    /posts/:postID/reactions
//	POST   /posts/:postID/recount
//	GET    /healthz
//
// The caller is identified by a HS256 bearer token (uid or sub claim) when a
// JWT secret is configured, otherwise by the X-User-ID header.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/engage/internal/reaction"
	"github.com/roach88/engage/internal/reconcile"
)

// DefaultRequestTimeout bounds each request's store work.
const DefaultRequestTimeout = 10 * time.Second

// Reactor is the service surface the HTTP layer drives.
type Reactor interface {
	React(ctx context.Context, postID, userID string, next *reaction.Reaction) (reconcile.Result, error)
	Reactions(ctx context.Context, postID string) (reaction.Record, error)
	Count(ctx context.Context, postID string) (reaction.Tally, error)
	Recount(ctx context.Context, postID string) (int64, error)
}

// Server is the engage HTTP API.
type Server struct {
	svc       Reactor
	app       *fiber.App
	logger    *slog.Logger
	jwtSecret string
	timeout   time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithJWTSecret enables bearer-token authentication.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		s.jwtSecret = secret
	}
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the server and registers its routes.
func New(svc Reactor, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "engage",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
		// Post and user IDs are handed to the service and may outlive the
		// request (the heal queue keeps them).
		Immutable: true,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.healthz)

	posts := s.app.Group("/posts/:postID", s.identify)
	posts.Get("/reactions", s.getReactions)
	posts.Put("/reactions", s.requireUser, s.putReaction)
	posts.Delete("/reactions", s.requireUser, s.deleteReaction)
	posts.Post("/recount", s.recount)
}

// App returns the underlying fiber app. Used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr, "jwt", s.jwtSecret != "")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestContext derives the store context for one request.
func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.timeout)
}
