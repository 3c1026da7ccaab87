package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/engage/internal/cache"
	"github.com/roach88/engage/internal/config"
	"github.com/roach88/engage/internal/docstore"
	"github.com/roach88/engage/internal/reaction"
	"github.com/roach88/engage/internal/reconcile"
	"github.com/roach88/engage/internal/store"
)

// postAdmin is the post maintenance surface shared by both store drivers.
type postAdmin interface {
	CreatePost(ctx context.Context, id string) (bool, error)
	ReadPost(ctx context.Context, id string) (reaction.Post, error)
	ListPostIDs(ctx context.Context) ([]string, error)
	ApplyCommentDelta(ctx context.Context, id string, delta int64) (int64, error)
}

// recordBackend is what a store driver must provide to back the service.
type recordBackend interface {
	reconcile.RecordStore
	reconcile.Counter
	reconcile.PostRepository
	postAdmin
}

// backend is the wired set of components a command works against.
type backend struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *reconcile.Service
	posts  postAdmin

	// sqlite is set when the sqlite driver is in use; only it keeps history.
	sqlite *store.Store
	// cache is set when counts live in redis.
	cache *cache.Counter

	closers []func() error
}

// openBackend loads configuration and opens the configured store and counter.
func openBackend(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*backend, error) {
	logger := opts.logger(cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid reaction catalog", err)
	}

	b := &backend{cfg: cfg, logger: logger}

	var records recordBackend
	switch cfg.Store.Driver {
	case config.DriverMongo:
		logger.Debug("opening mongo store", "database", cfg.Store.MongoDatabase)
		ds, err := docstore.Open(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase,
			docstore.WithMaxRetries(cfg.Counter.MaxRetries),
			docstore.WithRetryBackoff(cfg.Counter.RetryBackoff),
			docstore.WithLogger(logger),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open mongo store", err)
		}
		b.closers = append(b.closers, ds.Close)
		records = ds
	default:
		logger.Debug("opening sqlite store", "path", cfg.Store.Path)
		st, err := store.Open(cfg.Store.Path,
			store.WithMaxRetries(cfg.Counter.MaxRetries),
			store.WithRetryBackoff(cfg.Counter.RetryBackoff),
			store.WithLogger(logger),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		b.closers = append(b.closers, st.Close)
		b.sqlite = st
		records = st
	}
	b.posts = records

	var counter reconcile.Counter = records
	if cfg.Counter.Driver == config.CounterRedis {
		logger.Debug("connecting to redis", "addr", cfg.Redis.Addr)
		rc, err := cache.New(cfg.Redis, cache.WithLogger(logger))
		if err != nil {
			_ = b.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		b.closers = append(b.closers, rc.Close)
		b.cache = rc
		counter = rc
	}

	b.svc = reconcile.New(records, counter, records,
		reconcile.WithCatalog(catalog),
		reconcile.WithCounterTimeout(cfg.Counter.WriteTimeout),
		reconcile.WithLogger(logger),
	)
	return b, nil
}

// Close releases every opened component in reverse order.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// withBackend opens the backend, runs fn and closes it.
func withBackend(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackend(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			b.logger.Error("error closing backend", "error", closeErr)
		}
	}()
	return fn(ctx, b)
}
