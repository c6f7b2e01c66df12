package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/okian/songsort/internal/adapters/http/api"
	"github.com/okian/songsort/internal/adapters/http/swagger"
	"github.com/okian/songsort/internal/adapters/repository"
	service "github.com/okian/songsort/internal/app"
	"github.com/okian/songsort/internal/catalog"
	"github.com/okian/songsort/internal/config"
	"github.com/okian/songsort/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		_, _ = os.Stderr.WriteString("songsort: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(context.Background(), "store close failed", logger.Error(err))
		}
	}()

	svc := service.New(store,
		service.WithLogger(log.Named("service")),
		service.WithEloK(cfg.EloK),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithImportConcurrency(cfg.ImportConcurrency),
		service.WithIdleTimeout(cfg.SessionIdleTimeout),
		service.WithReapInterval(cfg.SessionReapInterval),
		service.WithJournal(cfg.JournalQueueSize, cfg.JournalWorkers, cfg.JournalRetention),
	)

	if cfg.DemoSeedFile != "" {
		if err := seedDemo(ctx, svc, cfg.DemoSeedFile, cfg.DemoOwner, log); err != nil {
			return err
		}
	}

	apiServer := api.NewServer(svc,
		api.WithAllowedOrigins(cfg.AllowedOrigins()...),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithLogger(log.Named("http")),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(swagger.Register),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	sup := newSupervisor(log, cfg.ShutdownTimeout)
	sup.Add(newHTTPService(srv, cfg.ShutdownTimeout, log))
	sup.Add(svc.JournalPool())
	sup.Add(svc.Reaper())
	sup.Add(newMetricsUpdater(svc))

	log.Info(ctx, "starting songsort",
		logger.String("addr", cfg.Addr),
		logger.String("store", cfg.StoreDriver))

	err = sup.Serve(ctx)
	log.Info(context.Background(), "server stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

// openStore opens the configured rating store behind a circuit breaker.
func openStore(cfg *config.Config, log logger.Logger) (repository.Store, error) {
	var base repository.Store
	switch cfg.StoreDriver {
	case config.StoreBadger:
		bs, err := repository.NewBadgerStore(
			repository.WithDir(cfg.BadgerDir),
			repository.WithBadgerLogger(log.Named("badger")),
		)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		base = bs
	default:
		base = repository.NewMemoryStore(repository.WithReplicaLag(cfg.ReplicaLag))
	}
	return repository.NewBreakerStore(base,
		repository.WithBreakerName(cfg.StoreDriver),
		repository.WithMaxFailures(cfg.BreakerMaxFailures),
		repository.WithOpenTimeout(cfg.BreakerOpenTimeout),
		repository.WithBreakerLogger(log.Named("breaker")),
	), nil
}

// seedDemo replaces the demo owner's collections with the ones in path.
func seedDemo(ctx context.Context, svc *service.Service, path, ownerOverride string, log logger.Logger) error {
	seed, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}
	owner := seed.Owner
	if ownerOverride != "" {
		owner = ownerOverride
	}

	existing, err := svc.ListCollections(ctx, owner)
	if err != nil {
		return fmt.Errorf("list demo collections: %w", err)
	}
	for _, c := range existing {
		if err := svc.DeleteCollection(ctx, owner, c.ID); err != nil {
			return fmt.Errorf("delete demo collection %s: %w", c.ID, err)
		}
	}
	for _, imp := range seed.Collections {
		res, err := svc.ImportCollection(ctx, owner, imp)
		if err != nil {
			return fmt.Errorf("import demo collection %q: %w", imp.Name, err)
		}
		log.Info(ctx, "demo collection imported",
			logger.String("owner", owner),
			logger.String("collection", res.Collection.ID),
			logger.Int("items", len(res.Collection.Items)))
	}
	return nil
}

// newSupervisor returns the root supervisor. Its events go to log.
func newSupervisor(log logger.Logger, shutdownTimeout time.Duration) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: log.Named("supervisor").Slog()}
	return suture.New("songsort", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}
