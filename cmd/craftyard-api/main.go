package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craftyard/craftyard/internal/api"
	"github.com/craftyard/craftyard/internal/config"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/db"
	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/hub"
	"github.com/craftyard/craftyard/internal/logging"
	"github.com/craftyard/craftyard/internal/metrics"
	"github.com/craftyard/craftyard/internal/model"
	"github.com/craftyard/craftyard/internal/storage"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "bootstrap" {
		bootstrap(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations/core", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	engine, err := deployer.NewDockerEngine(cfg.DockerHost)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create docker client")
	}
	defer engine.Close()

	if err := engine.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("docker daemon is not reachable")
	}
	if err := engine.EnsureNetwork(ctx, cfg.DockerNetwork); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure docker network")
	}

	var store core.BackupStore
	if cfg.BackupsEnabled() {
		s := storage.NewObjectStore(logger, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3BackupBucket)
		if err := s.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure backup bucket")
		}
		store = s
	} else {
		logger.Info().Msg("object storage not configured, backups disabled")
	}

	h := hub.New(engine, logger)
	services := core.NewServices(pool, engine, h, store, *cfg, logger)

	go services.Reconciler.Run(ctx)

	srv := api.NewServer(logger, pool, engine, h, services, cfg)

	httpServer := &http.Server{
		Addr:        cfg.HTTPListenAddr,
		Handler:     srv,
		ReadTimeout: 15 * time.Second,
		// No write timeout: provisioning pulls container images and backup
		// restores stream whole archives, both legitimately run for minutes.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting craftyard API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

// bootstrap creates the first admin account and hands out its API key. Safe
// to re-run: an existing user of the same name just gets another key.
func bootstrap(args []string) {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	name := fs.String("name", "admin", "Name for the admin user")
	keyName := fs.String("key-name", "bootstrap", "Name for the issued API key")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	users := core.NewUserService(pool)
	user, err := users.GetByName(ctx, *name)
	if errors.Is(err, core.ErrNotFound) {
		user, err = users.Create(ctx, *name, model.RoleAdmin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create admin user: %v\n", err)
		os.Exit(1)
	}
	if user.Role != model.RoleAdmin {
		fmt.Fprintf(os.Stderr, "error: user %q exists with role %q, not admin\n", user.Name, user.Role)
		os.Exit(1)
	}

	keys := core.NewAPIKeyService(pool)
	key, rawKey, err := keys.Issue(ctx, user.ID, *keyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to issue API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Admin user ready.\n\n")
	fmt.Printf("  User:   %s (%s)\n", user.Name, user.ID)
	fmt.Printf("  Key ID: %s\n", key.ID)
	fmt.Printf("  Key:    %s\n\n", rawKey)
	fmt.Printf("Save this key, it will not be shown again.\n")
}
