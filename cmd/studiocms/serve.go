package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/studiocms"
	"github.com/eringen/studiocms/assethost"
	"github.com/eringen/studiocms/auth"
	"github.com/eringen/studiocms/backend"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			logger.Fatal("invalid configuration", zap.Error(err))
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

func runServer(ctx context.Context) error {
	store, err := openBackend(ctx)
	if err != nil {
		return err
	}

	opts := []studiocms.Option{
		studiocms.WithLogger(logger),
		studiocms.WithBackend(store),
		studiocms.WithVerifier(newVerifier()),
	}
	if asset := cfg.Cloudinary.Asset(); asset.Configured() {
		opts = append(opts, studiocms.WithUploader(assethost.New(asset)))
	} else {
		logger.Warn("asset host credentials missing, uploads are disabled")
	}
	if cfg.Redis.URL != "" {
		client, err := studiocms.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			store.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts,
			studiocms.WithCache(studiocms.NewRedisCache(client, cfg.Redis.Prefix, cfg.CacheTTL, logger)),
			studiocms.WithLimiter(studiocms.NewRedisLimiter(client, cfg.Redis.Prefix, cfg.LeadRateLimit, cfg.LeadRateWindow, logger)),
			studiocms.WithCloser(client.Close),
		)
		logger.Info("using redis for cache and rate limits")
	}

	app, err := studiocms.New(cfg, opts...)
	if err != nil {
		store.Close()
		return err
	}
	defer app.Close()
	return app.Start(ctx)
}

// openBackend connects to the configured database. SQL stores are migrated
// first when auto-migrate is on.
func openBackend(ctx context.Context) (backend.Backend, error) {
	if cfg.Database.Driver == studiocms.DriverSupabase {
		logger.Info("using hosted database", zap.String("url", cfg.Supabase.URL))
		client := &http.Client{Timeout: 15 * time.Second}
		return backend.NewPostgREST(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, client), nil
	}

	store, err := backend.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	if cfg.Database.AutoMigrate {
		if err := backend.NewMigrator(store, logger).Up(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	logger.Info("using sql database", zap.String("driver", cfg.Database.Driver))
	return store, nil
}

// newVerifier prefers the hosted auth service and falls back to checking
// tokens against the shared JWT secret.
func newVerifier() auth.Verifier {
	if cfg.Supabase.URL != "" {
		key := cfg.Supabase.ServiceRoleKey
		if key == "" {
			key = cfg.Public.SupabaseAnonKey
		}
		return auth.NewSupabaseVerifier(cfg.Supabase.URL, key, &http.Client{Timeout: 10 * time.Second})
	}
	return auth.NewJWTVerifier(cfg.Supabase.JWTSecret)
}
