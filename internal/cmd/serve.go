package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/kacy/cryptonet/internal/config"
	"github.com/kacy/cryptonet/registry"
	"github.com/kacy/cryptonet/server"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve opens the engine, optionally initializes a session and serves the
matching API until interrupted. On SIGINT or SIGTERM in-flight requests are
drained and the session is closed before the process exits.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("addr", "", "listen address (default :8080)")
	f.String("registry", "", "enrollment registry: memory or redis")
	f.String("redis-addr", "", "Redis address for the redis registry")
	f.Bool("init-on-start", true, "open the engine session at startup")

	_ = v.BindPFlag("server.addr", f.Lookup("addr"))
	_ = v.BindPFlag("registry.kind", f.Lookup("registry"))
	_ = v.BindPFlag("registry.redis_addr", f.Lookup("redis-addr"))
	_ = v.BindPFlag("engine.init_on_start", f.Lookup("init-on-start"))
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd, otel.Meter("github.com/kacy/cryptonet"))
	if err != nil {
		return err
	}
	cfg := rt.cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		_ = rt.Close(context.Background())
		return err
	}
	defer closeStore()

	settings, err := cfg.Engine.SettingsJSON()
	if err != nil {
		_ = rt.Close(context.Background())
		return err
	}
	if cfg.Engine.InitOnStart {
		if err := rt.client.InitializeSession(ctx, settings); err != nil {
			_ = rt.Close(context.Background())
			return err
		}
		rt.logger.Info("engine session initialized", "engine", cfg.Engine.Kind, "version", rt.client.Version())
	}

	srv, err := server.New(server.Options{
		Client:      rt.client,
		Registry:    store,
		Logger:      rt.logger,
		AccessLog:   cmd.ErrOrStderr(),
		Settings:    settings,
		BodyLimit:   cfg.Server.BodyLimitMB << 20,
		ReadTimeout: cfg.Server.ReadTimeout(),
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		_ = rt.Close(context.Background())
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Server.Addr)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		rt.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Shutdown closes the session, so rt.Close only releases the engine.
	err = errors.Join(serveErr, srv.Shutdown(shutdownCtx), rt.Close(shutdownCtx))
	if err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func openRegistry(ctx context.Context, cfg config.RegistryConfig) (registry.Store, func(), error) {
	switch cfg.Kind {
	case config.RegistryRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		store, err := registry.NewRedisStore(registry.RedisConfig{
			Client:    client,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL(),
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return registry.NewMemoryStore(), func() {}, nil
	}
}
