package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/kacy/cryptonet"
	"github.com/kacy/cryptonet/engine"
	"github.com/kacy/cryptonet/engine/native"
	"github.com/kacy/cryptonet/engine/wasm"
	"github.com/kacy/cryptonet/internal/config"
	"github.com/kacy/cryptonet/internal/logging"
)

type closableEngine interface {
	engine.Engine
	Close(ctx context.Context) error
}

// openEngine is a variable so tests can substitute a fake.
var openEngine = func(ctx context.Context, cfg config.EngineConfig) (closableEngine, error) {
	switch cfg.Kind {
	case config.EngineNative:
		e, err := native.Open()
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EngineWASM:
		e, err := wasm.OpenFile(ctx, cfg.WASMPath)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
}

// runtime is what every engine-backed command needs.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	engine closableEngine
	client *cryptonet.Client

	logCloser io.Closer
}

// setup loads the config and opens the logger, engine and client. meter may
// be nil.
func setup(cmd *cobra.Command, meter metric.Meter) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(logging.Config{
		Level:        cfg.Logging.Level,
		File:         cfg.Logging.File,
		RotationTime: cfg.Logging.RotationTime(),
		MaxAge:       cfg.Logging.MaxAge(),
	})
	if err != nil {
		return nil, err
	}

	eng, err := openEngine(cmd.Context(), cfg.Engine)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to open %s engine: %w", cfg.Engine.Kind, err)
	}

	client, err := cryptonet.New(eng, cryptonet.Config{
		Logger:     logger,
		Meter:      meter,
		Resolution: cfg.Engine.Resolution,
	})
	if err != nil {
		_ = eng.Close(cmd.Context())
		_ = closer.Close()
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		engine:    eng,
		client:    client,
		logCloser: closer,
	}, nil
}

// openSession initializes the client with the configured settings.
func (r *runtime) openSession(ctx context.Context) error {
	settings, err := r.cfg.Engine.SettingsJSON()
	if err != nil {
		return err
	}
	return r.client.InitializeSession(ctx, settings)
}

// Close deinitializes an open session, then releases the engine and log file.
func (r *runtime) Close(ctx context.Context) error {
	var err error
	if r.client.State() == cryptonet.StateActive {
		err = r.client.DeinitializeSession(ctx)
	}
	if cerr := r.engine.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := r.logCloser.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// oneShot runs fn inside a fresh session and prints its result.
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, c *cryptonet.Client) (string, error)) (err error) {
	rt, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer func() {
		if cerr := rt.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := rt.openSession(ctx); err != nil {
		return err
	}
	result, err := fn(ctx, rt.client)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
