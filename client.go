package cryptonet

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kacy/cryptonet/engine"
	"github.com/kacy/cryptonet/imaging"
	"github.com/kacy/cryptonet/internal/logging"
	"github.com/kacy/cryptonet/internal/telemetry"
)

// Client owns one engine session and runs operations against it.
//
// A Client is not safe for concurrent use. Callers that share one must
// serialize access themselves (the server package does).
type Client struct {
	engine  engine.Engine
	logger  *slog.Logger
	metrics *telemetry.Recorder
	size    int

	state  SessionState
	handle engine.Handle
}

// Config holds optional client settings.
type Config struct {
	// Logger receives debug records for every engine call (default: discard).
	Logger *slog.Logger

	// Meter creates the engine call instruments (default: no-op).
	Meter metric.Meter

	// Resolution is the side length images are resized to before they reach
	// the engine (default: imaging.CanonicalSize).
	Resolution int
}

// New creates a client over eng. The client starts without a session.
func New(eng engine.Engine, cfg Config) (*Client, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}

	size := cfg.Resolution
	if size == 0 {
		size = imaging.CanonicalSize
	}
	if size < 0 {
		return nil, fmt.Errorf("invalid resolution %d", size)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	metrics, err := telemetry.NewRecorder(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Client{
		engine:  eng,
		logger:  logger,
		metrics: metrics,
		size:    size,
	}, nil
}

// Version returns the engine library version.
func (c *Client) Version() string {
	return c.engine.Version()
}

// State returns the session state.
func (c *Client) State() SessionState {
	return c.state
}

// InitializeSession opens an engine session from a JSON settings blob.
//
// It fails with ErrSessionActive if a session is already open. A closed
// client can be initialized again.
func (c *Client) InitializeSession(ctx context.Context, settings string) error {
	const op = engine.OpInitializeSession

	if c.state == StateActive {
		return failed(op, ErrSessionActive)
	}
	if err := ctx.Err(); err != nil {
		return failed(op, err)
	}

	start := time.Now()
	h, err := c.engine.InitializeSession(ctx, []byte(settings))
	c.observe(ctx, op, 0, time.Since(start), err)
	if err != nil {
		return failed(op, fmt.Errorf("failed to initialize session: %w", err))
	}

	c.handle = h
	c.state = StateActive
	return nil
}

// DeinitializeSession closes the engine session. Without an active session
// it returns a NoSession error and does not touch the engine.
//
// The client is Closed afterwards even if the engine reports an error.
func (c *Client) DeinitializeSession(ctx context.Context) error {
	const op = engine.OpDeinitializeSession

	if c.state != StateActive {
		return noSession(op)
	}

	h := c.handle
	c.handle = 0
	c.state = StateClosed

	start := time.Now()
	err := c.engine.DeinitializeSession(ctx, h)
	c.observe(ctx, op, 0, time.Since(start), err)
	if err != nil {
		return failed(op, fmt.Errorf("failed to deinitialize session: %w", err))
	}
	return nil
}

// call is one engine invocation with prepared inputs.
type call func(ctx context.Context, h engine.Handle, config []byte, frames []engine.Frame) (engine.Output, error)

// run checks the session, canonicalizes images, encodes the config and
// invokes fn. The engine is not reached unless every input could be
// prepared. The output, if any, is released exactly once before run returns.
func (c *Client) run(ctx context.Context, op engine.Op, images []image.Image, encode func() ([]byte, error), fn call) (string, error) {
	if c.state != StateActive {
		return "", noSession(op)
	}

	frames := make([]engine.Frame, len(images))
	for i, img := range images {
		f, err := imaging.Canonicalize(img, c.size)
		if err != nil {
			return "", failed(op, fmt.Errorf("failed to prepare image %d: %w", i, err))
		}
		frames[i] = f
	}

	config := engine.EmptyConfig
	if encode != nil {
		var err error
		if config, err = encode(); err != nil {
			return "", failed(op, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", failed(op, err)
	}

	start := time.Now()
	out, err := fn(ctx, c.handle, config, frames)
	elapsed := time.Since(start)
	if out != nil {
		defer out.Release()
	}
	if err != nil {
		c.observe(ctx, op, 0, elapsed, err)
		return "", failed(op, err)
	}

	text, ok := out.Text()
	if !ok {
		c.observe(ctx, op, out.Status(), elapsed, ErrNoJSON)
		return "", noJSON(op)
	}

	c.observe(ctx, op, out.Status(), elapsed, nil)
	return text, nil
}

func (c *Client) observe(ctx context.Context, op engine.Op, status int32, elapsed time.Duration, err error) {
	rec := telemetry.Call{Op: string(op), Status: status, Elapsed: elapsed}
	if err != nil {
		rec.Failed = true
		rec.FailKind = KindOperationFailed.String()
		if errors.Is(err, ErrNoJSON) {
			rec.FailKind = KindNoJSON.String()
		}
	}
	c.metrics.Record(ctx, rec)

	c.logger.DebugContext(ctx, "engine call",
		"op", string(op),
		"status", status,
		"elapsed", elapsed,
		"error", err,
	)
}
