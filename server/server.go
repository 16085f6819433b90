// Package server exposes a cryptonet.Client over HTTP.
//
// The client holds a single engine session and is not safe for concurrent
// use, so every request that reaches the engine is serialized. Engine
// results are returned to the caller verbatim as JSON.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/kacy/cryptonet"
	"github.com/kacy/cryptonet/internal/logging"
	"github.com/kacy/cryptonet/registry"
)

const requestIDKey = "requestid"

// Options configures the server.
type Options struct {
	// Client runs the engine operations (required).
	Client *cryptonet.Client

	// Registry records enrollments (default: in-memory).
	Registry registry.Store

	// Logger receives server events (default: discard).
	Logger *slog.Logger

	// AccessLog receives one line per request (default: stderr).
	AccessLog io.Writer

	// Settings is used by POST /v1/session when the request has no body.
	Settings string

	// BodyLimit is the maximum request body size in bytes (default: 16 MiB).
	BodyLimit int

	// ReadTimeout is the request read timeout (default: 30s).
	ReadTimeout time.Duration

	// CORSOrigins is a comma-separated list of allowed origins (default: "*").
	CORSOrigins string
}

// Server serves the client API over HTTP.
type Server struct {
	app      *fiber.App
	client   *cryptonet.Client
	registry registry.Store
	logger   *slog.Logger
	settings string

	mu     sync.Mutex
	closed bool
}

// New builds the HTTP application. Call Listen to start serving.
func New(opts Options) (*Server, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}

	s := &Server{
		client:   opts.Client,
		registry: opts.Registry,
		logger:   opts.Logger,
		settings: opts.Settings,
	}
	if s.registry == nil {
		s.registry = registry.NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.settings == "" {
		s.settings = "{}"
	}

	bodyLimit := opts.BodyLimit
	if bodyLimit == 0 {
		bodyLimit = 16 << 20
	}
	readTimeout := opts.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	origins := opts.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = os.Stderr
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "cryptonetd",
		BodyLimit:             bodyLimit,
		ReadTimeout:           readTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(fiberrecover.New())
	s.app.Use(requestID)
	s.app.Use(logger.New(logger.Config{
		Output: accessLog,
		Format: "${time} ${status} - ${latency} ${method} ${path} ${respHeader:X-Request-ID}\n",
	}))
	s.app.Use(cors.New(cors.Config{AllowOrigins: origins}))

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)

	v1 := s.app.Group("/v1")
	v1.Get("/version", s.version)
	v1.Post("/session", s.openSession)
	v1.Delete("/session", s.closeSession)

	v1.Post("/enroll", s.enroll)
	v1.Post("/predict", s.predict)
	v1.Post("/validate", s.validate)

	v1.Get("/users", s.listUsers)
	v1.Get("/users/:puid", s.getUser)
	v1.Delete("/users/:puid", s.deleteUser)

	v1.Post("/compare/embeddings", s.compareEmbeddings)
	v1.Post("/compare/face-embedding", s.compareFaceAndEmbedding)
	v1.Post("/compare/document-face", s.compareDocumentAndFace)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests, waits for in-flight ones and closes the
// engine session if one is open.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return err
	}
	s.closed = true

	if s.client.State() == cryptonet.StateActive {
		if derr := s.client.DeinitializeSession(ctx); derr != nil {
			err = errors.Join(err, derr)
		}
	}
	return err
}

// do runs fn with exclusive access to the client.
func (s *Server) do(fn func() (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fiber.ErrServiceUnavailable
	}
	return fn()
}

func requestID(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)
	c.Locals(requestIDKey, id)
	return c.Next()
}

func requestIDOf(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}
