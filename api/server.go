// Package api exposes the billing engine's caller-facing operations over
// HTTP using Fiber.
package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/doodhwala/billing"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// DefaultRequestTimeout bounds a single request. Batch routes run long on
// large customer bases, so this is generous.
const DefaultRequestTimeout = 2 * time.Minute

// Server is the HTTP surface over an Engine.
type Server struct {
	app      *fiber.App
	engine   *billing.Engine
	logger   *slog.Logger
	basePath string
	timeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithBasePath mounts all routes under path.
func WithBasePath(path string) Option {
	return func(s *Server) {
		s.basePath = strings.TrimRight(path, "/")
	}
}

// WithLogger sets the request logger. Defaults to the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds a Server with all routes registered.
func New(engine *billing.Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		logger:  engine.Logger(),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleFiberError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestContext)
	s.routes()
	return s
}

// App returns the underlying Fiber app, e.g. for app.Test or mounting.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr, "base_path", s.basePath)
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	r := s.app.Group(s.basePath)

	r.Get("/health", s.health)

	r.Post("/deliveries/schedule", s.scheduleDeliveries)
	r.Patch("/deliveries/:id/status", s.updateDeliveryStatus)

	r.Post("/invoices/generate", s.generateInvoices)
	r.Get("/invoices/:id", s.getInvoice)
	r.Get("/invoices/:id/document", s.renderInvoice)

	r.Post("/payments", s.recordPayment)

	r.Get("/customers/:id/ledger", s.statement)
	r.Get("/customers/:id/ledger/verify", s.verifyLedger)
}

// requestContext assigns a request id, bounds the request with a timeout
// and logs the outcome.
func (s *Server) requestContext(c *fiber.Ctx) error {
	reqID := c.Get(HeaderRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	c.Set(HeaderRequestID, reqID)
	c.Locals("request_id", reqID)

	ctx, cancel := context.WithTimeout(c.UserContext(), s.timeout)
	defer cancel()
	c.SetUserContext(ctx)

	start := time.Now()
	err := c.Next()
	if err != nil {
		// Let the error handler write the response so the status is known.
		if herr := s.handleFiberError(c, err); herr != nil {
			return herr
		}
	}

	s.logger.Info("http request",
		"request_id", reqID,
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"elapsed", time.Since(start),
	)
	return nil
}
