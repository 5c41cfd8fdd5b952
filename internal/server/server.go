// Package server exposes event ingress and channel administration over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"golang.org/x/time/rate"

	"opsnotify/internal/notify"
	"opsnotify/internal/storage"
	logx "opsnotify/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Addr  string
	Token string
	// RatePerSec throttles POST /v1/events; 0 disables the limit.
	RatePerSec float64
	Burst      int
}

// Notifier is the dispatch entry point.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) (notify.DispatchResult, error)
}

// Health reports liveness details for /healthz. ok=false answers 503.
type Health func() (ok bool, detail any)

type Deps struct {
	Notifier Notifier
	Store    storage.Store
	Metrics  http.Handler
	Health   Health
	// Ingested is called once per POST /v1/events with "ok", "invalid" or "error".
	Ingested func(source, result string)
	Log      logx.Logger
	Now      func() time.Time
}

type Server struct {
	cfg     Config
	deps    Deps
	log     logx.Logger
	limiter *rate.Limiter
	app     *fiber.App
}

func New(cfg Config, deps Deps) *Server {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Ingested == nil {
		deps.Ingested = func(string, string) {}
	}
	s := &Server{cfg: cfg, deps: deps, log: deps.Log}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RatePerSec))
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "opsnotify",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             1 << 20,
		DisableStartupMessage: true,
		// Params and headers end up in stores and logs after the handler returns.
		Immutable:    true,
		ErrorHandler: s.errorHandler,
	})
	s.routes()
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() {
	s.app.Use(requestID(), s.accessLog())

	s.app.Get("/healthz", s.healthz)
	if s.deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.Metrics))
	}

	v1 := s.app.Group("/v1", bearerAuth(s.cfg.Token))
	v1.Post("/events", s.throttle(), s.postEvent)
	v1.Get("/channels", s.listChannels)
	v1.Get("/channels/:id", s.getChannel)
	v1.Put("/channels/:id", s.putChannel)
	v1.Delete("/channels/:id", s.deleteChannel)
}

// Serve listens on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()), logx.Bool("auth", s.cfg.Token != ""))

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(sctx); err != nil {
		s.log.Warn("http shutdown", logx.Err(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		s.log.Error("request failed", logx.String("path", c.Path()), logx.Int("status", code), logx.Err(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
