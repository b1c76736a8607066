// Package echoapi is the REST backend of the school site and its admin panel.
package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/core/user"
	tokensvc "github.com/trezcool/schoolsite/services/tokens"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    *user.Service
		ContentSvc *content.Service
		MailSvc    core.EmailService
		Denylist   tokensvc.Denylist

		// Health reports the state of the backing services on /health. Optional.
		Health         func(ctx context.Context) error
		DisableReqLogs bool
	}

	Server struct {
		addr     string
		deps     *Deps
		app      *echo.Echo
		tokens   *TokenIssuer
		metrics  *metrics
		shutdown chan os.Signal
		errors   chan error
	}
)

// NewServer builds the server listening on addr. A nil shutdown channel is created
// and notified on SIGINT and SIGTERM.
func NewServer(addr string, shutdown chan os.Signal, deps *Deps) *Server {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	}
	s := &Server{
		addr:     addr,
		deps:     deps,
		app:      echo.New(),
		tokens:   NewTokenIssuer(deps.Conf),
		metrics:  newMetrics(),
		shutdown: shutdown,
		errors:   make(chan error, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.AllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.app.Use(s.metrics.middleware)

	s.app.GET("/", home)
	s.app.GET("/health", s.health)
	s.app.GET("/metrics", s.metrics.handler())
	if conf.Media.Backend == "" || conf.Media.Backend == "local" {
		s.app.Static(conf.Media.BaseURL, conf.Media.Dir)
	}

	api := s.app.Group("/api")
	jwt := newJWTMiddleware(s.tokens, s.deps.Denylist)

	registerAuthAPI(api, jwt, s.tokens, s.deps)
	registerUserAPI(api, jwt, s.deps.UserSvc)
	registerContentAPI(api, jwt, s.deps.ContentSvc, conf.Media.MaxUploadBytes)
	registerContactAPI(api, s.deps.MailSvc, conf)
}

// Start blocks until the server stops. Errors other than a graceful stop are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Tokens exposes the token issuer, used by tests to sign in users.
func (s *Server) Tokens() *TokenIssuer { return s.tokens }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the school website API!")
}

func (s *Server) health(ctx echo.Context) error {
	status := http.StatusOK
	body := echo.Map{"status": "ok"}
	if s.deps.Health != nil {
		if err := s.deps.Health(ctx.Request().Context()); err != nil {
			s.deps.Logger.Warn(fmt.Sprintf("health check failed: %v", err), err)
			status = http.StatusServiceUnavailable
			body = echo.Map{"status": "unavailable"}
		}
	}
	return ctx.JSON(status, body)
}
