package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/pubsubd/internal/config"
	"github.com/nfrund/pubsubd/internal/events"
	"github.com/nfrund/pubsubd/internal/logging"
	"github.com/nfrund/pubsubd/internal/session"
	"github.com/nfrund/pubsubd/internal/topics"
	"github.com/nfrund/pubsubd/internal/transport"
)

// Server owns the broker's listeners: the TCP line protocol endpoint and the
// echo HTTP server carrying admin routes and the WebSocket endpoint.
type Server struct {
	E        *echo.Echo
	Cfg      *config.Config
	Registry *topics.Registry
	Stats    *events.Stats

	publisher events.Publisher
	tcp       *transport.TCPServer
	ws        *transport.WebSocketServer
	logger    *slog.Logger

	// baseCtx is handed to every session and cancelled on shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a Server. Sessions report lifecycle events to publisher.
func New(cfg *config.Config, registry *topics.Registry, stats *events.Stats, publisher events.Publisher) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Cfg:       cfg,
		Registry:  registry,
		Stats:     stats,
		publisher: publisher,
		logger:    slog.Default().With("component", "server"),
		baseCtx:   ctx,
		cancel:    cancel,
	}

	transportOpts := []transport.Option{
		transport.WithWriteTimeout(cfg.WriteTimeout),
		transport.WithMaxLineBytes(cfg.MaxLineBytes),
	}
	s.tcp = transport.NewTCPServer(cfg.ListenAddr, s.serveSession, transportOpts...)
	s.ws = transport.NewWebSocketServer(s.serveSession, transportOpts...)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	setupErrorHandling(e)
	s.E = e

	s.RegisterRoutes()
	return s
}

// serveSession runs one protocol session to completion.
func (s *Server) serveSession(ctx context.Context, conn session.Conn) {
	sess := session.New(conn, s.Registry,
		session.WithEvents(s.publisher),
		session.WithLogger(s.logger),
	)
	if err := sess.Run(ctx); err != nil {
		s.logger.Debug("Session ended with error", "session_id", sess.ID(), logging.Err(err))
	}
}

// TCPAddr returns the bound protocol listener address once started.
func (s *Server) TCPAddr() string {
	if addr := s.tcp.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// setupErrorHandling logs unhandled handler errors with a stack trace before
// echo renders the response.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			slog.Error("Internal Server Error (Unhandled)",
				logging.Err(err),
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"stack_trace", string(debug.Stack()),
			)
			err = echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}
