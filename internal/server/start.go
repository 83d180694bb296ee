package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/nfrund/pubsubd/internal/logging"
)

// Start binds the listeners and serves until ctx is cancelled or a listener
// fails, then shuts down within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	if err := s.tcp.Listen(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		if err := s.tcp.Serve(s.baseCtx); err != nil {
			errCh <- err
		}
	}()

	if s.Cfg.HTTPAddr != "" {
		go func() {
			s.logger.Info("Admin HTTP listening", "addr", s.Cfg.HTTPAddr)
			if err := s.E.Start(s.Cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown requested")
	case runErr = <-errCh:
		s.logger.Error("Listener failed", logging.Err(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
