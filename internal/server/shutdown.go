package server

import (
	"context"
	"errors"
)

// Shutdown stops accepting connections, closes every live session and waits
// for their teardown, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	var errs []error
	if err := s.tcp.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.ws.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}
