package transport

import (
	"context"

	"github.com/nfrund/pubsubd/internal/session"
	"github.com/nfrund/pubsubd/internal/topics"
)

// sessionHandler runs a real protocol session on every accepted connection.
func sessionHandler(registry *topics.Registry) Handler {
	return func(ctx context.Context, conn session.Conn) {
		_ = session.New(conn, registry).Run(ctx)
	}
}
