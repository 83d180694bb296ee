package app

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/nfrund/pubsubd/internal/config"
	"github.com/nfrund/pubsubd/internal/events"
	"github.com/nfrund/pubsubd/internal/server"
	"github.com/nfrund/pubsubd/internal/topics"
)

// Dependencies holds the core services the broker runs with.
// It is resolved from the injector by the serve command.
type Dependencies struct {
	Config     *config.Config
	Publisher  events.Publisher
	Subscriber events.Subscriber
	Registry   *topics.Registry
	Stats      *events.Stats
	Server     *server.Server

	tracing *Tracing
}

// Resolve pulls every service out of the injector.
func Resolve(i Injector) (*Dependencies, error) {
	deps := &Dependencies{}
	var err error
	if deps.Config, err = do.Invoke[*config.Config](i); err != nil {
		return nil, err
	}
	if deps.tracing, err = do.Invoke[*Tracing](i); err != nil {
		return nil, err
	}
	if deps.Publisher, err = do.Invoke[events.Publisher](i); err != nil {
		return nil, err
	}
	if deps.Subscriber, err = do.Invoke[events.Subscriber](i); err != nil {
		return nil, err
	}
	if deps.Registry, err = do.Invoke[*topics.Registry](i); err != nil {
		return nil, err
	}
	if deps.Stats, err = do.Invoke[*events.Stats](i); err != nil {
		return nil, err
	}
	if deps.Server, err = do.Invoke[*server.Server](i); err != nil {
		return nil, err
	}
	return deps, nil
}

// Close releases the event bus and flushes pending spans.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.Publisher != nil {
		errs = append(errs, d.Publisher.Close())
	}
	if d.tracing != nil {
		errs = append(errs, d.tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
