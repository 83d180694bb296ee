// Package app wires the broker's services together.
package app

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/pubsubd/internal/config"
	"github.com/nfrund/pubsubd/internal/events"
	"github.com/nfrund/pubsubd/internal/logging"
	"github.com/nfrund/pubsubd/internal/server"
	"github.com/nfrund/pubsubd/internal/topics"
)

// Injector is the service container returned by NewInjector.
type Injector = do.Injector

// Tracing is the tracer used for broker events and its flush function.
type Tracing struct {
	Tracer   trace.Tracer
	Shutdown func(context.Context) error
}

// NewInjector registers every broker service. Services are built lazily on
// first use; ctx bounds tracing setup and the event subscriptions.
func NewInjector(ctx context.Context, cfg *config.Config) Injector {
	i := do.New()

	do.ProvideValue(i, cfg)

	do.Provide(i, func(i do.Injector) (*Tracing, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tracer, shutdown, err := events.SetupOTel(ctx, cfg.Tracing())
		if err != nil {
			return nil, err
		}
		return &Tracing{Tracer: tracer, Shutdown: shutdown}, nil
	})

	do.Provide(i, func(i do.Injector) (*events.WatermillBridge, error) {
		tracing := do.MustInvoke[*Tracing](i)
		return events.NewWatermillBridge(events.WithTracer(tracing.Tracer)), nil
	})

	do.Provide(i, func(i do.Injector) (events.Publisher, error) {
		bus := do.MustInvoke[*events.WatermillBridge](i)
		tracing := do.MustInvoke[*Tracing](i)
		return events.NewTracingPublisher(bus, tracing.Tracer), nil
	})

	do.Provide(i, func(i do.Injector) (events.Subscriber, error) {
		return do.MustInvoke[*events.WatermillBridge](i), nil
	})

	do.Provide(i, func(i do.Injector) (*events.Stats, error) {
		stats := events.NewStats()
		if err := stats.Start(ctx, do.MustInvoke[events.Subscriber](i)); err != nil {
			return nil, err
		}
		return stats, nil
	})

	do.Provide(i, func(i do.Injector) (*topics.Registry, error) {
		cfg := do.MustInvoke[*config.Config](i)
		publisher := do.MustInvoke[events.Publisher](i)
		return topics.NewRegistry(
			topics.WithResubscribePolicy(cfg.Policy()),
			topics.WithTopicCreatedHook(func(name string) {
				err := events.Publish(ctx, publisher, events.TopicTopicCreated, "", events.TopicCreated{Topic: name})
				if err != nil {
					slog.Error("Failed to publish topic created event", "topic", name, logging.Err(err))
				}
			}),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*server.Server, error) {
		return server.New(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*topics.Registry](i),
			do.MustInvoke[*events.Stats](i),
			do.MustInvoke[events.Publisher](i),
		), nil
	})

	return i
}
