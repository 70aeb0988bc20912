// Package transport builds the pub/sub pair that backs the event bus.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/opsflow/internal/runtime/config"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Factory abstracts how the bus obtains its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the in-process Go channel transport.
func DefaultFactory() Factory {
	return FactoryFunc(func(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		if conf == nil {
			return Transport{}, errors.New("config is required")
		}
		return channelTransport(conf, logger)
	})
}
