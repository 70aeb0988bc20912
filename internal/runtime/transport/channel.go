package transport

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/opsflow/internal/runtime/config"
)

var (
	GoChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		pubSub := gochannel.NewGoChannel(cfg, logger)
		return pubSub, pubSub
	}
)

// channelTransport is process-lifetime only: nothing is persisted and a
// subscriber never sees messages published before it subscribed. Publish
// returns once every subscriber acked, so a single publisher per topic gets
// strictly sequential delivery.
func channelTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	pub, sub := GoChannelFactory(gochannel.Config{
		OutputChannelBuffer:            conf.BusBuffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	return Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}
