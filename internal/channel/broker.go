package channel

import (
	"context"
)

type Broker interface {
	Publish(ctx context.Context, message Message) error
	Close() error
}

// Fanout is the local delivery side of a broker.
type Fanout interface {
	SendToRoom(group string, name string, payload any, exclude string) int
}

// LocalBroker delivers messages to the subscribers connected to this process.
type LocalBroker struct {
	fanout Fanout
}

func NewLocalBroker(fanout Fanout) *LocalBroker {
	return &LocalBroker{
		fanout,
	}
}

func (b *LocalBroker) Publish(ctx context.Context, message Message) error {
	b.fanout.SendToRoom(message.Channel, EventMessage, message, "")

	return nil
}

func (b *LocalBroker) Close() error {
	return nil
}
