package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "liverelay:topic:"

type redisEnvelope struct {
	InstanceId string  `json:"instanceId"`
	Message    Message `json:"message"`
}

// RedisBroker delivers locally and mirrors every message through Redis so
// subscribers connected to other relay instances receive it too.
type RedisBroker struct {
	logger     *zap.Logger
	client     *redis.Client
	local      *LocalBroker
	instanceId string
}

func NewRedisBroker(logger *zap.Logger, client *redis.Client, local *LocalBroker) *RedisBroker {
	return &RedisBroker{
		logger:     logger,
		client:     client,
		local:      local,
		instanceId: gonanoid.Must(),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, message Message) error {
	err := b.local.Publish(ctx, message)
	if err != nil {
		return err
	}

	data, err := json.Marshal(redisEnvelope{b.instanceId, message})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = b.client.Publish(ctx, redisKeyPrefix+message.Channel, data).Err()
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// Run relays messages published by other instances until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, redisKeyPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			b.deliver(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (b *RedisBroker) deliver(ctx context.Context, redisChannel string, payload string) {
	var envelope redisEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		b.logger.Warn("failed to unmarshal redis message",
			zap.String("redisChannel", redisChannel),
			zap.Error(err))

		return
	}

	if envelope.InstanceId == b.instanceId {
		return
	}

	if envelope.Message.Channel != strings.TrimPrefix(redisChannel, redisKeyPrefix) {
		b.logger.Warn("redis message channel mismatch",
			zap.String("redisChannel", redisChannel),
			zap.String("channel", envelope.Message.Channel))

		return
	}

	_ = b.local.Publish(ctx, envelope.Message)
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
