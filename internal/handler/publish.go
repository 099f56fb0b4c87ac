package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goevery/liverelay/internal/auth"
	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/transport"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type PublishRequest struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

type PublishHandlerInterface interface {
	Handle(ctx context.Context, req PublishRequest) (channel.Message, error)
}

type PublishHandler struct {
	channelValidator *ChannelValidator
	channelAccess    *ChannelAccess
	broker           channel.Broker
	metrics          *metrics.Collector
}

func NewPublishHandler(
	channelValidator *ChannelValidator,
	channelAccess *ChannelAccess,
	broker channel.Broker,
	metrics *metrics.Collector,
) *PublishHandler {
	return &PublishHandler{
		channelValidator,
		channelAccess,
		broker,
		metrics,
	}
}

// Handle publishes from either a websocket connection or an API-key
// authenticated HTTP request.
func (h *PublishHandler) Handle(ctx context.Context, req PublishRequest) (channel.Message, error) {
	kind, roomId, err := h.channelValidator.Validate(req.Channel)
	if err != nil {
		return channel.Message{}, err
	}

	if len(req.Payload) == 0 {
		return channel.Message{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("payload is required"))
	}

	var authentication *auth.Authentication

	connection, ok := transport.ConnectionFromContext(ctx)
	if ok {
		if err := checkTopicAllowed(connection, req.Channel); err != nil {
			return channel.Message{}, err
		}

		authentication = connection.GetAuthentication()
	} else {
		authentication, ok = auth.AuthenticationFromContext(ctx)
		if !ok {
			return channel.Message{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
		}
	}

	err = h.channelAccess.CanPublish(authentication, kind, roomId)
	if err != nil {
		return channel.Message{}, err
	}

	message := channel.Message{
		Id:         gonanoid.Must(),
		CreateTime: time.Now(),
		Channel:    req.Channel,
		Payload:    req.Payload,
	}

	err = h.broker.Publish(ctx, message)
	if err != nil {
		return channel.Message{}, err
	}

	h.metrics.MessagePublished(string(kind))

	return message, nil
}
