package handler

import (
	"context"
	"time"
)

type SubscribeRequest struct {
	Channel string `json:"channel"`
}

type SubscribeResponse struct {
	SubscriptionId string    `json:"subscriptionId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type SubscribeHandlerInterface interface {
	Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error)
}

// Subscriptions is the hub side of topic membership.
type Subscriptions interface {
	JoinRoom(group string, connectionId string) error
	LeaveRoom(group string, connectionId string)
}

type SubscribeHandler struct {
	channelValidator *ChannelValidator
	channelAccess    *ChannelAccess
	subscriptions    Subscriptions
}

func NewSubscribeHandler(
	channelValidator *ChannelValidator,
	channelAccess *ChannelAccess,
	subscriptions Subscriptions,
) *SubscribeHandler {
	return &SubscribeHandler{
		channelValidator,
		channelAccess,
		subscriptions,
	}
}

func (h *SubscribeHandler) Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error) {
	kind, roomId, err := h.channelValidator.Validate(req.Channel)
	if err != nil {
		return SubscribeResponse{}, err
	}

	connection, err := requireConnection(ctx)
	if err != nil {
		return SubscribeResponse{}, err
	}

	if err := checkTopicAllowed(connection, req.Channel); err != nil {
		return SubscribeResponse{}, err
	}

	err = h.channelAccess.CanSubscribe(connection.GetAuthentication(), kind, roomId)
	if err != nil {
		return SubscribeResponse{}, err
	}

	err = h.subscriptions.JoinRoom(req.Channel, connection.Id)
	if err != nil {
		return SubscribeResponse{}, err
	}

	return SubscribeResponse{
		SubscriptionId: connection.Id,
		Timestamp:      time.Now(),
	}, nil
}
