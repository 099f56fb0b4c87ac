package handler

import (
	"context"
)

type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

type UnsubscribeResponse struct {
	Success bool `json:"success"`
}

type UnsubscribeHandlerInterface interface {
	Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error)
}

type UnsubscribeHandler struct {
	channelValidator *ChannelValidator
	subscriptions    Subscriptions
}

func NewUnsubscribeHandler(
	channelValidator *ChannelValidator,
	subscriptions Subscriptions,
) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		channelValidator,
		subscriptions,
	}
}

func (h *UnsubscribeHandler) Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error) {
	_, _, err := h.channelValidator.Validate(req.Channel)
	if err != nil {
		return UnsubscribeResponse{}, err
	}

	connection, err := requireConnection(ctx)
	if err != nil {
		return UnsubscribeResponse{}, err
	}

	h.subscriptions.LeaveRoom(req.Channel, connection.Id)

	return UnsubscribeResponse{
		Success: true,
	}, nil
}
