package handler

import (
	"context"

	"github.com/goevery/liverelay/internal/relay"
)

type StartBroadcastingResponse struct {
	RoomId        string `json:"roomId"`
	BroadcasterId string `json:"broadcasterId"`
}

type StartBroadcastingHandler struct {
	relay *relay.Relay
}

func NewStartBroadcastingHandler(relay *relay.Relay) *StartBroadcastingHandler {
	return &StartBroadcastingHandler{
		relay,
	}
}

func (h *StartBroadcastingHandler) Handle(ctx context.Context, req RoomRef) (StartBroadcastingResponse, error) {
	if err := validateRoomId(req.RoomId); err != nil {
		return StartBroadcastingResponse{}, err
	}

	connection, err := requireConnection(ctx)
	if err != nil {
		return StartBroadcastingResponse{}, err
	}

	err = h.relay.StartBroadcasting(connection.Id, req.RoomId)
	if err != nil {
		return StartBroadcastingResponse{}, err
	}

	return StartBroadcastingResponse{
		RoomId:        req.RoomId,
		BroadcasterId: connection.Id,
	}, nil
}

type Notifier interface {
	SendToParticipant(connectionId string, name string, payload any) error
}

type CheckBroadcasterHandler struct {
	relay    *relay.Relay
	notifier Notifier
}

func NewCheckBroadcasterHandler(relay *relay.Relay, notifier Notifier) *CheckBroadcasterHandler {
	return &CheckBroadcasterHandler{
		relay,
		notifier,
	}
}

func (h *CheckBroadcasterHandler) Handle() relay.BroadcasterStatus {
	return h.relay.CheckBroadcaster()
}

// Push answers a check-broadcaster notification with a broadcaster-status
// event on the caller's connection.
func (h *CheckBroadcasterHandler) Push(ctx context.Context) error {
	connection, err := requireConnection(ctx)
	if err != nil {
		return err
	}

	return h.notifier.SendToParticipant(connection.Id, relay.EventBroadcasterStatus, h.Handle())
}
