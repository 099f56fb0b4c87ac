package handler

import (
	"context"

	"github.com/goevery/liverelay/internal/relay"
)

type StopBroadcastingResponse struct {
	RoomIds []string `json:"roomIds"`
}

type StopBroadcastingHandler struct {
	reconciler *relay.Reconciler
}

func NewStopBroadcastingHandler(reconciler *relay.Reconciler) *StopBroadcastingHandler {
	return &StopBroadcastingHandler{
		reconciler,
	}
}

// Handle ends every registration of the calling connection. The connection
// itself stays open and keeps its room memberships.
func (h *StopBroadcastingHandler) Handle(ctx context.Context) (StopBroadcastingResponse, error) {
	connection, err := requireConnection(ctx)
	if err != nil {
		return StopBroadcastingResponse{}, err
	}

	roomIds := h.reconciler.StopBroadcasting(connection.Id)
	if roomIds == nil {
		roomIds = []string{}
	}

	return StopBroadcastingResponse{
		RoomIds: roomIds,
	}, nil
}
