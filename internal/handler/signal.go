package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/relay"
)

type BroadcasterSignalRequest struct {
	Signal   json.RawMessage `json:"signal"`
	ViewerId string          `json:"viewerId"`
}

type ViewerSignalRequest struct {
	Signal json.RawMessage `json:"signal"`
	RoomId string          `json:"roomId"`
}

type SignalResponse struct {
	Success bool `json:"success"`
}

type SignalHandler struct {
	relay *relay.Relay
}

func NewSignalHandler(relay *relay.Relay) *SignalHandler {
	return &SignalHandler{
		relay,
	}
}

// HandleBroadcasterSignal forwards a broadcaster's answer or candidate to one
// viewer. Success only means the signal was accepted; an unreachable viewer
// is not reported.
func (h *SignalHandler) HandleBroadcasterSignal(ctx context.Context, req BroadcasterSignalRequest) (SignalResponse, error) {
	if len(req.Signal) == 0 {
		return SignalResponse{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("signal is required"))
	}

	if req.ViewerId == "" {
		return SignalResponse{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("viewerId is required"))
	}

	connection, err := requireConnection(ctx)
	if err != nil {
		return SignalResponse{}, err
	}

	h.relay.ForwardToViewer(connection.Id, req.ViewerId, req.Signal)

	return SignalResponse{
		Success: true,
	}, nil
}

func (h *SignalHandler) HandleViewerSignal(ctx context.Context, req ViewerSignalRequest) (SignalResponse, error) {
	if len(req.Signal) == 0 {
		return SignalResponse{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("signal is required"))
	}

	if err := validateRoomId(req.RoomId); err != nil {
		return SignalResponse{}, err
	}

	connection, err := requireConnection(ctx)
	if err != nil {
		return SignalResponse{}, err
	}

	h.relay.ForwardToBroadcaster(connection.Id, req.RoomId, req.Signal)

	return SignalResponse{
		Success: true,
	}, nil
}
