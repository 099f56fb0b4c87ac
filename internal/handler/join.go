package handler

import (
	"context"
	"encoding/json"

	"github.com/goevery/liverelay/internal/relay"
)

// RoomRef is the parameter of room-scoped methods. Clients send either the
// bare room id or {"roomId": "..."}.
type RoomRef struct {
	RoomId string `json:"roomId"`
}

func (r *RoomRef) UnmarshalJSON(data []byte) error {
	var roomId string
	if err := json.Unmarshal(data, &roomId); err == nil {
		r.RoomId = roomId

		return nil
	}

	type plain RoomRef

	var ref plain
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}

	*r = RoomRef(ref)

	return nil
}

type ViewerJoinResponse struct {
	RoomId   string `json:"roomId"`
	ViewerId string `json:"viewerId"`
}

type ViewerJoinHandler struct {
	relay *relay.Relay
}

func NewViewerJoinHandler(relay *relay.Relay) *ViewerJoinHandler {
	return &ViewerJoinHandler{
		relay,
	}
}

func (h *ViewerJoinHandler) Handle(ctx context.Context, req RoomRef) (ViewerJoinResponse, error) {
	if err := validateRoomId(req.RoomId); err != nil {
		return ViewerJoinResponse{}, err
	}

	connection, err := requireConnection(ctx)
	if err != nil {
		return ViewerJoinResponse{}, err
	}

	err = h.relay.ViewerJoin(connection.Id, req.RoomId)
	if err != nil {
		return ViewerJoinResponse{}, err
	}

	return ViewerJoinResponse{
		RoomId:   req.RoomId,
		ViewerId: connection.Id,
	}, nil
}
