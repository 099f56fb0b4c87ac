package relay

import (
	"encoding/json"
	"errors"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/room"
	"go.uber.org/zap"
)

const (
	EventViewerJoined      = "viewer-joined"
	EventViewerSignal      = "viewer-signal"
	EventBroadcasterSignal = "broadcaster-signal"
	EventBroadcasterLeft   = "broadcaster-left"
	EventBroadcasterStatus = "broadcaster-status"
)

const (
	DirectionToViewer      = "broadcaster-to-viewer"
	DirectionToBroadcaster = "viewer-to-broadcaster"
)

// RoomGroup is the multicast group of a room's signaling members.
func RoomGroup(roomId string) string {
	return "room:" + roomId
}

type Transport interface {
	JoinRoom(group string, connectionId string) error
	Connected(connectionId string) bool
	SendToParticipant(connectionId string, name string, payload any) error
	SendToRoom(group string, name string, payload any, exclude string) int
}

type ViewerJoined struct {
	ViewerId string `json:"viewerId"`
}

type ViewerSignal struct {
	Signal   json.RawMessage `json:"signal"`
	ViewerId string          `json:"viewerId"`
}

type BroadcasterSignal struct {
	Signal json.RawMessage `json:"signal"`
}

type BroadcasterLeft struct {
	RoomId string `json:"roomId"`
}

type BroadcasterStatus struct {
	Exists bool   `json:"exists"`
	RoomId string `json:"roomId,omitempty"`
}

// Relay routes negotiation payloads between a room's broadcaster and its
// viewers. Payloads are forwarded untouched and delivery is best effort: an
// unreachable target is logged and dropped.
type Relay struct {
	logger    *zap.Logger
	registry  *room.Registry
	transport Transport
	metrics   *metrics.Collector
}

func NewRelay(
	logger *zap.Logger,
	registry *room.Registry,
	transport Transport,
	metrics *metrics.Collector,
) *Relay {
	return &Relay{
		logger,
		registry,
		transport,
		metrics,
	}
}

func (r *Relay) StartBroadcasting(participantId string, roomId string) error {
	err := r.transport.JoinRoom(RoomGroup(roomId), participantId)
	if err != nil {
		return err
	}

	r.registry.Register(roomId, participantId)

	// A disconnect landing between the join and the registration has already
	// been reconciled, so nothing else would remove this entry.
	if !r.transport.Connected(participantId) {
		r.registry.RemoveByParticipant(participantId)
		r.metrics.SetLiveRooms(r.registry.Len())

		return ierr.New(ierr.ErrorCodeStaleHandle, errors.New("connection is no longer live"))
	}

	r.metrics.SetLiveRooms(r.registry.Len())

	return nil
}

func (r *Relay) CheckBroadcaster() BroadcasterStatus {
	roomId, ok := r.registry.FirstRoom()

	return BroadcasterStatus{
		Exists: ok,
		RoomId: roomId,
	}
}

// ViewerJoin adds the viewer to the room and, when the room is live, tells
// the broadcaster so it can start negotiating.
func (r *Relay) ViewerJoin(viewerId string, roomId string) error {
	err := r.transport.JoinRoom(RoomGroup(roomId), viewerId)
	if err != nil {
		return err
	}

	r.registry.Route(roomId, func(broadcasterId string) {
		r.send(broadcasterId, EventViewerJoined, ViewerJoined{viewerId}, DirectionToBroadcaster)
	})

	return nil
}

func (r *Relay) ForwardToViewer(broadcasterId string, viewerId string, signal json.RawMessage) {
	r.send(viewerId, EventBroadcasterSignal, BroadcasterSignal{signal}, DirectionToViewer)
}

func (r *Relay) ForwardToBroadcaster(viewerId string, roomId string, signal json.RawMessage) {
	routed := r.registry.Route(roomId, func(broadcasterId string) {
		r.send(broadcasterId, EventViewerSignal, ViewerSignal{signal, viewerId}, DirectionToBroadcaster)
	})

	if !routed {
		r.logger.Debug("no broadcaster for room, dropping signal",
			zap.String("roomId", roomId),
			zap.String("viewerId", viewerId))

		r.metrics.SignalDropped(DirectionToBroadcaster)
	}
}

func (r *Relay) send(targetId string, event string, payload any, direction string) {
	err := r.transport.SendToParticipant(targetId, event, payload)
	if err != nil {
		r.logger.Debug("signal target unreachable, dropping",
			zap.String("targetId", targetId),
			zap.String("event", event),
			zap.String("code", string(ierr.CodeOf(err))))

		r.metrics.SignalDropped(direction)

		return
	}

	r.metrics.SignalRelayed(direction)
}
