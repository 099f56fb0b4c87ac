package relay

import (
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/room"
	"go.uber.org/zap"
)

// Reconciler clears registrations of a participant that stopped broadcasting
// or lost its connection, and tells the affected rooms.
type Reconciler struct {
	logger    *zap.Logger
	registry  *room.Registry
	transport Transport
	metrics   *metrics.Collector
}

func NewReconciler(
	logger *zap.Logger,
	registry *room.Registry,
	transport Transport,
	metrics *metrics.Collector,
) *Reconciler {
	return &Reconciler{
		logger,
		registry,
		transport,
		metrics,
	}
}

// ParticipantDisconnected is registered as the hub's disconnect handler.
func (r *Reconciler) ParticipantDisconnected(participantId string) {
	r.reconcile(participantId, "disconnect")
}

func (r *Reconciler) StopBroadcasting(participantId string) []string {
	return r.reconcile(participantId, "stop")
}

func (r *Reconciler) reconcile(participantId string, reason string) []string {
	roomIds := r.registry.RemoveByParticipant(participantId)
	if len(roomIds) == 0 {
		return nil
	}

	r.metrics.SetLiveRooms(r.registry.Len())

	for _, roomId := range roomIds {
		notified := r.transport.SendToRoom(RoomGroup(roomId), EventBroadcasterLeft, BroadcasterLeft{roomId}, participantId)
		r.metrics.BroadcasterLeft()

		r.logger.Info("broadcaster left room",
			zap.String("roomId", roomId),
			zap.String("broadcasterId", participantId),
			zap.String("reason", reason),
			zap.Int("notified", notified))
	}

	return roomIds
}
