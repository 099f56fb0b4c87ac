package room

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Registry maps a room to the participant currently broadcasting in it.
//
// Entries change only through Register and RemoveByParticipant; transport
// membership is never consulted, so an entry may outlive its broadcaster's
// connection until the disconnect is reconciled.
type Registry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	broadcasters map[string]string
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:       logger,
		broadcasters: make(map[string]string),
	}
}

// Register makes participantId the broadcaster of roomId, replacing any
// previous one.
func (r *Registry) Register(roomId string, participantId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced := r.broadcasters[roomId]
	r.broadcasters[roomId] = participantId

	if replaced && previous != participantId {
		r.logger.Info("broadcaster replaced",
			zap.String("roomId", roomId),
			zap.String("previousBroadcasterId", previous),
			zap.String("broadcasterId", participantId))

		return
	}

	r.logger.Info("broadcaster registered",
		zap.String("roomId", roomId),
		zap.String("broadcasterId", participantId))
}

func (r *Registry) Lookup(roomId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participantId, ok := r.broadcasters[roomId]

	return participantId, ok
}

// Route calls fn with the broadcaster of roomId while holding the read lock,
// so no removal can happen between the lookup and fn. fn must not block and
// must not call back into the registry's mutating methods.
func (r *Registry) Route(roomId string, fn func(broadcasterId string)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participantId, ok := r.broadcasters[roomId]
	if !ok {
		return false
	}

	fn(participantId)

	return true
}

func (r *Registry) AnyBroadcaster() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.broadcasters) > 0
}

// FirstRoom returns the lexicographically smallest live room.
func (r *Registry) FirstRoom() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first string
	found := false
	for roomId := range r.broadcasters {
		if !found || roomId < first {
			first = roomId
			found = true
		}
	}

	return first, found
}

// RemoveByParticipant deletes every entry whose broadcaster is participantId
// and returns the affected rooms in sorted order.
func (r *Registry) RemoveByParticipant(participantId string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var roomIds []string
	for roomId, broadcasterId := range r.broadcasters {
		if broadcasterId == participantId {
			roomIds = append(roomIds, roomId)
		}
	}

	for _, roomId := range roomIds {
		delete(r.broadcasters, roomId)
	}

	slices.Sort(roomIds)

	if len(roomIds) > 0 {
		r.logger.Info("broadcaster removed",
			zap.String("broadcasterId", participantId),
			zap.Strings("roomIds", roomIds))
	}

	return roomIds
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.broadcasters)
}
