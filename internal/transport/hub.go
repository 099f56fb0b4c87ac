package transport

import (
	"errors"
	"slices"
	"sync"

	"github.com/goevery/liverelay/internal/ierr"
	"go.uber.org/zap"
)

type DisconnectHandler func(connectionId string)

// Hub tracks live connections and the multicast groups they have joined.
type Hub struct {
	logger *zap.Logger
	mu     sync.RWMutex

	connections        map[string]*Connection
	membersByGroup     map[string]map[string]struct{}
	groupsByConnection map[string]map[string]struct{}

	handlersMu         sync.RWMutex
	disconnectHandlers []DisconnectHandler
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:             logger,
		connections:        make(map[string]*Connection),
		membersByGroup:     make(map[string]map[string]struct{}),
		groupsByConnection: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Connect(connection *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[connection.Id] = connection
	h.groupsByConnection[connection.Id] = make(map[string]struct{})
}

func (h *Hub) OnDisconnect(handler DisconnectHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()

	h.disconnectHandlers = append(h.disconnectHandlers, handler)
}

func (h *Hub) JoinRoom(group string, connectionId string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	connectionGroups, ok := h.groupsByConnection[connectionId]
	if !ok {
		return ierr.New(ierr.ErrorCodeStaleHandle, errors.New("connection is no longer live"))
	}

	if _, ok := h.membersByGroup[group]; !ok {
		h.membersByGroup[group] = make(map[string]struct{})
	}

	h.membersByGroup[group][connectionId] = struct{}{}
	connectionGroups[group] = struct{}{}

	return nil
}

func (h *Hub) LeaveRoom(group string, connectionId string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if connectionGroups, ok := h.groupsByConnection[connectionId]; ok {
		delete(connectionGroups, group)
	}

	groupMembers, ok := h.membersByGroup[group]
	if !ok {
		return
	}

	delete(groupMembers, connectionId)
	if len(groupMembers) == 0 {
		delete(h.membersByGroup, group)
	}
}

func (h *Hub) IsMember(group string, connectionId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.membersByGroup[group][connectionId]

	return ok
}

// Members lists the connections of a group, sorted.
func (h *Hub) Members(group string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]string, 0, len(h.membersByGroup[group]))
	for connectionId := range h.membersByGroup[group] {
		members = append(members, connectionId)
	}
	slices.Sort(members)

	return members
}

func (h *Hub) Connected(connectionId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.connections[connectionId]

	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.connections)
}

// SendToParticipant queues an event for one connection. It never blocks; a
// gone or saturated connection yields a StaleHandle error.
func (h *Hub) SendToParticipant(connectionId string, name string, payload any) error {
	h.mu.RLock()

	connection, ok := h.connections[connectionId]
	if !ok {
		h.mu.RUnlock()

		return ierr.New(ierr.ErrorCodeStaleHandle, errors.New("connection is no longer live"))
	}

	delivered := h.trySend(connection, Event{name, payload})

	h.mu.RUnlock()

	if !delivered {
		go h.Disconnect(connectionId)

		return ierr.New(ierr.ErrorCodeStaleHandle, errors.New("connection send queue is full"))
	}

	return nil
}

// SendToRoom queues an event for every member of group except exclude and
// returns how many members it was queued for.
func (h *Hub) SendToRoom(group string, name string, payload any, exclude string) int {
	h.mu.RLock()

	event := Event{name, payload}
	delivered := 0

	var staleConnectionIds []string

	for connectionId := range h.membersByGroup[group] {
		if connectionId == exclude {
			continue
		}

		connection, ok := h.connections[connectionId]
		if !ok {
			continue
		}

		if h.trySend(connection, event) {
			delivered++
		} else {
			staleConnectionIds = append(staleConnectionIds, connectionId)
		}
	}

	h.mu.RUnlock()

	// Disconnect handlers may take other locks held by our caller.
	for _, connectionId := range staleConnectionIds {
		go h.Disconnect(connectionId)
	}

	return delivered
}

// IMPORTANT: It must be called only when a lock is already held.
func (h *Hub) trySend(connection *Connection, event Event) bool {
	select {
	case connection.Send <- event:
		return true
	default:
		h.logger.Warn("connection send queue is full, closing connection",
			zap.String("connectionId", connection.Id),
			zap.String("event", event.Name))

		return false
	}
}

// Disconnect removes the connection from every group, closes its send queue
// and runs the disconnect handlers. Calling it again is a no-op.
func (h *Hub) Disconnect(connectionId string) {
	h.mu.Lock()

	removed := h.disconnectLocked(connectionId)

	h.mu.Unlock()

	if !removed {
		return
	}

	h.handlersMu.RLock()
	handlers := h.disconnectHandlers
	h.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(connectionId)
	}
}

// IMPORTANT: It must be called only when a write lock is already held.
func (h *Hub) disconnectLocked(connectionId string) bool {
	connection, ok := h.connections[connectionId]
	if !ok {
		return false
	}

	for group := range h.groupsByConnection[connectionId] {
		groupMembers, ok := h.membersByGroup[group]
		if !ok {
			panic("inconsistent state: group not found in membersByGroup")
		}

		delete(groupMembers, connectionId)
		if len(groupMembers) == 0 {
			delete(h.membersByGroup, group)
		}
	}

	delete(h.groupsByConnection, connectionId)
	delete(h.connections, connectionId)
	close(connection.Send)

	return true
}
