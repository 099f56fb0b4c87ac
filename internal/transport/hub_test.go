package transport

import (
	"sync"
	"testing"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func connect(hub *Hub, queueSize int) *Connection {
	connection := NewConnection(queueSize, "")
	hub.Connect(connection)

	return connection
}

func TestHub_SendToRoom(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sender := connect(hub, 4)
	member := connect(hub, 4)
	outsider := connect(hub, 4)

	require.NoError(t, hub.JoinRoom("chat:r1", sender.Id))
	require.NoError(t, hub.JoinRoom("chat:r1", member.Id))
	require.NoError(t, hub.JoinRoom("chat:r2", outsider.Id))

	delivered := hub.SendToRoom("chat:r1", "message", "hello", sender.Id)

	assert.Equal(t, 1, delivered)
	assert.Empty(t, sender.Send)
	assert.Empty(t, outsider.Send)
	require.Len(t, member.Send, 1)
	assert.Equal(t, Event{"message", "hello"}, <-member.Send)
}

func TestHub_JoinRoomUnknownConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())

	err := hub.JoinRoom("room:r1", "missing")

	assert.True(t, ierr.Is(err, ierr.ErrorCodeStaleHandle))
	assert.False(t, hub.IsMember("room:r1", "missing"))
}

func TestHub_LeaveRoom(t *testing.T) {
	hub := NewHub(zap.NewNop())
	connection := connect(hub, 4)

	require.NoError(t, hub.JoinRoom("emoji:r1", connection.Id))
	assert.Equal(t, []string{connection.Id}, hub.Members("emoji:r1"))

	hub.LeaveRoom("emoji:r1", connection.Id)
	hub.LeaveRoom("emoji:r1", connection.Id)

	assert.False(t, hub.IsMember("emoji:r1", connection.Id))
	assert.Empty(t, hub.Members("emoji:r1"))
	assert.Zero(t, hub.SendToRoom("emoji:r1", "message", nil, ""))
}

func TestHub_SendToParticipant(t *testing.T) {
	hub := NewHub(zap.NewNop())
	connection := connect(hub, 4)

	require.NoError(t, hub.SendToParticipant(connection.Id, "viewer-joined", "v1"))
	assert.Equal(t, Event{"viewer-joined", "v1"}, <-connection.Send)

	err := hub.SendToParticipant("missing", "viewer-joined", "v1")
	assert.True(t, ierr.Is(err, ierr.ErrorCodeStaleHandle))
}

func TestHub_FullQueueDisconnects(t *testing.T) {
	hub := NewHub(zap.NewNop())
	connection := connect(hub, 1)

	disconnected := make(chan string, 1)
	hub.OnDisconnect(func(connectionId string) {
		disconnected <- connectionId
	})

	require.NoError(t, hub.SendToParticipant(connection.Id, "first", nil))

	err := hub.SendToParticipant(connection.Id, "second", nil)
	assert.True(t, ierr.Is(err, ierr.ErrorCodeStaleHandle))

	assert.Equal(t, connection.Id, <-disconnected)
	assert.Zero(t, hub.Count())
}

func TestHub_DisconnectIsIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	connection := connect(hub, 4)
	require.NoError(t, hub.JoinRoom("room:r1", connection.Id))

	calls := 0
	hub.OnDisconnect(func(connectionId string) {
		calls++
	})

	assert.True(t, hub.Connected(connection.Id))

	hub.Disconnect(connection.Id)
	hub.Disconnect(connection.Id)

	assert.Equal(t, 1, calls)
	assert.False(t, hub.Connected(connection.Id))
	assert.False(t, hub.IsMember("room:r1", connection.Id))

	_, open := <-connection.Send
	assert.False(t, open)
}

func TestHub_ConcurrentJoinAndDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop())

	var wg sync.WaitGroup
	for range 50 {
		connection := connect(hub, 4)

		wg.Add(1)
		go func() {
			defer wg.Done()

			_ = hub.JoinRoom("room:r1", connection.Id)
			hub.SendToRoom("room:r1", "message", nil, connection.Id)
			hub.Disconnect(connection.Id)
		}()
	}

	wg.Wait()

	assert.Zero(t, hub.Count())
	assert.Zero(t, hub.SendToRoom("room:r1", "message", nil, ""))
}

func TestConnection_AllowsTopic(t *testing.T) {
	assert.True(t, NewConnection(1, "").AllowsTopic("chat:r1"))
	assert.True(t, NewConnection(1, "chat:").AllowsTopic("chat:r1"))
	assert.False(t, NewConnection(1, "chat:").AllowsTopic("emoji:r1"))
}
