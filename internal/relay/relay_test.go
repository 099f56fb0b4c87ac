package relay

import (
	"encoding/json"
	"testing"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/room"
	"github.com/goevery/liverelay/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	hub        *transport.Hub
	registry   *room.Registry
	relay      *Relay
	reconciler *Reconciler
}

func newFixture() *fixture {
	logger := zap.NewNop()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	hub := transport.NewHub(logger)
	registry := room.NewRegistry(logger)
	reconciler := NewReconciler(logger, registry, hub, collector)
	hub.OnDisconnect(reconciler.ParticipantDisconnected)

	return &fixture{
		hub:        hub,
		registry:   registry,
		relay:      NewRelay(logger, registry, hub, collector),
		reconciler: reconciler,
	}
}

func (f *fixture) connect() *transport.Connection {
	connection := transport.NewConnection(16, "")
	f.hub.Connect(connection)

	return connection
}

func receive(t *testing.T, connection *transport.Connection) transport.Event {
	t.Helper()

	require.NotEmpty(t, connection.Send, "expected a queued event")

	return <-connection.Send
}

func TestRelay_Scenario(t *testing.T) {
	f := newFixture()
	broadcaster := f.connect()
	viewer := f.connect()
	bystander := f.connect()

	require.NoError(t, f.relay.StartBroadcasting(broadcaster.Id, "abc123"))

	require.NoError(t, f.relay.ViewerJoin(viewer.Id, "abc123"))
	event := receive(t, broadcaster)
	assert.Equal(t, EventViewerJoined, event.Name)
	assert.Equal(t, ViewerJoined{viewer.Id}, event.Payload)

	require.NoError(t, f.relay.ViewerJoin(bystander.Id, "abc123"))
	receive(t, broadcaster)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	f.relay.ForwardToBroadcaster(viewer.Id, "abc123", offer)
	event = receive(t, broadcaster)
	assert.Equal(t, EventViewerSignal, event.Name)
	assert.Equal(t, ViewerSignal{offer, viewer.Id}, event.Payload)

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	f.relay.ForwardToViewer(broadcaster.Id, viewer.Id, answer)
	event = receive(t, viewer)
	assert.Equal(t, EventBroadcasterSignal, event.Name)
	assert.Equal(t, BroadcasterSignal{answer}, event.Payload)
	assert.Empty(t, bystander.Send)

	f.hub.Disconnect(broadcaster.Id)

	for _, member := range []*transport.Connection{viewer, bystander} {
		event = receive(t, member)
		assert.Equal(t, EventBroadcasterLeft, event.Name)
		assert.Equal(t, BroadcasterLeft{"abc123"}, event.Payload)
		assert.Empty(t, member.Send, "exactly one broadcaster-left per room")
	}

	assert.Equal(t, BroadcasterStatus{Exists: false}, f.relay.CheckBroadcaster())
}

func TestRelay_ViewerSignalRouting(t *testing.T) {
	t.Run("routes to the latest broadcaster", func(t *testing.T) {
		f := newFixture()
		first := f.connect()
		second := f.connect()
		viewer := f.connect()

		require.NoError(t, f.relay.StartBroadcasting(first.Id, "r1"))
		require.NoError(t, f.relay.StartBroadcasting(second.Id, "r1"))

		f.relay.ForwardToBroadcaster(viewer.Id, "r1", json.RawMessage(`"candidate"`))

		assert.Empty(t, first.Send)
		event := receive(t, second)
		assert.Equal(t, EventViewerSignal, event.Name)
	})

	t.Run("no broadcaster is a silent no-op", func(t *testing.T) {
		f := newFixture()
		viewer := f.connect()
		other := f.connect()
		require.NoError(t, f.relay.ViewerJoin(other.Id, "r1"))

		f.relay.ForwardToBroadcaster(viewer.Id, "r1", json.RawMessage(`{}`))

		assert.Empty(t, viewer.Send)
		assert.Empty(t, other.Send)
	})

	t.Run("gone viewer is a silent no-op", func(t *testing.T) {
		f := newFixture()
		broadcaster := f.connect()

		f.relay.ForwardToViewer(broadcaster.Id, "missing-viewer", json.RawMessage(`{}`))

		assert.Empty(t, broadcaster.Send)
	})
}

func TestRelay_ViewerJoinWithoutBroadcaster(t *testing.T) {
	f := newFixture()
	viewer := f.connect()

	require.NoError(t, f.relay.ViewerJoin(viewer.Id, "r1"))

	assert.True(t, f.hub.IsMember(RoomGroup("r1"), viewer.Id))
	assert.Empty(t, viewer.Send)
}

func TestRelay_StartBroadcastingStaleConnection(t *testing.T) {
	f := newFixture()

	err := f.relay.StartBroadcasting("gone", "r1")

	assert.Error(t, err)
	_, ok := f.registry.Lookup("r1")
	assert.False(t, ok)
}

// dropAfterJoin disconnects the connection right after it joins, the way a
// slow-consumer disconnect can land mid start-broadcasting.
type dropAfterJoin struct {
	*transport.Hub
}

func (d dropAfterJoin) JoinRoom(group string, connectionId string) error {
	err := d.Hub.JoinRoom(group, connectionId)
	d.Hub.Disconnect(connectionId)

	return err
}

func TestRelay_StartBroadcastingDisconnectedMidway(t *testing.T) {
	f := newFixture()
	broadcaster := f.connect()

	racing := NewRelay(zap.NewNop(), f.registry, dropAfterJoin{f.hub}, metrics.NewCollector(prometheus.NewRegistry()))

	err := racing.StartBroadcasting(broadcaster.Id, "r1")
	assert.True(t, ierr.Is(err, ierr.ErrorCodeStaleHandle))

	f.hub.Disconnect(broadcaster.Id)

	_, ok := f.registry.Lookup("r1")
	assert.False(t, ok)
	assert.False(t, f.registry.AnyBroadcaster())
	assert.Equal(t, BroadcasterStatus{Exists: false}, f.relay.CheckBroadcaster())
}

func TestRelay_CheckBroadcaster(t *testing.T) {
	f := newFixture()
	broadcaster := f.connect()

	assert.Equal(t, BroadcasterStatus{Exists: false}, f.relay.CheckBroadcaster())

	require.NoError(t, f.relay.StartBroadcasting(broadcaster.Id, "abc123"))

	assert.Equal(t, BroadcasterStatus{Exists: true, RoomId: "abc123"}, f.relay.CheckBroadcaster())
}
