package handler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/goevery/liverelay/internal/auth"
	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var longRoomId = strings.Repeat("r", 200)

func TestChannelValidator(t *testing.T) {
	validator := NewChannelValidator()

	kind, roomId, err := validator.Validate("module-action:event-42")
	require.NoError(t, err)
	assert.Equal(t, channel.KindModuleAction, kind)
	assert.Equal(t, "event-42", roomId)

	for topic, expected := range map[string]string{
		"chat:event.42":      "event.42",
		"emoji:a@b":          "a@b",
		"chat:r1:extra":      "r1:extra",
		"stream-status:r 1":  "r 1",
		"chat:" + longRoomId: longRoomId,
	} {
		_, roomId, err := validator.Validate(topic)
		require.NoError(t, err, topic)
		assert.Equal(t, expected, roomId)
	}

	for _, topic := range []string{"", "chat", "chat:", "weather:r1", "chat:" + strings.Repeat("r", 1025)} {
		_, _, err := validator.Validate(topic)
		assert.True(t, ierr.Is(err, ierr.ErrorCodeInvalidArgument), topic)
	}
}

func TestChannelAccess(t *testing.T) {
	subscriber := &auth.Authentication{Subject: "u", AuthorizedRooms: []string{"r1"}, Scope: []string{"subscribe"}}
	publisher := &auth.Authentication{Subject: "u", AuthorizedRooms: []string{"r1"}, Scope: []string{"publish"}}
	reactor := &auth.Authentication{Subject: "u", AuthorizedRooms: []string{"event-*"}, Scope: []string{"subscribe", "publish:emoji"}}

	t.Run("auth required", func(t *testing.T) {
		access := NewChannelAccess(true)

		assert.True(t, ierr.Is(access.CanSubscribe(nil, channel.KindChat, "r1"), ierr.ErrorCodeUnauthenticated))
		assert.True(t, ierr.Is(access.CanPublish(nil, channel.KindChat, "r1"), ierr.ErrorCodeUnauthenticated))

		assert.NoError(t, access.CanSubscribe(subscriber, channel.KindChat, "r1"))
		assert.True(t, ierr.Is(access.CanSubscribe(subscriber, channel.KindChat, "r2"), ierr.ErrorCodePermissionDenied))
		assert.True(t, ierr.Is(access.CanPublish(subscriber, channel.KindChat, "r1"), ierr.ErrorCodePermissionDenied))

		assert.NoError(t, access.CanPublish(publisher, channel.KindModuleAction, "r1"))
		assert.True(t, ierr.Is(access.CanSubscribe(publisher, channel.KindChat, "r1"), ierr.ErrorCodePermissionDenied))
	})

	t.Run("kind scoped publish", func(t *testing.T) {
		access := NewChannelAccess(true)

		assert.NoError(t, access.CanSubscribe(reactor, channel.KindModuleAction, "event-42"))
		assert.NoError(t, access.CanPublish(reactor, channel.KindEmoji, "event-42"))
		assert.True(t, ierr.Is(access.CanPublish(reactor, channel.KindChat, "event-42"), ierr.ErrorCodePermissionDenied))
		assert.True(t, ierr.Is(access.CanPublish(reactor, channel.KindEmoji, "other"), ierr.ErrorCodePermissionDenied))
	})

	t.Run("anonymous allowed", func(t *testing.T) {
		access := NewChannelAccess(false)

		assert.NoError(t, access.CanSubscribe(nil, channel.KindChat, "r1"))
		assert.NoError(t, access.CanPublish(nil, channel.KindChat, "r1"))
		assert.True(t, ierr.Is(access.CanSubscribe(subscriber, channel.KindChat, "r2"), ierr.ErrorCodePermissionDenied))
	})
}

func TestRoomRef_UnmarshalJSON(t *testing.T) {
	var ref RoomRef

	require.NoError(t, json.Unmarshal([]byte(`"abc123"`), &ref))
	assert.Equal(t, "abc123", ref.RoomId)

	require.NoError(t, json.Unmarshal([]byte(`{"roomId":"def456"}`), &ref))
	assert.Equal(t, "def456", ref.RoomId)

	assert.Error(t, json.Unmarshal([]byte(`42`), &ref))
}

func TestPublishHandler(t *testing.T) {
	hub := transport.NewHub(zap.NewNop())
	collector := metrics.NewCollector(prometheus.NewRegistry())
	publishHandler := NewPublishHandler(NewChannelValidator(), NewChannelAccess(false), channel.NewLocalBroker(hub), collector)

	subscriber := transport.NewConnection(4, "")
	publisher := transport.NewConnection(4, "emoji:")
	hub.Connect(subscriber)
	hub.Connect(publisher)
	require.NoError(t, hub.JoinRoom("emoji:r1", subscriber.Id))

	ctx := transport.WithConnection(context.Background(), publisher)

	t.Run("delivers to subscribers", func(t *testing.T) {
		message, err := publishHandler.Handle(ctx, PublishRequest{Channel: "emoji:r1", Payload: json.RawMessage(`{"emoji":"fire"}`)})
		require.NoError(t, err)
		assert.NotEmpty(t, message.Id)

		require.Len(t, subscriber.Send, 1)
		event := <-subscriber.Send
		assert.Equal(t, channel.EventMessage, event.Name)
		assert.Equal(t, message, event.Payload)
	})

	t.Run("payload required", func(t *testing.T) {
		_, err := publishHandler.Handle(ctx, PublishRequest{Channel: "emoji:r1"})
		assert.True(t, ierr.Is(err, ierr.ErrorCodeInvalidArgument))
	})

	t.Run("endpoint kind", func(t *testing.T) {
		_, err := publishHandler.Handle(ctx, PublishRequest{Channel: "chat:r1", Payload: json.RawMessage(`{}`)})
		assert.True(t, ierr.Is(err, ierr.ErrorCodePermissionDenied))
	})

	t.Run("no connection and no credentials", func(t *testing.T) {
		_, err := publishHandler.Handle(context.Background(), PublishRequest{Channel: "emoji:r1", Payload: json.RawMessage(`{}`)})
		assert.True(t, ierr.Is(err, ierr.ErrorCodeUnauthenticated))
	})
}
