package handler

import (
	"context"
	"errors"

	"github.com/goevery/liverelay/internal/auth"
	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/transport"
)

// Room ids are opaque; only empty and oversized ones are refused.
const maxRoomIdLength = 1024

func validateRoomId(roomId string) error {
	if roomId == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("roomId is required"))
	}

	if len(roomId) > maxRoomIdLength {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("roomId is too long"))
	}

	return nil
}

// ChannelValidator checks a topic ("<kind>:<roomId>") and returns its parts.
type ChannelValidator struct{}

func NewChannelValidator() *ChannelValidator {
	return &ChannelValidator{}
}

func (v *ChannelValidator) Validate(topic string) (channel.Kind, string, error) {
	kind, roomId, err := channel.ParseTopic(topic)
	if err != nil {
		return "", "", err
	}

	if err := validateRoomId(roomId); err != nil {
		return "", "", err
	}

	return kind, roomId, nil
}

// ChannelAccess decides who may subscribe and publish. When authentication
// is not required anonymous connections may do both, but a connection that
// did authenticate is still held to its token's rooms and scopes.
type ChannelAccess struct {
	authRequired bool
}

func NewChannelAccess(authRequired bool) *ChannelAccess {
	return &ChannelAccess{
		authRequired,
	}
}

func (a *ChannelAccess) CanSubscribe(authentication *auth.Authentication, kind channel.Kind, roomId string) error {
	if authentication == nil {
		if a.authRequired {
			return ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("authentication required"))
		}

		return nil
	}

	if !authentication.Grants(auth.ActionSubscribe, string(kind)) {
		return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("subscribe scope required for "+string(kind)))
	}

	if !authentication.IsAuthorized(roomId) {
		return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("not authorized to access this room"))
	}

	return nil
}

func (a *ChannelAccess) CanPublish(authentication *auth.Authentication, kind channel.Kind, roomId string) error {
	if authentication == nil {
		if a.authRequired {
			return ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("authentication required"))
		}

		return nil
	}

	if !authentication.Grants(auth.ActionPublish, string(kind)) {
		return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("publish scope required for "+string(kind)))
	}

	if !authentication.IsAuthorized(roomId) {
		return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("not authorized to publish to this room"))
	}

	return nil
}

func checkTopicAllowed(connection *transport.Connection, topic string) error {
	if !connection.AllowsTopic(topic) {
		return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("channel not served by this endpoint"))
	}

	return nil
}

func requireConnection(ctx context.Context) (*transport.Connection, error) {
	connection, ok := transport.ConnectionFromContext(ctx)
	if !ok {
		return nil, errors.New("connection not found in context")
	}

	return connection, nil
}
