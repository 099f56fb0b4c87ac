package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/liverelay/internal/handler"
	"github.com/goevery/liverelay/internal/ierr"
	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"
)

type Handlers struct {
	Heartbeat         handler.HeartbeatHandlerInterface
	Auth              handler.AuthHandlerInterface
	Subscribe         handler.SubscribeHandlerInterface
	Unsubscribe       handler.UnsubscribeHandlerInterface
	Publish           handler.PublishHandlerInterface
	StartBroadcasting *handler.StartBroadcastingHandler
	StopBroadcasting  *handler.StopBroadcastingHandler
	CheckBroadcaster  *handler.CheckBroadcasterHandler
	ViewerJoin        *handler.ViewerJoinHandler
	Signal            *handler.SignalHandler
}

// Router dispatches one decoded request to its handler. A nil result with a
// nil error means there is nothing to reply.
type Router struct {
	logger   *zap.Logger
	handlers Handlers
}

func NewRouter(logger *zap.Logger, handlers Handlers) *Router {
	return &Router{
		logger,
		handlers,
	}
}

func (r *Router) Handle(ctx context.Context, request *jsonrpc2.Request) (any, error) {
	switch request.Method {
	case "heartbeat":
		return r.handlers.Heartbeat.Handle(), nil
	case "auth":
		var authReq handler.AuthRequest
		if err := decodeParams(request.Params, &authReq); err != nil {
			return nil, err
		}

		return r.handlers.Auth.Handle(ctx, authReq)
	case "subscribe":
		var subscribeReq handler.SubscribeRequest
		if err := decodeParams(request.Params, &subscribeReq); err != nil {
			return nil, err
		}

		return r.handlers.Subscribe.Handle(ctx, subscribeReq)
	case "unsubscribe":
		var unsubscribeReq handler.UnsubscribeRequest
		if err := decodeParams(request.Params, &unsubscribeReq); err != nil {
			return nil, err
		}

		return r.handlers.Unsubscribe.Handle(ctx, unsubscribeReq)
	case "publish":
		var publishReq handler.PublishRequest
		if err := decodeParams(request.Params, &publishReq); err != nil {
			return nil, err
		}

		return r.handlers.Publish.Handle(ctx, publishReq)
	case "start-broadcasting":
		var roomRef handler.RoomRef
		if err := decodeParams(request.Params, &roomRef); err != nil {
			return nil, err
		}

		return r.handlers.StartBroadcasting.Handle(ctx, roomRef)
	case "stop-broadcasting":
		return r.handlers.StopBroadcasting.Handle(ctx)
	case "check-broadcaster":
		if request.Notif {
			return nil, r.handlers.CheckBroadcaster.Push(ctx)
		}

		return r.handlers.CheckBroadcaster.Handle(), nil
	case "viewer-join":
		var roomRef handler.RoomRef
		if err := decodeParams(request.Params, &roomRef); err != nil {
			return nil, err
		}

		return r.handlers.ViewerJoin.Handle(ctx, roomRef)
	case "broadcaster-signal":
		var signalReq handler.BroadcasterSignalRequest
		if err := decodeParams(request.Params, &signalReq); err != nil {
			return nil, err
		}

		return r.handlers.Signal.HandleBroadcasterSignal(ctx, signalReq)
	case "viewer-signal":
		var signalReq handler.ViewerSignalRequest
		if err := decodeParams(request.Params, &signalReq); err != nil {
			return nil, err
		}

		return r.handlers.Signal.HandleViewerSignal(ctx, signalReq)
	default:
		return nil, ierr.New(ierr.ErrorCodeNotFound, errors.New("method not found: "+request.Method))
	}
}

func (r *Router) mapError(err error) *jsonrpc2.Error {
	var handlerErr ierr.Error
	if !errors.As(err, &handlerErr) {
		r.logger.Error("error in rpc handler", zap.Error(err))

		handlerErr = ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
	}

	rpcErr := &jsonrpc2.Error{
		Code:    rpcErrorCode(handlerErr.Code),
		Message: handlerErr.Message,
	}
	rpcErr.SetError(handlerErr)

	return rpcErr
}

func rpcErrorCode(code ierr.ErrorCode) int64 {
	switch code {
	case ierr.ErrorCodeNotFound:
		return jsonrpc2.CodeMethodNotFound
	case ierr.ErrorCodeInvalidArgument:
		return jsonrpc2.CodeInvalidParams
	case ierr.ErrorCodeInternal:
		return jsonrpc2.CodeInternalError
	default:
		return -32000
	}
}

func decodeParams(params *json.RawMessage, v any) error {
	if params == nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing params"))
	}

	if err := json.Unmarshal(*params, v); err != nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid params: "+err.Error()))
	}

	return nil
}
