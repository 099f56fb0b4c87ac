package server

import (
	"context"
	"errors"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/transport"
	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RPCHandler serves the requests of one websocket connection. jsonrpc2 calls
// it from the connection's read loop, so a connection's requests are handled
// one at a time and in order.
type RPCHandler struct {
	logger     *zap.Logger
	router     *Router
	connection *transport.Connection
	limiter    *rate.Limiter
	metrics    *metrics.Collector
}

func NewRPCHandler(
	logger *zap.Logger,
	router *Router,
	connection *transport.Connection,
	limiter *rate.Limiter,
	metrics *metrics.Collector,
) *RPCHandler {
	return &RPCHandler{
		logger,
		router,
		connection,
		limiter,
		metrics,
	}
}

func (h *RPCHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.logger.Debug("jsonrpc2 request received",
		zap.String("method", req.Method),
		zap.Bool("notification", req.Notif))

	result, err := h.route(ctx, req)

	if req.Notif {
		if err != nil {
			h.logger.Debug("notification failed",
				zap.String("method", req.Method),
				zap.String("code", string(ierr.CodeOf(err))),
				zap.Error(err))
		}

		return
	}

	if err != nil {
		err = conn.ReplyWithError(ctx, req.ID, h.router.mapError(err))
	} else {
		err = conn.Reply(ctx, req.ID, result)
	}

	if err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
		h.logger.Error("failed to reply", zap.String("method", req.Method), zap.Error(err))
	}
}

func (h *RPCHandler) route(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.metrics.RequestRateLimited()

		return nil, ierr.New(ierr.ErrorCodeResourceExhausted, errors.New("too many requests"))
	}

	return h.router.Handle(transport.WithConnection(ctx, h.connection), req)
}
