package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/metrics"
	"github.com/goevery/liverelay/internal/transport"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type WebSocketOptions struct {
	SendQueueSize     int
	ReadLimit         int64
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	MessagesPerSecond float64
	MessageBurst      int
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	hub      *transport.Hub
	router   *Router
	metrics  *metrics.Collector
	options  WebSocketOptions
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	hub *transport.Hub,
	router *Router,
	metrics *metrics.Collector,
	options WebSocketOptions,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		hub,
		router,
		metrics,
		options,
	}
}

// Register serves /ws for signaling and every channel, and /ws/{kind} for
// connections limited to the topics of one channel kind.
func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, "")
	})

	router.HandleFunc("/ws/{kind}", func(w http.ResponseWriter, r *http.Request) {
		kind := channel.Kind(mux.Vars(r)["kind"])
		if !kind.Valid() {
			http.Error(w, "unknown channel kind", http.StatusNotFound)
			return
		}

		s.serve(w, r, kind.TopicPrefix())
	})
}

func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request, topicPrefix string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	if s.options.ReadLimit > 0 {
		conn.SetReadLimit(s.options.ReadLimit)
	}

	connection := transport.NewConnection(s.options.SendQueueSize, topicPrefix)
	s.hub.Connect(connection)
	s.metrics.ConnectionOpened()

	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("remoteAddr", r.RemoteAddr))

	logger.Info("websocket connection established", zap.String("path", r.URL.Path))

	var limiter *rate.Limiter
	if s.options.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.options.MessagesPerSecond), s.options.MessageBurst)
	}

	closed := make(chan struct{})
	transport.KeepAlive(conn, s.options.PingInterval, closed)

	ctx := context.Background()
	rpcHandler := NewRPCHandler(logger, s.router, connection, limiter, s.metrics)

	jsonrpcConn := jsonrpc2.NewConn(
		ctx,
		transport.NewObjectStream(conn, s.options.WriteTimeout),
		rpcHandler,
		jsonrpc2.SetLogger(transport.NewRPCLogger(logger)),
	)

	go s.pump(ctx, logger, jsonrpcConn, connection)

	<-jsonrpcConn.DisconnectNotify()
	close(closed)

	s.hub.Disconnect(connection.Id)
	s.metrics.ConnectionClosed()

	logger.Info("websocket connection closed")
}

// pump writes queued events until the hub closes the queue, then closes the
// connection so a connection dropped for a full queue goes away too.
func (s *WebSocketServer) pump(
	ctx context.Context,
	logger *zap.Logger,
	jsonrpcConn *jsonrpc2.Conn,
	connection *transport.Connection,
) {
	for event := range connection.Send {
		err := jsonrpcConn.Notify(ctx, event.Name, event.Payload)
		if err != nil {
			if !errors.Is(err, jsonrpc2.ErrClosed) {
				logger.Warn("failed to write event", zap.String("event", event.Name), zap.Error(err))
			}

			break
		}
	}

	err := jsonrpcConn.Close()
	if err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
		logger.Debug("failed to close connection", zap.Error(err))
	}
}
