package transport

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ObjectStream adapts a websocket connection to jsonrpc2's framing: one
// JSON object per text message.
type ObjectStream struct {
	connection   *websocket.Conn
	writeTimeout time.Duration
}

func NewObjectStream(connection *websocket.Conn, writeTimeout time.Duration) *ObjectStream {
	return &ObjectStream{
		connection,
		writeTimeout,
	}
}

func (s *ObjectStream) WriteObject(obj any) error {
	if s.writeTimeout > 0 {
		if err := s.connection.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}

	return s.connection.WriteJSON(obj)
}

func (s *ObjectStream) ReadObject(v any) error {
	return s.connection.ReadJSON(v)
}

func (s *ObjectStream) Close() error {
	return s.connection.Close()
}

// KeepAlive installs the pong handler, then pings the peer every interval
// from a new goroutine until done is closed or a ping fails. It must be
// called before the connection is read from.
func KeepAlive(connection *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}

	pongWait := interval * 2
	_ = connection.SetReadDeadline(time.Now().Add(pongWait))
	connection.SetPongHandler(func(string) error {
		return connection.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval))
				if err != nil {
					return
				}
			}
		}
	}()
}

// RPCLogger routes jsonrpc2's protocol messages to zap at debug level.
type RPCLogger struct {
	logger *zap.SugaredLogger
}

func NewRPCLogger(logger *zap.Logger) *RPCLogger {
	return &RPCLogger{
		logger.Sugar(),
	}
}

func (l *RPCLogger) Printf(format string, v ...any) {
	l.logger.Debugf(strings.TrimSpace(format), v...)
}
