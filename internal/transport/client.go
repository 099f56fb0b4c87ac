package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goevery/liverelay/internal/ierr"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"
)

// Notification is a server-to-client event received on a Link.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Link is one live client connection to a relay endpoint.
type Link struct {
	logger  *zap.Logger
	conn    *jsonrpc2.Conn
	inbound chan Notification
}

func newLink(logger *zap.Logger, stream jsonrpc2.ObjectStream, inboundSize int) *Link {
	inbound := make(chan Notification, inboundSize)
	handler := &linkHandler{logger: logger, inbound: inbound}

	conn := jsonrpc2.NewConn(context.Background(), stream, handler, jsonrpc2.SetLogger(NewRPCLogger(logger)))

	// Close fires DisconnectNotify while the read loop may still be inside
	// Handle, so the queue is closed through the handler.
	go func() {
		<-conn.DisconnectNotify()
		handler.close()
	}()

	return &Link{
		logger,
		conn,
		inbound,
	}
}

func (l *Link) Call(ctx context.Context, method string, params any, result any) error {
	return mapLinkError(l.conn.Call(ctx, method, params, result))
}

func (l *Link) Notify(ctx context.Context, method string, params any) error {
	return mapLinkError(l.conn.Notify(ctx, method, params))
}

// Notifications is closed when the link goes down.
func (l *Link) Notifications() <-chan Notification {
	return l.inbound
}

func (l *Link) Done() <-chan struct{} {
	return l.conn.DisconnectNotify()
}

func (l *Link) Closed() bool {
	select {
	case <-l.conn.DisconnectNotify():
		return true
	default:
		return false
	}
}

func (l *Link) Close() error {
	err := l.conn.Close()
	if errors.Is(err, jsonrpc2.ErrClosed) {
		return nil
	}

	return err
}

func mapLinkError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, jsonrpc2.ErrClosed) {
		return ierr.New(ierr.ErrorCodeStaleHandle, err)
	}

	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) && rpcErr.Data != nil {
		var remote ierr.Error
		if json.Unmarshal(*rpcErr.Data, &remote) == nil && remote.Code != "" {
			return remote
		}
	}

	return err
}

type linkHandler struct {
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	inbound chan Notification
}

func (h *linkHandler) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.closed {
		h.closed = true
		close(h.inbound)
	}
}

func (h *linkHandler) deliver(notification Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	select {
	case h.inbound <- notification:
	default:
		h.logger.Warn("inbound queue is full, dropping notification",
			zap.String("method", notification.Method))
	}
}

func (h *linkHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if !req.Notif {
		err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "client does not serve requests",
		})
		if err != nil {
			h.logger.Debug("failed to reply to server request", zap.Error(err))
		}

		return
	}

	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	h.deliver(Notification{req.Method, params})
}

// Client dials one endpoint and keeps at most one live Link to it.
type Client struct {
	logger   *zap.Logger
	endpoint string
	header   http.Header
	dialer   *websocket.Dialer

	mu   sync.Mutex
	link *Link
}

func NewClient(logger *zap.Logger, endpoint string, header http.Header) *Client {
	return &Client{
		logger:   logger.With(zap.String("endpoint", endpoint)),
		endpoint: endpoint,
		header:   header,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
	}
}

// Connect returns the current live link, dialling a new one when there is
// none. Dial failures carry ErrorCodeTransportUnavailable.
func (c *Client) Connect(ctx context.Context) (*Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link != nil && !c.link.Closed() {
		return c.link, nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeTransportUnavailable, fmt.Errorf("dial %s: %w", c.endpoint, err))
	}

	c.logger.Debug("transport connected")

	c.link = newLink(c.logger, NewObjectStream(conn, 10*time.Second), 256)

	return c.link, nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return nil
	}

	err := c.link.Close()
	c.link = nil

	return err
}
