package transport

import (
	"context"
	"strings"
	"sync"

	"github.com/goevery/liverelay/internal/auth"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Event is one server-to-client notification queued on a connection.
type Event struct {
	Name    string
	Payload any
}

type Connection struct {
	Id   string
	Send chan Event

	// TopicPrefix, when set, limits the topics this connection may subscribe
	// or publish to.
	TopicPrefix string

	mu             sync.RWMutex
	authentication *auth.Authentication
}

func NewConnection(queueSize int, topicPrefix string) *Connection {
	return &Connection{
		Id:          gonanoid.Must(),
		Send:        make(chan Event, queueSize),
		TopicPrefix: topicPrefix,
	}
}

func (c *Connection) SetAuthentication(authentication *auth.Authentication) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authentication = authentication
}

func (c *Connection) GetAuthentication() *auth.Authentication {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.authentication
}

func (c *Connection) AllowsTopic(topic string) bool {
	return c.TopicPrefix == "" || strings.HasPrefix(topic, c.TopicPrefix)
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
