package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/transport"
	"go.uber.org/zap"
)

// Manager owns one Session per channel kind.
type Manager struct {
	logger  *zap.Logger
	dialer  Dialer
	options Options

	mu       sync.Mutex
	sessions map[channel.Kind]*Session
}

func NewManager(logger *zap.Logger, dialer Dialer, options Options) *Manager {
	return &Manager{
		logger:   logger,
		dialer:   dialer,
		options:  options,
		sessions: make(map[channel.Kind]*Session),
	}
}

func (m *Manager) session(kind channel.Kind) (*Session, error) {
	if !kind.Valid() {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unknown channel kind: "+string(kind)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[kind]
	if !ok {
		s = newSession(m.logger, kind, m.dialer, m.options)
		m.sessions[kind] = s
	}

	return s, nil
}

// EnsureConnected subscribes the kind's session to roomId. It is a no-op when
// the session is already connected, or connecting, to that room; a different
// room replaces the current subscription.
func (m *Manager) EnsureConnected(ctx context.Context, kind channel.Kind, roomId string, handler Handler) error {
	s, err := m.session(kind)
	if err != nil {
		return err
	}

	return s.EnsureConnected(ctx, roomId, handler)
}

func (m *Manager) Send(ctx context.Context, kind channel.Kind, payload any) error {
	s, err := m.session(kind)
	if err != nil {
		return err
	}

	return s.Send(ctx, payload)
}

// Teardown closes the kind's session and cancels any pending reconnect.
func (m *Manager) Teardown(kind channel.Kind) {
	m.mu.Lock()
	s, ok := m.sessions[kind]
	m.mu.Unlock()

	if ok {
		s.Teardown()
	}
}

func (m *Manager) State(kind channel.Kind) State {
	m.mu.Lock()
	s, ok := m.sessions[kind]
	m.mu.Unlock()

	if !ok {
		return StateDisconnected
	}

	return s.State()
}

func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
}

// Subscribe connects the kind's session and hands fn every payload decoded
// as T. Payloads that do not decode are logged and skipped.
func Subscribe[T any](ctx context.Context, m *Manager, kind channel.Kind, roomId string, fn func(T)) error {
	return m.EnsureConnected(ctx, kind, roomId, func(message channel.Message) {
		var payload T
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			m.logger.Warn("failed to decode payload",
				zap.String("channel", message.Channel),
				zap.String("messageId", message.Id),
				zap.Error(err))

			return
		}

		fn(payload)
	})
}

// TransportDialer dials the per-kind websocket endpoints of a relay.
type TransportDialer struct {
	logger  *zap.Logger
	baseURL string
	header  http.Header

	mu      sync.Mutex
	clients map[channel.Kind]*transport.Client
}

// NewTransportDialer takes the relay's websocket base, e.g.
// ws://localhost:8000/live.
func NewTransportDialer(logger *zap.Logger, baseURL string, header http.Header) *TransportDialer {
	return &TransportDialer{
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		header:  header,
		clients: make(map[channel.Kind]*transport.Client),
	}
}

func (d *TransportDialer) Dial(ctx context.Context, kind channel.Kind) (Link, error) {
	d.mu.Lock()
	client, ok := d.clients[kind]
	if !ok {
		client = transport.NewClient(d.logger, d.baseURL+"/ws/"+string(kind), d.header)
		d.clients[kind] = client
	}
	d.mu.Unlock()

	link, err := client.Connect(ctx)
	if err != nil {
		return nil, err
	}

	return link, nil
}
