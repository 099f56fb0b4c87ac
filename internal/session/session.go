package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/goevery/liverelay/internal/channel"
	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/transport"
	"go.uber.org/zap"
)

const DefaultRetryDelay = 5 * time.Second

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Link is a live connection to one relay endpoint.
type Link interface {
	Call(ctx context.Context, method string, params any, result any) error
	Notifications() <-chan transport.Notification
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, kind channel.Kind) (Link, error)
}

// Handler receives the messages of the session's topic, one at a time.
type Handler func(message channel.Message)

type Options struct {
	// Token, when set, is sent with auth before subscribing.
	Token      string
	RetryDelay time.Duration
}

// Kinds whose Send reconnects a dropped session instead of failing.
var reconnectOnSend = map[channel.Kind]bool{
	channel.KindModuleAction: true,
}

type authParams struct {
	Token string `json:"token"`
}

type subscribeParams struct {
	Channel string `json:"channel"`
}

type publishParams struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

// Session keeps at most one subscribed link for one channel kind. Every
// connect attempt, reconnect timer and link watcher carries the generation
// it was started for and gives up once the generation has moved on.
type Session struct {
	logger  *zap.Logger
	kind    channel.Kind
	dialer  Dialer
	options Options

	mu         sync.Mutex
	state      State
	topic      string
	handler    Handler
	link       Link
	generation uint64
	retryTimer *time.Timer
}

func newSession(logger *zap.Logger, kind channel.Kind, dialer Dialer, options Options) *Session {
	return &Session{
		logger:  logger.With(zap.String("kind", string(kind))),
		kind:    kind,
		dialer:  dialer,
		options: options,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) EnsureConnected(ctx context.Context, roomId string, handler Handler) error {
	topic := s.kind.Topic(roomId)

	s.mu.Lock()

	if s.topic == topic && s.state != StateDisconnected {
		s.handler = handler
		s.mu.Unlock()

		return nil
	}

	s.resetLocked()
	s.topic = topic
	s.handler = handler
	s.state = StateConnecting
	generation := s.generation

	s.mu.Unlock()

	return s.connect(ctx, generation)
}

// Send publishes payload on the session's topic.
func (s *Session) Send(ctx context.Context, payload any) error {
	s.mu.Lock()

	switch {
	case s.state == StateConnecting:
		s.mu.Unlock()

		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("session is connecting"))
	case s.state == StateDisconnected && (s.topic == "" || !reconnectOnSend[s.kind]):
		s.mu.Unlock()

		return ierr.New(ierr.ErrorCodeStaleHandle, errors.New("session is not connected"))
	case s.state == StateDisconnected:
		s.stopRetryLocked()
		s.generation++
		s.state = StateConnecting
		generation := s.generation
		s.mu.Unlock()

		s.logger.Info("reconnecting before send")

		if err := s.connect(ctx, generation); err != nil {
			return err
		}

		s.mu.Lock()
	}

	link := s.link
	topic := s.topic

	s.mu.Unlock()

	if link == nil {
		return ierr.New(ierr.ErrorCodeStaleHandle, errors.New("session is not connected"))
	}

	return link.Call(ctx, "publish", publishParams{topic, payload}, nil)
}

func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.topic = ""
	s.handler = nil
}

// IMPORTANT: It must be called only when a lock is already held.
func (s *Session) resetLocked() {
	s.generation++
	s.stopRetryLocked()

	if s.link != nil {
		_ = s.link.Close()
		s.link = nil
	}

	s.state = StateDisconnected
}

// IMPORTANT: It must be called only when a lock is already held.
func (s *Session) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Session) connect(ctx context.Context, generation uint64) error {
	s.mu.Lock()
	topic := s.topic
	s.mu.Unlock()

	link, err := s.subscribe(ctx, topic)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.generation == generation {
			s.state = StateDisconnected

			if retryable(err) {
				s.scheduleRetryLocked(generation)
			}
		}

		s.logger.Warn("session connect failed", zap.String("topic", topic), zap.Error(err))

		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		_ = link.Close()

		return ierr.New(ierr.ErrorCodeStaleHandle, errors.New("session was superseded while connecting"))
	}

	s.link = link
	s.state = StateConnected

	go s.watch(link, generation)

	s.logger.Info("session connected", zap.String("topic", topic))

	return nil
}

func (s *Session) subscribe(ctx context.Context, topic string) (Link, error) {
	link, err := s.dialer.Dial(ctx, s.kind)
	if err != nil {
		return nil, err
	}

	if s.options.Token != "" {
		err = link.Call(ctx, "auth", authParams{s.options.Token}, nil)
		if err != nil {
			_ = link.Close()

			return nil, err
		}
	}

	err = link.Call(ctx, "subscribe", subscribeParams{topic}, nil)
	if err != nil {
		_ = link.Close()

		return nil, err
	}

	return link, nil
}

func (s *Session) watch(link Link, generation uint64) {
	for notification := range link.Notifications() {
		if notification.Method != channel.EventMessage {
			continue
		}

		var message channel.Message
		if err := json.Unmarshal(notification.Params, &message); err != nil {
			s.logger.Warn("failed to decode message", zap.Error(err))
			continue
		}

		s.mu.Lock()
		handler := s.handler
		current := s.generation == generation
		s.mu.Unlock()

		if current && handler != nil {
			handler(message)
		}
	}

	s.linkLost(link, generation)
}

func (s *Session) linkLost(link Link, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.link != link {
		return
	}

	s.logger.Warn("session link lost", zap.Duration("retryDelay", s.retryDelay()))

	s.link = nil
	s.state = StateDisconnected
	s.scheduleRetryLocked(generation)
}

// IMPORTANT: It must be called only when a lock is already held.
func (s *Session) scheduleRetryLocked(generation uint64) {
	s.stopRetryLocked()
	s.retryTimer = time.AfterFunc(s.retryDelay(), func() {
		s.retry(generation)
	})
}

func (s *Session) retry(generation uint64) {
	s.mu.Lock()

	if s.generation != generation || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}

	s.retryTimer = nil
	s.state = StateConnecting
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = s.connect(ctx, generation)
}

func (s *Session) retryDelay() time.Duration {
	if s.options.RetryDelay > 0 {
		return s.options.RetryDelay
	}

	return DefaultRetryDelay
}

func retryable(err error) bool {
	switch ierr.CodeOf(err) {
	case ierr.ErrorCodeInvalidArgument, ierr.ErrorCodeUnauthenticated, ierr.ErrorCodePermissionDenied:
		return false
	default:
		return true
	}
}
