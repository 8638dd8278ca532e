package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"collab-editor-api/internal/realtime"

	"github.com/rs/zerolog"
)

// State is the session's position in the reconnection state machine.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateGaveUp       State = "gave-up"
	StateClosed       State = "closed"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 10 * time.Second
)

var (
	// ErrReconnectExhausted is the one terminal, non-self-healing error: the
	// retry budget ran out without reaching connected. Manual action
	// (ForceReconnect) is the only way forward.
	ErrReconnectExhausted = errors.New("client: reconnect attempts exhausted")
	// ErrNotConnected reports a send while no physical connection is up.
	ErrNotConnected = errors.New("client: not connected")
)

// SessionConfig configures one logical participation in a document's channel.
type SessionConfig struct {
	// BaseURL is the server root, e.g. "ws://localhost:8008".
	BaseURL    string
	DocumentID string
	UserID     string
	UserName   string
	UserEmail  string

	// Transport defaults to the websocket transport.
	Transport Transport

	// MaxAttempts is the consecutive-failure budget before giving up.
	MaxAttempts int
	// BaseDelay and MaxDelay bound the exponential backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// OnEvent receives every server event, including the ones the session
	// consumes itself (connection-success, heartbeat).
	OnEvent func(*realtime.Event)
	// OnStateChange observes state machine transitions.
	OnStateChange func(State)
	// OnError receives terminal errors (ErrReconnectExhausted).
	OnError func(error)

	Logger zerolog.Logger
}

// Session keeps one logical editing session alive across physical connection
// churn. Transport failures are absorbed by exponential backoff with a
// bounded retry budget; the session only surfaces an error once that budget
// is spent.
type Session struct {
	cfg SessionConfig

	ctx    context.Context
	cancel context.CancelFunc
	redial chan struct{}
	done   chan struct{}

	mu           sync.Mutex
	state        State
	attempts     int
	conn         Conn
	connectionID string

	log zerolog.Logger
}

// NewSession builds a session; Start begins connecting.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Transport == nil {
		cfg.Transport = NewWebSocketTransport()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		redial: make(chan struct{}, 1),
		done:   make(chan struct{}),
		state:  StateConnecting,
		log: cfg.Logger.With().
			Str("component", "session").
			Str("document_id", cfg.DocumentID).
			Logger(),
	}
}

// Start runs the state machine in a goroutine until Close.
func (s *Session) Start() {
	go s.run()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a physical connection is established.
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

// ConnectionID returns the hub-assigned id of the current physical
// connection, empty while disconnected.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// Send submits a content change over the live connection.
func (s *Session) Send(content string) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(realtime.ClientMessage{
		Type:    realtime.EventContentChange,
		Content: content,
	})
}

// ForceReconnect resets the retry budget and issues a fresh attempt
// immediately. It is the manual escape hatch from the gave-up state, and on a
// live session it drops the current connection and redials.
func (s *Session) ForceReconnect() {
	s.mu.Lock()
	s.attempts = 0
	conn := s.conn
	s.mu.Unlock()

	select {
	case s.redial <- struct{}{}:
	default:
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Close tears the session down for good: the physical connection and any
// pending reconnect timer are canceled, and the state machine exits. A closed
// session cannot be resumed.
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	defer s.setState(StateClosed)

	for {
		if s.ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)

		conn, err := s.cfg.Transport.Dial(s.ctx, s.url())
		if err == nil {
			err = s.serve(conn)
		}
		if s.ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Msg("connection lost")

		if !s.backoff() {
			return
		}
	}
}

// serve owns one physical connection: it dispatches events until the
// transport fails, flipping to connected on the handshake event.
func (s *Session) serve(conn Conn) error {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.connectionID = ""
		s.mu.Unlock()
	}()

	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			return err
		}
		if ev.Type == realtime.EventConnectionSuccess {
			s.mu.Lock()
			s.connectionID = ev.ConnectionID
			s.attempts = 0
			s.mu.Unlock()
			s.setState(StateConnected)
			s.log.Debug().Str("connection_id", ev.ConnectionID).Msg("connected")
		}
		if s.cfg.OnEvent != nil {
			s.cfg.OnEvent(ev)
		}
	}
}

// backoff waits out the retry delay for the next attempt. It returns false
// only when the session is closed; in the gave-up state it blocks until
// ForceReconnect or Close.
func (s *Session) backoff() bool {
	s.mu.Lock()
	attempt := s.attempts
	if attempt >= s.cfg.MaxAttempts {
		s.mu.Unlock()
		s.setState(StateGaveUp)
		err := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempt)
		s.log.Error().Err(err).Msg("giving up")
		if s.cfg.OnError != nil {
			s.cfg.OnError(err)
		}
		select {
		case <-s.ctx.Done():
			return false
		case <-s.redial:
			return true
		}
	}
	s.attempts++
	s.mu.Unlock()

	delay := backoffDelay(attempt, s.cfg.BaseDelay, s.cfg.MaxDelay)
	s.setState(StateReconnecting)
	s.log.Debug().Dur("delay", delay).Int("attempt", attempt+1).Msg("reconnecting")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-s.redial:
		return true
	case <-timer.C:
		return true
	}
}

// backoffDelay is the capped exponential schedule: base, 2*base, 4*base, ...
// never exceeding max. attempt counts from zero.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := base << uint(attempt)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(next)
	}
}

// url carries the caller identity in the query string, the same triple the
// hub resolves for anonymous participants.
func (s *Session) url() string {
	q := url.Values{}
	q.Set("userId", s.cfg.UserID)
	q.Set("userName", s.cfg.UserName)
	if s.cfg.UserEmail != "" {
		q.Set("userEmail", s.cfg.UserEmail)
	}
	return fmt.Sprintf("%s/api/realtime/%s?%s", s.cfg.BaseURL, s.cfg.DocumentID, q.Encode())
}
