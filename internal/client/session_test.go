package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"collab-editor-api/internal/realtime"

	"github.com/stretchr/testify/require"
)

// fakeConn is a scripted physical connection.
type fakeConn struct {
	mu      sync.Mutex
	events  chan *realtime.Event
	written []realtime.ClientMessage
	once    sync.Once
	closed  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan *realtime.Event, 8),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) deliver(ev *realtime.Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

func (c *fakeConn) ReadEvent() (*realtime.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	msg, ok := v.(realtime.ClientMessage)
	if !ok {
		return errors.New("unexpected frame")
	}
	c.mu.Lock()
	c.written = append(c.written, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeTransport hands out scripted connections per dial attempt.
type fakeTransport struct {
	mu    sync.Mutex
	dials int
	// script decides the outcome of the n-th dial (1-based).
	script func(dial int) (Conn, error)
}

func (t *fakeTransport) Dial(ctx context.Context, url string) (Conn, error) {
	t.mu.Lock()
	t.dials++
	n := t.dials
	t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.script(n)
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func connectedConn(connectionID string) *fakeConn {
	conn := newFakeConn()
	conn.deliver(&realtime.Event{
		Type:         realtime.EventConnectionSuccess,
		ConnectionID: connectionID,
	})
	return conn
}

func newTestSession(transport Transport, overrides ...func(*SessionConfig)) *Session {
	cfg := SessionConfig{
		BaseURL:    "ws://hub.test",
		DocumentID: "d1",
		UserID:     "u1",
		UserName:   "Alice",
		Transport:  transport,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	}
	for _, o := range overrides {
		o(&cfg)
	}
	return NewSession(cfg)
}

func TestBackoffDelay_Schedule(t *testing.T) {
	base := time.Second
	ceiling := 10 * time.Second
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond, // capped
	}
	for attempt, expected := range want {
		require.Equal(t, expected, backoffDelay(attempt, base, ceiling), "attempt %d", attempt)
	}
	// Far beyond the cap the delay stays bounded.
	require.Equal(t, ceiling, backoffDelay(40, base, ceiling))
}

func TestSession_GivesUpAfterRetryBudget(t *testing.T) {
	transport := &fakeTransport{script: func(int) (Conn, error) {
		return nil, errors.New("refused")
	}}

	errCh := make(chan error, 1)
	s := newTestSession(transport, func(cfg *SessionConfig) {
		cfg.OnError = func(err error) { errCh <- err }
	})
	s.Start()
	defer s.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(time.Second):
		t.Fatal("expected terminal error")
	}
	require.Equal(t, StateGaveUp, s.State())
	// The initial attempt plus five retries; never a sixth retry.
	require.Equal(t, 6, transport.dialCount())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 6, transport.dialCount())
}

func TestSession_ForceReconnectRestartsFromGaveUp(t *testing.T) {
	var mu sync.Mutex
	healthy := false
	transport := &fakeTransport{script: func(int) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			return nil, errors.New("refused")
		}
		return connectedConn("conn-9"), nil
	}}

	s := newTestSession(transport)
	s.Start()
	defer s.Close()

	require.Eventually(t, func() bool {
		return s.State() == StateGaveUp
	}, time.Second, time.Millisecond)

	mu.Lock()
	healthy = true
	mu.Unlock()
	s.ForceReconnect()

	require.Eventually(t, func() bool {
		return s.Connected()
	}, time.Second, time.Millisecond)
	require.Equal(t, "conn-9", s.ConnectionID())
}

func TestSession_ConnectionSuccessResetsBudget(t *testing.T) {
	// Four failures, one success, then the connection drops: the session
	// must have a fresh budget and keep retrying well past where the
	// original one would have run out.
	transport := &fakeTransport{script: func(dial int) (Conn, error) {
		if dial == 5 {
			return connectedConn("conn-1"), nil
		}
		return nil, errors.New("refused")
	}}

	s := newTestSession(transport)
	s.Start()
	defer s.Close()

	require.Eventually(t, func() bool {
		return s.Connected()
	}, time.Second, time.Millisecond)

	s.mu.Lock()
	attempts := s.attempts
	conn := s.conn
	s.mu.Unlock()
	require.Zero(t, attempts)

	// Drop the live connection; a full new budget applies.
	_ = conn.Close()
	require.Eventually(t, func() bool {
		return transport.dialCount() >= 9
	}, time.Second, time.Millisecond)
}

func TestSession_CloseCancelsPendingRetry(t *testing.T) {
	transport := &fakeTransport{script: func(int) (Conn, error) {
		return nil, errors.New("refused")
	}}
	s := newTestSession(transport, func(cfg *SessionConfig) {
		cfg.BaseDelay = time.Hour // park the machine in reconnecting
		cfg.MaxDelay = time.Hour
	})
	s.Start()

	require.Eventually(t, func() bool {
		return s.State() == StateReconnecting
	}, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel the pending retry")
	}
	require.Equal(t, StateClosed, s.State())
}

func TestSession_SendRequiresConnection(t *testing.T) {
	transport := &fakeTransport{script: func(int) (Conn, error) {
		return nil, errors.New("refused")
	}}
	s := newTestSession(transport)
	require.ErrorIs(t, s.Send("content"), ErrNotConnected)
}

func TestSession_SendAndDispatch(t *testing.T) {
	conn := connectedConn("conn-1")
	transport := &fakeTransport{script: func(int) (Conn, error) {
		return conn, nil
	}}

	events := make(chan *realtime.Event, 8)
	s := newTestSession(transport, func(cfg *SessionConfig) {
		cfg.OnEvent = func(ev *realtime.Event) { events <- ev }
	})
	s.Start()
	defer s.Close()

	require.Eventually(t, func() bool {
		return s.Connected()
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Send("hello"))
	conn.mu.Lock()
	written := append([]realtime.ClientMessage(nil), conn.written...)
	conn.mu.Unlock()
	require.Len(t, written, 1)
	require.Equal(t, realtime.EventContentChange, written[0].Type)
	require.Equal(t, "hello", written[0].Content)

	conn.deliver(&realtime.Event{Type: realtime.EventContentChange, Content: "peer edit"})
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-events:
				if ev.Type == realtime.EventContentChange && ev.Content == "peer edit" {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, time.Millisecond)
}
