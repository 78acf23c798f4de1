// pkg/session/session.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/wire"

	"github.com/gorilla/websocket"
)

var ErrSessionClosed = errors.New("Session closed")

const writeTimeout = 10 * time.Second

// Session wraps one live WebSocket connection: an identifier, a monitor
// loop that dispatches received messages, and a small intercept facility
// that handshakes use to capture the next message of a kind before the
// regular handler sees it.
type Session struct {
	ID   wire.GUID
	conn *websocket.Conn
	lg   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu            sync.Mutex
	closed        bool
	closeErr      error
	onText        func([]byte)
	onBinary      func([]byte)
	textPending   chan result
	binaryPending chan result
	textBacklog   [][]byte
	binaryBacklog [][]byte

	// At most one outstanding intercept per kind; a second call waits
	// until the first resolves.
	textInterceptMu   sync.Mutex
	binaryInterceptMu sync.Mutex

	done chan struct{}
}

type result struct {
	data []byte
	err  error
}

// New wraps the connection and starts its monitor loop. The session owns
// the connection from here on. lg may be nil.
func New(conn *websocket.Conn, lg *log.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     wire.NewGUID(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if lg != nil {
		s.lg = lg.With(slog.String("session", s.ID.String()))
	}
	go s.run()
	return s
}

// Context is canceled when the session ends, for any reason.
func (s *Session) Context() context.Context { return s.ctx }

// Done resolves when the monitor loop has observed connection loss or
// disposal.
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseErr reports why the session ended; nil until Done resolves.
func (s *Session) CloseErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// OnText installs the handler called for every received text message that
// no intercept claims. Messages that arrived before any handler or
// intercept existed are replayed to it in order; frames received during
// the replay queue behind it, so delivery order is preserved.
func (s *Session) OnText(h func([]byte)) {
	s.install(&s.onText, &s.textBacklog, h)
}

func (s *Session) OnBinary(h func([]byte)) {
	s.install(&s.onBinary, &s.binaryBacklog, h)
}

func (s *Session) install(handler *func([]byte), backlog *[][]byte, h func([]byte)) {
	s.mu.Lock()
	if h == nil {
		*handler = nil
		s.mu.Unlock()
		return
	}

	// Drain the backlog before the handler becomes visible to the monitor
	// loop; anything arriving mid-replay lands in the backlog and is
	// picked up here, in order.
	for len(*backlog) > 0 {
		b := (*backlog)[0]
		*backlog = (*backlog)[1:]
		s.mu.Unlock()
		h(b)
		s.mu.Lock()
	}
	*handler = h
	s.mu.Unlock()
}

func (s *Session) SendText(data []byte) error {
	return s.send(websocket.TextMessage, data)
}

func (s *Session) SendBinary(data []byte) error {
	return s.send(websocket.BinaryMessage, data)
}

func (s *Session) send(messageType int, data []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}

// InterceptNextText captures the next text message received on the
// session, bypassing the OnText handler. It blocks until the message
// arrives, the provided context is done, or the session ends.
func (s *Session) InterceptNextText(ctx context.Context) ([]byte, error) {
	s.textInterceptMu.Lock()
	defer s.textInterceptMu.Unlock()
	return s.intercept(ctx, &s.textPending, &s.textBacklog)
}

// InterceptNextBinary is InterceptNextText for binary messages.
func (s *Session) InterceptNextBinary(ctx context.Context) ([]byte, error) {
	s.binaryInterceptMu.Lock()
	defer s.binaryInterceptMu.Unlock()
	return s.intercept(ctx, &s.binaryPending, &s.binaryBacklog)
}

func (s *Session) intercept(ctx context.Context, pending *chan result, backlog *[][]byte) ([]byte, error) {
	ch := make(chan result, 1)

	s.mu.Lock()
	if len(*backlog) > 0 {
		b := (*backlog)[0]
		*backlog = (*backlog)[1:]
		s.mu.Unlock()
		return b, nil
	}
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	*pending = ch
	s.mu.Unlock()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		s.mu.Lock()
		if *pending == ch {
			*pending = nil
		}
		s.mu.Unlock()
		// The message may have been delivered while we were giving up.
		select {
		case r := <-ch:
			return r.data, r.err
		default:
			return nil, ctx.Err()
		}
	}
}

// Dispose closes the socket with the given close code and reason. It is
// idempotent; all subsequent sends fail fast.
func (s *Session) Dispose(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.lg.Debug("disposing session", slog.Int("code", code), slog.String("reason", reason))

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	s.writeMu.Unlock()

	s.conn.Close()
	s.cancel()
}

func (s *Session) run() {
	defer close(s.done)
	defer s.cancel()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.closed = true
			s.closeErr = err
			text, binary := s.textPending, s.binaryPending
			s.textPending, s.binaryPending = nil, nil
			s.mu.Unlock()

			// Outstanding intercepts fault rather than hang.
			if text != nil {
				text <- result{err: ErrSessionClosed}
			}
			if binary != nil {
				binary <- result{err: ErrSessionClosed}
			}

			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				s.lg.Debug("session closed normally")
			} else {
				s.lg.Debugf("session read: %v", err)
			}
			s.conn.Close()
			return
		}

		switch messageType {
		case websocket.TextMessage:
			s.dispatch(&s.textPending, func() func([]byte) { return s.onText }, &s.textBacklog, data)
		case websocket.BinaryMessage:
			s.dispatch(&s.binaryPending, func() func([]byte) { return s.onBinary }, &s.binaryBacklog, data)
		}
	}
}

func (s *Session) dispatch(pending *chan result, handler func() func([]byte), backlog *[][]byte, data []byte) {
	s.mu.Lock()
	if ch := *pending; ch != nil {
		*pending = nil
		s.mu.Unlock()
		ch <- result{data: data}
		return
	}
	h := handler()
	if h == nil {
		// Neither an intercept nor a handler yet; hold the message so a
		// handshake that arms its intercept late still sees it.
		*backlog = append(*backlog, data)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	h(data)
}
