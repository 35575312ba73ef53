package wsmux

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	heartbeatMinInterval = 15 * time.Second
	heartbeatMaxInterval = 25 * time.Second
)

// Socket is one group's websocket state machine: connect, subscribe,
// heartbeat, and close, re-entrant across reconnections. States INIT,
// DIALING, OPEN and SUBSCRIBED collapse onto the group's published
// PENDING/ALIVE status; CLOSED/ERROR collapse onto DEAD.
type Socket struct {
	group   *Group
	policy  ChannelPolicy
	limiter RateLimiter
	dialer  *websocket.Dialer
	filter  FilterFunc

	connMu sync.Mutex
	conn   *websocket.Conn

	// generation guards against a stale heartbeat/read-loop goroutine
	// from a prior Connect outliving a reconnect; each Connect call
	// bumps it and the old goroutines notice and exit. This is the
	// Go-native equivalent of "remove all listeners before attaching
	// new ones" (spec.md §9 open question) — there is no persistent
	// listener list to leak, so a generation check is sufficient.
	genMu sync.Mutex
	gen   int
}

func newSocket(g *Group, policy ChannelPolicy, limiter RateLimiter, dialer *websocket.Dialer, filter FilterFunc) *Socket {
	return &Socket{
		group:   g,
		policy:  policy,
		limiter: limiter,
		dialer:  dialer,
		filter:  filter,
	}
}

func (s *Socket) shouldCleanup() bool {
	return s.group.Len() == 0 && !s.group.Pinned()
}

func (s *Socket) nextGeneration() int {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gen++
	return s.gen
}

func (s *Socket) currentGeneration() int {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gen
}

// Connect dials, subscribes, and starts the read loop and heartbeat. It
// returns once the open handshake (dial + subscribe) has resolved one
// way or the other; the read loop and heartbeat continue in background
// goroutines.
func (s *Socket) Connect(ctx context.Context) error {
	if s.shouldCleanup() {
		s.group.setStatus(StatusCleanup)
		return nil
	}

	gen := s.nextGeneration()

	if err := s.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("acquiring dial slot for group %s: %w", s.group.ID, err)
	}
	defer s.limiter.Release()

	s.group.setStatus(StatusPending)

	conn, _, err := s.dialer.DialContext(ctx, s.policy.URL(), nil)
	if err != nil {
		s.group.setStatus(StatusDead)
		return fmt.Errorf("dialing %s for group %s: %w", s.policy.URL(), s.group.ID, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.group.setSocket(s)

	if err := s.onOpen(); err != nil {
		return err
	}

	go s.readLoop(ctx, gen)
	go s.heartbeatLoop(ctx, gen)

	return nil
}

func (s *Socket) onOpen() error {
	if s.shouldCleanup() {
		s.group.setStatus(StatusCleanup)
		return nil
	}
	if s.group.socketHandle() != s {
		s.group.setStatus(StatusDead)
		return fmt.Errorf("group %s: %w", s.group.ID, ErrSocketGone)
	}

	payload, err := s.policy.BuildSubscription(s.group)
	if err != nil {
		s.group.setStatus(StatusDead)
		return fmt.Errorf("building subscription for group %s: %w", s.group.ID, err)
	}

	if err := s.writeJSON(payload); err != nil {
		s.group.setStatus(StatusDead)
		return fmt.Errorf("sending subscription for group %s: %w", s.group.ID, err)
	}

	s.group.setStatus(StatusAlive)
	s.policy.Lifecycle().FireOpen(s.group.ID, s.group.Keys())
	return nil
}

func (s *Socket) writeJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return ErrSocketGone
	}
	return s.conn.WriteJSON(v)
}

func (s *Socket) readLoop(ctx context.Context, gen int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if s.currentGeneration() != gen {
			return
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.currentGeneration() == gen {
				s.onClose(err)
			}
			return
		}

		s.onMessage(data)
	}
}

func (s *Socket) onMessage(data []byte) {
	events, err := s.policy.ParseFrame(data)
	if err != nil {
		s.policy.Lifecycle().FireError(fmt.Errorf("parsing frame for group %s: %w", s.group.ID, err))
		return
	}
	if len(events) == 0 {
		return
	}
	s.policy.Dispatch(s.group, events, s.filter)
}

func (s *Socket) onClose(err error) {
	s.stopConn()
	s.group.setStatus(StatusDead)
	var closeErr *websocket.CloseError
	if ce, ok := err.(*websocket.CloseError); ok {
		closeErr = ce
		s.policy.Lifecycle().FireClose(s.group.ID, closeErr.Code, closeErr.Text)
		return
	}
	s.policy.Lifecycle().FireError(fmt.Errorf("group %s read: %w", s.group.ID, err))
}

func (s *Socket) stopConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close tears down the underlying connection, if any, bumping the
// generation so background goroutines from this Socket instance exit.
func (s *Socket) Close() error {
	s.genMu.Lock()
	s.gen++
	s.genMu.Unlock()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Socket) heartbeatLoop(ctx context.Context, gen int) {
	for {
		interval := heartbeatMinInterval + time.Duration(rand.Int63n(int64(heartbeatMaxInterval-heartbeatMinInterval)))
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if s.currentGeneration() != gen {
			return
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			s.group.setStatus(StatusDead)
			return
		}

		if s.shouldCleanup() {
			s.group.setStatus(StatusCleanup)
			return
		}

		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			s.policy.Lifecycle().FireError(fmt.Errorf("group %s ping: %w", s.group.ID, err))
			return
		}
	}
}

// ParseFrame decodes a server frame that is either a single JSON object
// or an array of them into T values, mirroring the source's dual
// framing (spec.md §4.3 on-message contract). Intended to be called from
// a ChannelPolicy.ParseFrame implementation.
func ParseFrame[T any](data []byte) ([]T, error) {
	trimmed := trimLeadingSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("parsing event array: %w", err)
		}
		return out, nil
	}

	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("parsing event object: %w", err)
	}
	return []T{one}, nil
}

func trimLeadingSpace(data []byte) []byte {
	for len(data) > 0 {
		switch data[0] {
		case ' ', '\t', '\n', '\r':
			data = data[1:]
		default:
			return data
		}
	}
	return data
}
