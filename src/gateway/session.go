// Package gateway runs the per-connection state machine that wires
// authentication, the room registry, and the presence store together.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubso/realtime/src/auth"
	"github.com/hubso/realtime/src/presence"
	"github.com/hubso/realtime/src/rooms"
	"github.com/hubso/realtime/src/types"
)

// State is the lifecycle phase of a session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const sendBuffer = 256

// Session owns one live connection for its lifetime. It is created in
// StateConnecting and always ends in StateClosed, where the mandatory
// cleanup (room removal, presence offline) has run exactly once.
type Session struct {
	ID string

	conn     types.Conn
	verifier auth.Verifier
	registry *rooms.Registry
	presence presence.Store
	logger   zerolog.Logger

	mu       sync.Mutex
	state    State
	identity auth.Identity

	send chan types.Event
	done chan struct{}
}

// New wraps a freshly accepted connection in a session.
func New(conn types.Conn, verifier auth.Verifier, registry *rooms.Registry, store presence.Store, logger zerolog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		ID:       id,
		conn:     conn,
		verifier: verifier,
		registry: registry,
		presence: store,
		logger:   logger.With().Str("component", "session").Str("conn_id", id).Logger(),
		state:    StateConnecting,
		send:     make(chan types.Event, sendBuffer),
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the authenticated user id, or "" before authentication.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.UserID
}

// Authenticate validates the handshake credential and binds the
// identity to the session. On failure the transport is terminated and
// the session is closed; nothing further may be dispatched.
func (s *Session) Authenticate(token string) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return auth.ErrUnauthorized
	}
	s.mu.Unlock()

	identity, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Warn().Err(err).Msg("connection rejected")
		s.Close()
		return err
	}

	s.mu.Lock()
	s.identity = identity
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.logger.Info().Str("user_id", identity.UserID).Str("community_id", identity.CommunityID).Msg("authenticated")
	return nil
}

// Activate registers the session with the room registry, marks the
// user online, and announces user:online to the community. The online
// announcement goes out before the session joins the community room,
// so a connection never sees its own arrival.
func (s *Session) Activate() {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state = StateActive
	identity := s.identity
	s.mu.Unlock()

	s.registry.Register(s.ID, identity.UserID, s)
	s.presence.SetOnline(context.Background(), identity.UserID)

	community := rooms.CommunityRoom(identity.CommunityID)
	s.registry.Broadcast(community, types.Event{
		Name:      types.EventUserOnline,
		Data:      map[string]any{"userId": identity.UserID},
		Timestamp: time.Now(),
	})
	s.registry.Join(s.ID, community)
}

// Send queues an event for delivery without blocking. Implements
// rooms.Outbox.
func (s *Session) Send(ev types.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

// ReadPump reads inbound frames and dispatches them until the
// transport drops, then runs the mandatory cleanup path.
func (s *Session) ReadPump() {
	defer s.Close()
	for {
		var ev types.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			return
		}
		s.Dispatch(ev)
	}
}

// WritePump drains the send queue onto the transport.
func (s *Session) WritePump() {
	defer s.conn.Close()
	for {
		select {
		case ev := <-s.send:
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close transitions the session to StateClosed and runs cleanup. Safe
// to call from any state and from multiple paths; cleanup runs once.
// This is the single required hook on disconnect, abrupt or graceful.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	identity := s.identity
	s.state = StateClosed
	close(s.done)
	s.mu.Unlock()

	_ = s.conn.Close()

	if !wasActive {
		return
	}

	remaining := s.registry.DisconnectCleanup(s.ID)
	if remaining > 0 {
		// Another live connection keeps the user online.
		s.logger.Info().Str("user_id", identity.UserID).Int("remaining", remaining).Msg("closed, user still connected elsewhere")
		return
	}

	s.presence.SetOffline(context.Background(), identity.UserID)
	s.registry.Broadcast(rooms.CommunityRoom(identity.CommunityID), types.Event{
		Name:      types.EventUserOffline,
		Data:      map[string]any{"userId": identity.UserID},
		Timestamp: time.Now(),
	})
	s.logger.Info().Str("user_id", identity.UserID).Msg("closed")
}
