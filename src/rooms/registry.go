// Package rooms owns the set of live connections, their room
// memberships, and event fan-out. The registry is intentionally dumb
// and fast: admission control happens upstream, any connection that
// joined a room receives its events.
package rooms

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hubso/realtime/src/types"
)

// Room id namespaces. One room per conversation plus one per community.
const (
	conversationPrefix = "conversation:"
	communityPrefix    = "community:"
)

// ConversationRoom returns the room id for a conversation.
func ConversationRoom(conversationID string) string {
	return conversationPrefix + conversationID
}

// CommunityRoom returns the room id for a community-wide channel.
func CommunityRoom(communityID string) string {
	return communityPrefix + communityID
}

// conversationID extracts the conversation id from a room id, or ""
// when the room is not a conversation room.
func conversationID(roomID string) string {
	if strings.HasPrefix(roomID, conversationPrefix) {
		return strings.TrimPrefix(roomID, conversationPrefix)
	}
	return ""
}

// Outbox delivers an event to one connection without blocking. A false
// return means the event was dropped (buffer full or connection gone).
type Outbox interface {
	Send(ev types.Event) bool
}

type connection struct {
	id     string
	userID string
	outbox Outbox
	rooms  map[string]bool
}

// Registry manages connections and room membership. A single RWMutex
// guards all maps: fan-out dominates membership churn, so contention
// on a coarse lock is not a concern here.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*connection
	users  map[string]map[string]bool // userID -> set of connIDs
	rooms  map[string]map[string]bool // roomID -> set of connIDs
	logger zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*connection),
		users:  make(map[string]map[string]bool),
		rooms:  make(map[string]map[string]bool),
		logger: logger.With().Str("component", "rooms").Logger(),
	}
}

// Register adds a connection bound to a user. Idempotent per connID.
func (r *Registry) Register(connID, userID string, out Outbox) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return
	}
	r.conns[connID] = &connection{
		id:     connID,
		userID: userID,
		outbox: out,
		rooms:  make(map[string]bool),
	}
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]bool)
	}
	r.users[userID][connID] = true

	r.logger.Info().Str("conn_id", connID).Str("user_id", userID).Msg("connection registered")
}

// Join adds the connection to a room, creating the room lazily.
// Idempotent: a repeated join changes nothing and announces nothing.
// On first join the other existing members of a conversation room
// receive a conversation:user-joined event; the joiner does not.
func (r *Registry) Join(connID, roomID string) bool {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if conn.rooms[roomID] {
		r.mu.Unlock()
		return true
	}
	others := r.memberOutboxesLocked(roomID, connID)
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]bool)
	}
	r.rooms[roomID][connID] = true
	conn.rooms[roomID] = true
	userID := conn.userID
	r.mu.Unlock()

	if convID := conversationID(roomID); convID != "" {
		r.deliver(others, types.Event{
			Name:      types.EventUserJoined,
			Data:      map[string]any{"userId": userID, "conversationId": convID},
			Timestamp: time.Now(),
		})
	}
	r.logger.Debug().Str("conn_id", connID).Str("room", roomID).Msg("joined room")
	return true
}

// Leave removes the connection from a room. Idempotent. Remaining
// members of a conversation room receive conversation:user-left; the
// room is deleted once its last member leaves.
func (r *Registry) Leave(connID, roomID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok || !conn.rooms[roomID] {
		r.mu.Unlock()
		return
	}
	delete(conn.rooms, roomID)
	remaining := r.removeMemberLocked(roomID, connID)
	userID := conn.userID
	r.mu.Unlock()

	if convID := conversationID(roomID); convID != "" {
		r.deliver(remaining, types.Event{
			Name:      types.EventUserLeft,
			Data:      map[string]any{"userId": userID, "conversationId": convID},
			Timestamp: time.Now(),
		})
	}
	r.logger.Debug().Str("conn_id", connID).Str("room", roomID).Msg("left room")
}

// Broadcast delivers an event to every current member of the room.
// Delivery is best-effort per member: one full buffer never blocks
// delivery to the rest. Empty or unknown rooms receive nothing.
func (r *Registry) Broadcast(roomID string, ev types.Event) {
	r.mu.RLock()
	targets := r.memberOutboxesLocked(roomID, "")
	r.mu.RUnlock()

	r.deliver(targets, ev)
}

// BroadcastToUser delivers an event to every connection currently
// bound to the user.
func (r *Registry) BroadcastToUser(userID string, ev types.Event) {
	r.mu.RLock()
	var targets []target
	for connID := range r.users[userID] {
		if conn, ok := r.conns[connID]; ok {
			targets = append(targets, target{connID, conn.outbox})
		}
	}
	r.mu.RUnlock()

	r.deliver(targets, ev)
}

// DisconnectCleanup removes the connection from every room it belonged
// to, announcing conversation:user-left to each affected conversation
// room, and drops the connection itself. It returns the number of live
// connections the user still has. Called exactly once at teardown.
func (r *Registry) DisconnectCleanup(connID string) int {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return 0
	}

	type departure struct {
		convID  string
		targets []target
	}
	var departures []departure
	for roomID := range conn.rooms {
		remaining := r.removeMemberLocked(roomID, connID)
		if convID := conversationID(roomID); convID != "" {
			departures = append(departures, departure{convID, remaining})
		}
	}

	delete(r.conns, connID)
	delete(r.users[conn.userID], connID)
	if len(r.users[conn.userID]) == 0 {
		delete(r.users, conn.userID)
	}
	left := len(r.users[conn.userID])
	userID := conn.userID
	r.mu.Unlock()

	for _, d := range departures {
		r.deliver(d.targets, types.Event{
			Name:      types.EventUserLeft,
			Data:      map[string]any{"userId": userID, "conversationId": d.convID},
			Timestamp: time.Now(),
		})
	}
	r.logger.Info().Str("conn_id", connID).Str("user_id", userID).Msg("connection cleaned up")
	return left
}

// UserConnections returns the number of live connections for a user.
func (r *Registry) UserConnections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// ConnCount returns the number of registered connections.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Rooms returns room ids with their member counts.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.rooms))
	for id, members := range r.rooms {
		out[id] = len(members)
	}
	return out
}

// MemberCount returns the membership size of one room.
func (r *Registry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

type target struct {
	connID string
	outbox Outbox
}

// memberOutboxesLocked copies the outboxes of a room's members so
// delivery happens outside the lock. exclude skips one connection.
func (r *Registry) memberOutboxesLocked(roomID, exclude string) []target {
	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	targets := make([]target, 0, len(members))
	for connID := range members {
		if connID == exclude {
			continue
		}
		if conn, ok := r.conns[connID]; ok {
			targets = append(targets, target{connID, conn.outbox})
		}
	}
	return targets
}

// removeMemberLocked drops a member from a room, deletes the room when
// emptied, and returns the remaining members.
func (r *Registry) removeMemberLocked(roomID, connID string) []target {
	members := r.rooms[roomID]
	if members == nil {
		return nil
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return nil
	}
	return r.memberOutboxesLocked(roomID, "")
}

func (r *Registry) deliver(targets []target, ev types.Event) {
	for _, t := range targets {
		if !t.outbox.Send(ev) {
			r.logger.Warn().Str("conn_id", t.connID).Str("event", ev.Name).Msg("send buffer full, dropping")
		}
	}
}
