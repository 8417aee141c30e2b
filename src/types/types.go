package types

import "time"

// Event is the wire frame exchanged between clients and the gateway
// in both directions. Data carries the event-specific payload.
type Event struct {
	Name      string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Client -> gateway events.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "messages:send"
	EventTyping            = "messages:typing"
	EventHeartbeat         = "presence:heartbeat"
)

// Gateway -> client events.
const (
	EventMessageReceive  = "messages:receive"
	EventTypingIndicator = "messages:typing-indicator"
	EventUserOnline      = "user:online"
	EventUserOffline     = "user:offline"
	EventUserJoined      = "conversation:user-joined"
	EventUserLeft        = "conversation:user-left"
	EventHeartbeatAck    = "presence:heartbeat:ack"
	EventError           = "gateway:error"
)

// Client-local signals emitted by the connection manager. These never
// appear on the wire.
const (
	SignalConnected    = "connected"
	SignalDisconnected = "disconnected"
	SignalError        = "error"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// ErrorEvent builds a gateway:error event delivered only to the
// connection that sent the offending frame.
func ErrorEvent(reason string) Event {
	return Event{
		Name:      EventError,
		Data:      map[string]any{"error": reason},
		Timestamp: time.Now(),
	}
}
