package gateway

import (
	"context"
	"time"

	"github.com/hubso/realtime/src/rooms"
	"github.com/hubso/realtime/src/types"
)

// Dispatch routes one inbound event. Handler errors are reported back
// only to the originating connection as a gateway:error event; they
// never terminate the session and never reach other members.
func (s *Session) Dispatch(ev types.Event) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	identity := s.identity
	s.mu.Unlock()

	switch ev.Name {
	case types.EventConversationJoin:
		convID := stringField(ev.Data, "conversationId")
		if convID == "" {
			s.Send(types.ErrorEvent("conversation:join requires conversationId"))
			return
		}
		s.registry.Join(s.ID, rooms.ConversationRoom(convID))

	case types.EventConversationLeave:
		convID := stringField(ev.Data, "conversationId")
		if convID == "" {
			s.Send(types.ErrorEvent("conversation:leave requires conversationId"))
			return
		}
		s.registry.Leave(s.ID, rooms.ConversationRoom(convID))

	case types.EventMessageSend:
		convID := stringField(ev.Data, "conversationId")
		content := stringField(ev.Data, "content")
		if convID == "" || content == "" {
			s.Send(types.ErrorEvent("messages:send requires conversationId and content"))
			return
		}
		msgType := stringField(ev.Data, "type")
		if msgType == "" {
			msgType = "text"
		}
		s.registry.Broadcast(rooms.ConversationRoom(convID), types.Event{
			Name: types.EventMessageReceive,
			Data: map[string]any{
				"conversationId": convID,
				"content":        content,
				"type":           msgType,
				"from":           identity.UserID,
			},
			Timestamp: time.Now(),
		})

	case types.EventTyping:
		convID := stringField(ev.Data, "conversationId")
		if convID == "" {
			s.Send(types.ErrorEvent("messages:typing requires conversationId"))
			return
		}
		s.registry.Broadcast(rooms.ConversationRoom(convID), types.Event{
			Name: types.EventTypingIndicator,
			Data: map[string]any{
				"userId":         identity.UserID,
				"conversationId": convID,
				"isTyping":       true,
			},
			Timestamp: time.Now(),
		})

	case types.EventHeartbeat:
		s.presence.Heartbeat(context.Background(), identity.UserID)
		s.Send(types.Event{Name: types.EventHeartbeatAck, Timestamp: time.Now()})

	default:
		s.logger.Debug().Str("event", ev.Name).Msg("unknown event")
		s.Send(types.ErrorEvent("unknown event: " + ev.Name))
	}
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	v, _ := data[key].(string)
	return v
}
