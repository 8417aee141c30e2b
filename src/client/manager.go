// Package client is the connection manager run by each client process.
// It establishes the gateway connection, re-establishes it after loss,
// and exposes a local publish/subscribe surface to application code.
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/hubso/realtime/src/types"
)

// Dialer establishes one transport-level connection. Injected so tests
// run without sockets.
type Dialer interface {
	Dial(rawURL string, header http.Header) (types.Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(rawURL string, header http.Header) (types.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Manager.
type Options struct {
	URL            string        // gateway websocket endpoint, e.g. ws://host:4000/ws
	Dialer         Dialer        // nil means the real websocket dialer
	ReconnectDelay time.Duration // delay before the single reconnect attempt, default 5s
	DialAttempts   int           // low-level dial retries per Connect, default 5
	Logger         zerolog.Logger
}

// Manager owns the single logical gateway connection for one
// application instance. Connect and Disconnect are sequential state
// transitions; at most one reconnect timer is pending at a time.
type Manager struct {
	url            string
	dialer         Dialer
	reconnectDelay time.Duration
	dialAttempts   int
	logger         zerolog.Logger

	mu         sync.Mutex
	conn       types.Conn
	token      string
	connected  bool
	connecting bool
	retryTimer *time.Timer

	handlers map[string][]func(data map[string]any)
	signals  map[string]map[int]func(data map[string]any)
	nextSub  int
}

// New creates a disconnected manager.
func New(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = wsDialer{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = 5
	}
	return &Manager{
		url:            opts.URL,
		dialer:         opts.Dialer,
		reconnectDelay: opts.ReconnectDelay,
		dialAttempts:   opts.DialAttempts,
		logger:         opts.Logger.With().Str("component", "client").Logger(),
		handlers:       make(map[string][]func(map[string]any)),
		signals:        make(map[string]map[int]func(map[string]any)),
	}
}

// Connect establishes the gateway connection with the given credential.
// A call while already connected is a no-op. The transport dial retries
// up to DialAttempts times with a 1s..5s delay ladder before giving up.
func (m *Manager) Connect(token string) error {
	m.mu.Lock()
	if m.connected || m.connecting {
		m.mu.Unlock()
		m.logger.Debug().Msg("already connected")
		return nil
	}
	m.connecting = true
	m.token = token
	m.cancelRetryLocked()
	m.mu.Unlock()

	endpoint := m.url + "?token=" + url.QueryEscape(token)

	var conn types.Conn
	var err error
	for attempt := 1; attempt <= m.dialAttempts; attempt++ {
		conn, err = m.dialer.Dial(endpoint, nil)
		if err == nil {
			break
		}
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")
		if attempt < m.dialAttempts {
			time.Sleep(dialDelay(attempt))
		}
	}
	if err != nil {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		m.fire(types.SignalError, map[string]any{"error": err.Error()})
		return fmt.Errorf("connect: %w", err)
	}

	m.mu.Lock()
	m.connecting = false
	if m.token == "" {
		// Disconnect landed while dialing; drop the fresh connection.
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	m.connected = true
	m.cancelRetryLocked()
	m.mu.Unlock()

	m.logger.Info().Msg("connected")
	m.fire(types.SignalConnected, nil)
	go m.readLoop(conn)
	return nil
}

// dialDelay is the backoff ladder between low-level dial attempts,
// 1s after the first failure growing to a 5s cap.
func dialDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * time.Second
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Disconnect tears down the transport and clears local subscriptions.
// Idempotent. The held credential is dropped, so no reconnect fires.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelRetryLocked()
	m.token = ""
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.handlers = make(map[string][]func(map[string]any))
	m.signals = make(map[string]map[int]func(map[string]any))
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		m.logger.Info().Msg("disconnected")
	}
}

// IsConnected reports whether the transport is currently up.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribe registers a callback for a client-local signal (connected,
// disconnected, error). The returned function removes exactly that
// subscription.
func (m *Manager) Subscribe(signal string, cb func(data map[string]any)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.signals[signal] == nil {
		m.signals[signal] = make(map[int]func(map[string]any))
	}
	id := m.nextSub
	m.nextSub++
	m.signals[signal][id] = cb

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.signals[signal], id)
	}
}

// On registers a handler for a named event arriving from the gateway.
func (m *Manager) On(event string, cb func(data map[string]any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], cb)
}

// Off removes all handlers for a gateway event.
func (m *Manager) Off(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, event)
}

// Emit sends an event to the gateway, best-effort. When disconnected
// the send is dropped with a warning; nothing is queued.
func (m *Manager) Emit(event string, data map[string]any) {
	m.mu.Lock()
	conn := m.conn
	connected := m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.logger.Warn().Str("event", event).Msg("not connected, dropping event")
		return
	}
	ev := types.Event{Name: event, Data: data, Timestamp: time.Now()}
	if err := conn.WriteJSON(ev); err != nil {
		m.logger.Warn().Err(err).Str("event", event).Msg("send failed")
	}
}

// SendMessage sends a chat message to a conversation.
func (m *Manager) SendMessage(conversationID, content string) {
	m.Emit(types.EventMessageSend, map[string]any{
		"conversationId": conversationID,
		"content":        content,
		"type":           "text",
	})
}

// SendTyping signals that the user is typing in a conversation.
func (m *Manager) SendTyping(conversationID string) {
	m.Emit(types.EventTyping, map[string]any{"conversationId": conversationID})
}

// JoinConversation subscribes this client to a conversation room.
func (m *Manager) JoinConversation(conversationID string) {
	m.Emit(types.EventConversationJoin, map[string]any{"conversationId": conversationID})
}

// LeaveConversation unsubscribes this client from a conversation room.
func (m *Manager) LeaveConversation(conversationID string) {
	m.Emit(types.EventConversationLeave, map[string]any{"conversationId": conversationID})
}

// readLoop pumps inbound events to registered handlers until the
// transport drops, then triggers the reconnect path.
func (m *Manager) readLoop(conn types.Conn) {
	for {
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			m.handleDrop(conn, err)
			return
		}

		m.mu.Lock()
		cbs := make([]func(map[string]any), len(m.handlers[ev.Name]))
		copy(cbs, m.handlers[ev.Name])
		m.mu.Unlock()

		for _, cb := range cbs {
			cb(ev.Data)
		}
	}
}

// handleDrop runs when the transport fails. It fires the disconnected
// signal and arms the single reconnect timer if a credential is held.
func (m *Manager) handleDrop(conn types.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// A newer connection replaced this one; stale loop, nothing to do.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	m.logger.Warn().Err(err).Msg("connection lost")
	m.fire(types.SignalDisconnected, map[string]any{"reason": err.Error()})
	m.scheduleReconnect()
}

// scheduleReconnect arms exactly one reconnect attempt after the fixed
// delay. Timers never compound: an armed timer blocks a second one,
// and the attempt is skipped if a connection exists when it fires.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.retryTimer != nil || m.token == "" {
		return
	}
	m.retryTimer = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		m.retryTimer = nil
		token := m.token
		connected := m.connected
		m.mu.Unlock()

		if token == "" || connected {
			return
		}
		if err := m.Connect(token); err != nil {
			m.logger.Warn().Err(err).Msg("reconnect failed")
		}
	})
}

// cancelRetryLocked stops a pending reconnect timer. Caller holds mu.
func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// fire invokes signal subscribers outside the lock.
func (m *Manager) fire(signal string, data map[string]any) {
	m.mu.Lock()
	cbs := make([]func(map[string]any), 0, len(m.signals[signal]))
	for _, cb := range m.signals[signal] {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(data)
	}
}
