package rooms

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubso/realtime/src/types"
)

// mockOutbox records delivered events; fail simulates a full buffer.
type mockOutbox struct {
	mu     sync.Mutex
	events []types.Event
	fail   bool
}

func (m *mockOutbox) Send(ev types.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false
	}
	m.events = append(m.events, ev)
	return true
}

func (m *mockOutbox) received() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func (m *mockOutbox) names() []string {
	var out []string
	for _, ev := range m.received() {
		out = append(out, ev.Name)
	}
	return out
}

func newTestRegistry() *Registry {
	return New(zerolog.Nop())
}

func TestJoinIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	out := &mockOutbox{}
	r.Register("c1", "alice", out)

	require.True(t, r.Join("c1", ConversationRoom("conv-1")))
	require.True(t, r.Join("c1", ConversationRoom("conv-1")))

	assert.Equal(t, 1, r.MemberCount(ConversationRoom("conv-1")))
}

func TestJoinUnknownConnection(t *testing.T) {
	r := newTestRegistry()
	assert.False(t, r.Join("ghost", ConversationRoom("conv-1")))
	assert.Equal(t, 0, r.MemberCount(ConversationRoom("conv-1")))
}

func TestJoinAnnouncesToOthersOnly(t *testing.T) {
	r := newTestRegistry()
	outA := &mockOutbox{}
	outB := &mockOutbox{}
	r.Register("a", "alice", outA)
	r.Register("b", "bob", outB)

	r.Join("a", ConversationRoom("conv-1"))
	r.Join("b", ConversationRoom("conv-1"))

	// Alice was already a member, so she hears about Bob.
	joined := outA.received()
	require.Len(t, joined, 1)
	assert.Equal(t, types.EventUserJoined, joined[0].Name)
	assert.Equal(t, "bob", joined[0].Data["userId"])
	assert.Equal(t, "conv-1", joined[0].Data["conversationId"])

	// Bob never hears about his own join.
	assert.Empty(t, outB.received())

	// Repeated joins announce nothing.
	r.Join("b", ConversationRoom("conv-1"))
	assert.Len(t, outA.received(), 1)
}

func TestCommunityRoomJoinsSilently(t *testing.T) {
	r := newTestRegistry()
	outA := &mockOutbox{}
	outB := &mockOutbox{}
	r.Register("a", "alice", outA)
	r.Register("b", "bob", outB)

	r.Join("a", CommunityRoom("default"))
	r.Join("b", CommunityRoom("default"))

	assert.Empty(t, outA.received())
	assert.Empty(t, outB.received())
	assert.Equal(t, 2, r.MemberCount(CommunityRoom("default")))
}

func TestLeaveAnnouncesAndDeletesEmptyRoom(t *testing.T) {
	r := newTestRegistry()
	outA := &mockOutbox{}
	outB := &mockOutbox{}
	r.Register("a", "alice", outA)
	r.Register("b", "bob", outB)
	r.Join("a", ConversationRoom("conv-1"))
	r.Join("b", ConversationRoom("conv-1"))

	r.Leave("b", ConversationRoom("conv-1"))

	names := outA.names()
	require.Contains(t, names, types.EventUserLeft)
	assert.Equal(t, 1, r.MemberCount(ConversationRoom("conv-1")))

	// Idempotent: leaving again changes nothing.
	r.Leave("b", ConversationRoom("conv-1"))
	assert.Equal(t, 1, r.MemberCount(ConversationRoom("conv-1")))

	// Last member out deletes the room.
	r.Leave("a", ConversationRoom("conv-1"))
	_, exists := r.Rooms()[ConversationRoom("conv-1")]
	assert.False(t, exists)
}

func TestBroadcastReachesEveryMember(t *testing.T) {
	r := newTestRegistry()
	outs := map[string]*mockOutbox{}
	for _, id := range []string{"a", "b", "c"} {
		outs[id] = &mockOutbox{}
		r.Register(id, "user-"+id, outs[id])
		r.Join(id, ConversationRoom("conv-1"))
	}

	r.Broadcast(ConversationRoom("conv-1"), types.Event{Name: types.EventMessageReceive})

	for id, out := range outs {
		assert.Contains(t, out.names(), types.EventMessageReceive, "member %s", id)
	}
}

func TestBroadcastFailureDoesNotBlockOthers(t *testing.T) {
	r := newTestRegistry()
	stuck := &mockOutbox{fail: true}
	healthy := &mockOutbox{}
	r.Register("stuck", "alice", stuck)
	r.Register("healthy", "bob", healthy)
	r.Join("stuck", ConversationRoom("conv-1"))
	r.Join("healthy", ConversationRoom("conv-1"))

	r.Broadcast(ConversationRoom("conv-1"), types.Event{Name: types.EventMessageReceive})

	assert.Contains(t, healthy.names(), types.EventMessageReceive)
}

func TestBroadcastUnknownRoomIsNoop(t *testing.T) {
	r := newTestRegistry()
	out := &mockOutbox{}
	r.Register("a", "alice", out)

	r.Broadcast(ConversationRoom("nowhere"), types.Event{Name: types.EventMessageReceive})

	assert.Empty(t, out.received())
}

func TestBroadcastToUserHitsAllConnections(t *testing.T) {
	r := newTestRegistry()
	out1 := &mockOutbox{}
	out2 := &mockOutbox{}
	other := &mockOutbox{}
	r.Register("phone", "alice", out1)
	r.Register("laptop", "alice", out2)
	r.Register("b", "bob", other)

	r.BroadcastToUser("alice", types.Event{Name: "notifications:receive"})

	assert.Len(t, out1.received(), 1)
	assert.Len(t, out2.received(), 1)
	assert.Empty(t, other.received())
}

func TestDisconnectCleanup(t *testing.T) {
	r := newTestRegistry()
	outA := &mockOutbox{}
	outB := &mockOutbox{}
	r.Register("a", "alice", outA)
	r.Register("b", "bob", outB)
	r.Join("a", ConversationRoom("conv-1"))
	r.Join("a", ConversationRoom("conv-2"))
	r.Join("b", ConversationRoom("conv-1"))

	remaining := r.DisconnectCleanup("a")

	assert.Equal(t, 0, remaining)
	assert.Equal(t, 1, r.ConnCount()) // only b left
	assert.Equal(t, 1, r.MemberCount(ConversationRoom("conv-1")))
	assert.Equal(t, 0, r.MemberCount(ConversationRoom("conv-2")))
	assert.Contains(t, outB.names(), types.EventUserLeft)

	// Second cleanup for the same connection is a harmless no-op.
	assert.Equal(t, 0, r.DisconnectCleanup("a"))
}

func TestDisconnectCleanupCountsRemainingUserConnections(t *testing.T) {
	r := newTestRegistry()
	r.Register("phone", "alice", &mockOutbox{})
	r.Register("laptop", "alice", &mockOutbox{})

	assert.Equal(t, 2, r.UserConnections("alice"))
	assert.Equal(t, 1, r.DisconnectCleanup("phone"))
	assert.Equal(t, 0, r.DisconnectCleanup("laptop"))
	assert.Equal(t, 0, r.UserConnections("alice"))
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	r := newTestRegistry()
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Register(id, "user-"+id, &mockOutbox{})
	}

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Join(connID, ConversationRoom("busy"))
				r.Broadcast(ConversationRoom("busy"), types.Event{Name: types.EventMessageReceive})
				r.Leave(connID, ConversationRoom("busy"))
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 0, r.MemberCount(ConversationRoom("busy")))
}
