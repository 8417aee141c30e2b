// Package presence tracks which users currently have a live connection.
// Presence is a best-effort, TTL-bounded signal: when the backing store
// is unreachable every operation degrades to a safe default instead of
// surfacing an error to the connection path.
package presence

import "context"

// Store is the presence contract consumed by the gateway and the
// HTTP surface.
type Store interface {
	// SetOnline creates or refreshes the user's record with a fresh TTL.
	SetOnline(ctx context.Context, userID string)

	// SetOffline removes the record for immediate offline visibility.
	SetOffline(ctx context.Context, userID string)

	// Heartbeat extends the TTL of an existing record only. A heartbeat
	// for a user with no record is a no-op, so an explicitly closed
	// session cannot be resurrected by a late heartbeat.
	Heartbeat(ctx context.Context, userID string)

	// IsOnline reports whether a non-expired record exists.
	IsOnline(ctx context.Context, userID string) bool

	// GetPresence returns the online flag for every requested id. An
	// empty input returns an empty map without touching the backend.
	GetPresence(ctx context.Context, userIDs []string) map[string]bool

	// ListOnlineUserIDs evicts expired entries, then returns the ids of
	// every user still online. Ordering is unspecified.
	ListOnlineUserIDs(ctx context.Context) []string
}
