package session

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/newspulse/models"
)

// Store holds per-session conversation history with a TTL refreshed on
// every access. Implementations must be safe for concurrent use.
type Store interface {
	// GetOrCreate returns the session id to use for this request. An empty
	// id mints a fresh session; an unknown id is created as-is, so
	// client-minted ids keep their history; a known id has its TTL renewed.
	// The second return reports whether a new session was created.
	GetOrCreate(ctx context.Context, id string) (string, bool, error)

	// History returns the session's turns, oldest first. Unknown or expired
	// sessions yield an empty history, not an error.
	History(ctx context.Context, id string) ([]models.Turn, error)

	// AppendExchange records a user turn and the assistant reply as one
	// atomic unit, renews the TTL and trims to the turn cap.
	AppendExchange(ctx context.Context, id string, user, assistant models.Turn) error

	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// Sweep evicts expired sessions where eviction is not native to the
	// backend, returning how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Stats reports live session counts.
	Stats(ctx context.Context) (Stats, error)
}

// Stats summarizes the store for the stats endpoint.
type Stats struct {
	ActiveSessions int           `json:"active_sessions"`
	TotalTurns     int           `json:"total_turns"`
	TTL            time.Duration `json:"-"`
	TTLMinutes     int           `json:"ttl_minutes"`
	Backend        string        `json:"backend"`
}
