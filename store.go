package supervisor

import (
	"github.com/wagiedev/claude-supervisor-go/internal/store"
)

// Store is the SQLite-backed ledger of sessions and token usage. It
// persists session metadata and counters only, never transcript content.
type Store = store.Store

// SessionRecord is one persisted session row.
type SessionRecord = store.SessionRecord

// Session status values recorded in the ledger.
const (
	StatusActive    = store.StatusActive
	StatusCompleted = store.StatusCompleted
	StatusFailed    = store.StatusFailed
)

// OpenStore opens or creates a usage ledger at path. Pass the result to
// WithStore and close it after the supervisor is closed.
func OpenStore(path string) (*Store, error) {
	return store.Open(path)
}
