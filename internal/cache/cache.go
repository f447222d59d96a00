// Package cache is the expiring key-value substrate for lookup and citation
// results. Freshness policy lives in the orchestrator; stores only persist
// entries and evict them best-effort after the supplied TTL.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one cached payload with its write timestamp (unix millis).
type Entry struct {
	SavedAt int64           `json:"savedAt"`
	Payload json.RawMessage `json:"payload"`
}

// Store is implemented by cache backends. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}
