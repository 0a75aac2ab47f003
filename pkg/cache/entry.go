package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached value.
type Entry struct {
	// Value is the cached document.
	Value json.RawMessage `json:"value"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the value was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry encodes v into an entry valid for ttl.
func NewEntry(v any, ttl time.Duration) (*Entry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Entry{
		Value:    data,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}, nil
}

// Decode unmarshals the value into v.
func (e *Entry) Decode(v any) error {
	return json.Unmarshal(e.Value, v)
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
