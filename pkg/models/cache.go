package models

import "time"

// CacheEntry is the generic keyed byte store row used by persistent cache
// backends. Entries are served only while now < ExpiresAt.
type CacheEntry struct {
	Key       string    `json:"key" db:"key"`
	Value     []byte    `json:"-" db:"value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	HitCount  int64     `json:"hit_count" db:"hit_count"`
}

// Expired reports whether the entry is past its TTL.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// EmbeddingCacheEntry is one permanent row of the embedding cache. Rows are
// never rewritten: a conflicting insert only bumps LastAccessedAt and
// AccessCount.
type EmbeddingCacheEntry struct {
	TextHash       string    `json:"text_hash" db:"text_hash"`
	TextPreview    string    `json:"text_preview" db:"text_preview"`
	Embedding      []float32 `json:"-" db:"-"`
	ModelName      string    `json:"model_name" db:"model_name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at" db:"last_accessed_at"`
	AccessCount    int64     `json:"access_count" db:"access_count"`
}
