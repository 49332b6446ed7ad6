package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// previewLen is how much raw text is kept beside each cached vector, for
// debugging cache contents.
const previewLen = 100

// CachedVector is one hit from the embedding cache.
type CachedVector struct {
	TextHash  string
	Embedding []float32
	ModelName string
}

// VectorCache is the permanent embedding cache. Rows are keyed by the
// SHA-256 of the raw text and never rewritten: conflicting inserts only
// bump last_accessed_at and access_count.
type VectorCache struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewVectorCache creates the cache over the shared database pool.
func NewVectorCache(db *sqlx.DB) *VectorCache {
	return &VectorCache{db: db, now: time.Now}
}

// HashText computes the cache key of a text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// BatchGet looks up the given hashes and returns the hits keyed by hash.
// Hits have their access bookkeeping bumped in the same round trip.
func (c *VectorCache) BatchGet(ctx context.Context, hashes []string) (map[string]CachedVector, error) {
	if len(hashes) == 0 {
		return map[string]CachedVector{}, nil
	}

	rows, err := c.db.QueryxContext(ctx, `
		UPDATE embedding_cache SET
			last_accessed_at = $2,
			access_count = access_count + 1
		WHERE text_hash = ANY($1)
		RETURNING text_hash, embedding, model_name`,
		pq.Array(hashes), c.now())
	if err != nil {
		return nil, fmt.Errorf("embedding cache lookup: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make(map[string]CachedVector)
	for rows.Next() {
		var (
			hash      string
			embedding pq.Float64Array
			model     string
		)
		if err := rows.Scan(&hash, &embedding, &model); err != nil {
			return nil, fmt.Errorf("embedding cache scan: %w", err)
		}
		hits[hash] = CachedVector{
			TextHash:  hash,
			Embedding: toFloat32(embedding),
			ModelName: model,
		}
	}
	return hits, rows.Err()
}

// entry is one pending cache insert.
type entry struct {
	text      string
	hash      string
	embedding []float32
	modelName string
}

// BatchPut inserts vectors for the given texts, deduplicating by hash
// within the batch first. On conflict only the access bookkeeping moves.
func (c *VectorCache) BatchPut(ctx context.Context, texts []string, vectors [][]float32, modelName string) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("embedding cache put: %d texts but %d vectors", len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(texts))
	entries := make([]entry, 0, len(texts))
	for i, text := range texts {
		hash := HashText(text)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		entries = append(entries, entry{
			text:      text,
			hash:      hash,
			embedding: vectors[i],
			modelName: modelName,
		})
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("embedding cache tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := c.now()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO embedding_cache
				(text_hash, text_preview, embedding, model_name, created_at, last_accessed_at, access_count)
			VALUES ($1, $2, $3, $4, $5, $5, 1)
			ON CONFLICT (text_hash) DO UPDATE SET
				last_accessed_at = EXCLUDED.last_accessed_at,
				access_count = embedding_cache.access_count + 1`,
			e.hash, preview(e.text), pq.Array(toFloat64(e.embedding)), e.modelName, now,
		); err != nil {
			return fmt.Errorf("embedding cache insert %s: %w", e.hash[:12], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("embedding cache commit: %w", err)
	}
	return nil
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= previewLen {
		return text
	}
	return text[:previewLen]
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
