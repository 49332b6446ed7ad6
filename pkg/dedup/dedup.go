// Package dedup remembers which documents have already been vectorized so
// the RAG pipeline skips unchanged files on repeated queries.
package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Fingerprint identifies one document's content.
type Fingerprint struct {
	URL         string
	SizeBytes   int64
	ContentHash string
}

// Service tracks processed documents in rag_document_processed.
type Service struct {
	db  *sqlx.DB
	now func() time.Time
}

// New creates the dedup service.
func New(db *sqlx.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// ShouldProcess reports whether a document needs (re)processing: true when
// it has no chunks yet, or when its recorded content hash differs from the
// supplied one.
func (s *Service) ShouldProcess(ctx context.Context, documentID uuid.UUID, fp Fingerprint) (bool, error) {
	var chunkCount int
	err := s.db.GetContext(ctx, &chunkCount,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return false, fmt.Errorf("count chunks of %s: %w", documentID, err)
	}
	if chunkCount == 0 {
		return true, nil
	}

	var recordedHash string
	err = s.db.GetContext(ctx, &recordedHash,
		`SELECT content_hash FROM rag_document_processed WHERE document_id = $1`, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup processed record of %s: %w", documentID, err)
	}
	return recordedHash != fp.ContentHash, nil
}

// MarkProcessed records that the document's current content has been
// vectorized.
func (s *Service) MarkProcessed(ctx context.Context, documentID uuid.UUID, fp Fingerprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rag_document_processed (document_id, content_hash, url, size_bytes, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			url = EXCLUDED.url,
			size_bytes = EXCLUDED.size_bytes,
			processed_at = EXCLUDED.processed_at`,
		documentID, fp.ContentHash, fp.URL, fp.SizeBytes, s.now())
	if err != nil {
		return fmt.Errorf("mark %s processed: %w", documentID, err)
	}
	return nil
}
