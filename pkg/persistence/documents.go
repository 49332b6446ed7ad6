package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/licitahub/licitahub/pkg/models"
)

// SaveDocument inserts or refreshes one leaf document of a tender. Identity
// is (opportunity_id, content_hash): re-extracting the same bytes refreshes
// the existing row instead of duplicating it.
func (s *Service) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := s.now()
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO documents
			(id, opportunity_id, title, storage_url, size_bytes, content_hash,
			 mime_type, extraction_status, extracted_text, extraction_engine, page_count,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (opportunity_id, content_hash) DO UPDATE SET
			title = EXCLUDED.title,
			storage_url = EXCLUDED.storage_url,
			extraction_status = EXCLUDED.extraction_status,
			extracted_text = EXCLUDED.extracted_text,
			extraction_engine = EXCLUDED.extraction_engine,
			page_count = EXCLUDED.page_count,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		doc.ID, doc.OpportunityID, doc.Title, doc.StorageURL, doc.SizeBytes, doc.ContentHash,
		doc.MimeType, doc.ExtractionStatus, doc.ExtractedText, doc.ExtractionEngine, doc.PageCount,
		now,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.Title, err)
	}
	return nil
}

// GetDocument retrieves one document by id, or nil.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.GetContext(ctx, &doc, `
		SELECT id, opportunity_id, title, storage_url, size_bytes, content_hash,
		       mime_type, extraction_status, extracted_text, extraction_engine, page_count,
		       created_at, updated_at
		FROM documents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return &doc, nil
}

// ListDocuments lists the documents of one opportunity.
func (s *Service) ListDocuments(ctx context.Context, opportunityID int64) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.SelectContext(ctx, &docs, `
		SELECT id, opportunity_id, title, storage_url, size_bytes, content_hash,
		       mime_type, extraction_status, extracted_text, extraction_engine, page_count,
		       created_at, updated_at
		FROM documents WHERE opportunity_id = $1 ORDER BY created_at`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list documents of opportunity %d: %w", opportunityID, err)
	}
	return docs, nil
}

// SetExtractionStatus transitions a document's extraction status.
func (s *Service) SetExtractionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET extraction_status = $1, updated_at = $2 WHERE id = $3`,
		status, s.now(), id)
	if err != nil {
		return fmt.Errorf("set extraction status of %s: %w", id, err)
	}
	return nil
}
