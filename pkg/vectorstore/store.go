// Package vectorstore persists document chunks and their embeddings in
// Postgres with the pgvector extension and serves hybrid (vector + keyword)
// retrieval scoped to one opportunity.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
)

// ChunkDims is the dimensionality of the chunks.embedding column; it matches
// the primary embedding model. Vectors from fallback models are narrower and
// cannot share the column.
const ChunkDims = 3072

// ErrDimensionMismatch is returned when a vector does not fit the chunk
// store's embedding column.
var ErrDimensionMismatch = errors.New("embedding dimension does not match the chunk store")

// Store persists and retrieves chunks.
type Store struct {
	db     *sqlx.DB
	logger observability.Logger
	now    func() time.Time
}

// New creates the store over the shared database pool.
func New(db *sqlx.DB, logger observability.Logger) *Store {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Store{db: db, logger: logger.WithPrefix("vectorstore"), now: time.Now}
}

// SaveChunks replaces the chunks of one document transactionally, recording
// the model that produced the vectors. The call is rejected when chunk and
// embedding counts disagree or a vector does not fit the embedding column;
// a partial write would corrupt retrieval silently.
func (s *Store) SaveChunks(ctx context.Context, documentID uuid.UUID, opportunityID int64, chunks []models.Chunk, embeddings [][]float32, modelName string) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("save chunks: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	for i, embedding := range embeddings {
		if len(embedding) != ChunkDims {
			return fmt.Errorf("save chunks: vector %d from model %q has %d dimensions, column takes %d: %w",
				i, modelName, len(embedding), ChunkDims, ErrDimensionMismatch)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save chunks tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Re-extraction replaces the document's chunk set wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear chunks of %s: %w", documentID, err)
	}

	now := s.now()
	for i := range chunks {
		chunk := &chunks[i]
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}

		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks
				(id, document_id, opportunity_id, text, chunk_type, page_number,
				 section_title, token_count, char_count, embedding, model_name,
				 metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, $11, $12, $13)`,
			chunk.ID, documentID, opportunityID, chunk.Text, chunk.ChunkType, chunk.PageNumber,
			chunk.SectionTitle, chunk.TokenCount, chunk.CharCount,
			vectorLiteral(embeddings[i]), modelName, metadata, now,
		); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", i, documentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save chunks commit: %w", err)
	}
	return nil
}

// CountChunks counts the stored chunks of one document.
func (s *Store) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("count chunks of %s: %w", documentID, err)
	}
	return count, nil
}

// DocumentStatus is the vectorization state of one document.
type DocumentStatus struct {
	DocumentID       uuid.UUID `db:"id" json:"document_id"`
	Title            string    `db:"title" json:"title"`
	ExtractionStatus string    `db:"extraction_status" json:"extraction_status"`
	ChunkCount       int       `db:"chunk_count" json:"chunk_count"`
}

// Status is the vectorization state of one opportunity.
type Status struct {
	FullyVectorized bool             `json:"fully_vectorized"`
	PerDocument     []DocumentStatus `json:"per_document"`
}

// VectorizationStatus reports whether every document of the opportunity has
// been extracted and chunked. No documents at all means not vectorized.
func (s *Store) VectorizationStatus(ctx context.Context, opportunityID int64) (*Status, error) {
	var rows []DocumentStatus
	err := s.db.SelectContext(ctx, &rows, `
		SELECT d.id, d.title, d.extraction_status,
		       (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id) AS chunk_count
		FROM documents d
		WHERE d.opportunity_id = $1
		ORDER BY d.created_at`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("vectorization status of %d: %w", opportunityID, err)
	}

	status := &Status{PerDocument: rows, FullyVectorized: len(rows) > 0}
	for _, row := range rows {
		if row.ExtractionStatus != models.ExtractionDone || row.ChunkCount == 0 {
			status.FullyVectorized = false
			break
		}
	}
	return status, nil
}

// vectorLiteral renders a pgvector input literal.
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
