package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is one downloadable file advertised by a provider for a
// tender, before download and unpacking.
type Attachment struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Extraction status values for tender documents.
const (
	ExtractionPending    = "pending"
	ExtractionProcessing = "processing"
	ExtractionDone       = "done"
	ExtractionFailed     = "failed"
)

// Document is one attachment of a tender, after recursive unpacking.
// ZIP containers are not persisted; only leaf documents are.
type Document struct {
	ID               uuid.UUID `json:"id" db:"id"`
	OpportunityID    int64     `json:"opportunity_id" db:"opportunity_id"`
	Title            string    `json:"title" db:"title"`
	StorageURL       string    `json:"storage_url" db:"storage_url"`
	SizeBytes        int64     `json:"size_bytes" db:"size_bytes"`
	ContentHash      string    `json:"content_hash" db:"content_hash"`
	MimeType         string    `json:"mime_type" db:"mime_type"`
	ExtractionStatus string    `json:"extraction_status" db:"extraction_status"`
	ExtractedText    *string   `json:"extracted_text,omitempty" db:"extracted_text"`
	ExtractionEngine string    `json:"extraction_engine,omitempty" db:"extraction_engine"`
	PageCount        int       `json:"page_count" db:"page_count"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Chunk type values produced by the structure-aware chunker.
const (
	ChunkTitle     = "title"
	ChunkSubtitle  = "subtitle"
	ChunkParagraph = "paragraph"
	ChunkList      = "list"
	ChunkTable     = "table"
)

// Chunk is a bounded, overlapping span of extracted document text together
// with its embedding. All chunks of one document share exactly one
// DocumentID and one OpportunityID.
type Chunk struct {
	ID            uuid.UUID              `json:"id" db:"id"`
	DocumentID    uuid.UUID              `json:"document_id" db:"document_id"`
	OpportunityID int64                  `json:"opportunity_id" db:"opportunity_id"`
	Text          string                 `json:"text" db:"text"`
	ChunkType     string                 `json:"chunk_type" db:"chunk_type"`
	PageNumber    int                    `json:"page_number" db:"page_number"`
	SectionTitle  *string                `json:"section_title,omitempty" db:"section_title"`
	TokenCount    int                    `json:"token_count" db:"token_count"`
	CharCount     int                    `json:"char_count" db:"char_count"`
	Embedding     []float32              `json:"-" db:"-"`
	ModelName     string                 `json:"model_name" db:"model_name"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" db:"-"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}
