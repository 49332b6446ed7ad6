package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/providers"
)

const (
	// DefaultSearchLimit is the hybrid result size when the caller passes 0.
	DefaultSearchLimit = 12

	vectorWeight  = 0.7
	keywordWeight = 0.3
)

// ScoredChunk is one hybrid search hit.
type ScoredChunk struct {
	models.Chunk
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	Score        float64 `json:"score"`
}

// chunkRow scans one chunks row plus an optional similarity column.
type chunkRow struct {
	ID           uuid.UUID `db:"id"`
	DocumentID   uuid.UUID `db:"document_id"`
	OpportunityID int64    `db:"opportunity_id"`
	Text         string    `db:"text"`
	ChunkType    string    `db:"chunk_type"`
	PageNumber   int       `db:"page_number"`
	SectionTitle *string   `db:"section_title"`
	TokenCount   int       `db:"token_count"`
	CharCount    int       `db:"char_count"`
	ModelName    string    `db:"model_name"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
	Similarity   float64   `db:"similarity"`
}

func (r *chunkRow) toChunk() models.Chunk {
	chunk := models.Chunk{
		ID:            r.ID,
		DocumentID:    r.DocumentID,
		OpportunityID: r.OpportunityID,
		Text:          r.Text,
		ChunkType:     r.ChunkType,
		PageNumber:    r.PageNumber,
		SectionTitle:  r.SectionTitle,
		TokenCount:    r.TokenCount,
		CharCount:     r.CharCount,
		ModelName:     r.ModelName,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &chunk.Metadata)
	}
	return chunk
}

const chunkColumns = `id, document_id, opportunity_id, text, chunk_type,
	page_number, section_title, token_count, char_count, model_name, metadata, created_at`

// HybridSearch retrieves the best chunks of one opportunity for a query:
// cosine top 2×limit unioned with a bounded keyword pass, scored
// 0.7·vector + 0.3·keyword.
func (s *Store) HybridSearch(ctx context.Context, queryText string, queryEmbedding []float32, opportunityID int64, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	merged := make(map[uuid.UUID]*ScoredChunk)

	vectorHits, err := s.vectorSearch(ctx, queryEmbedding, opportunityID, 2*limit)
	if err != nil {
		return nil, err
	}
	for _, row := range vectorHits {
		hit := &ScoredChunk{Chunk: row.toChunk(), VectorScore: row.Similarity}
		merged[row.ID] = hit
	}

	keywordHits, err := s.keywordSearch(ctx, queryText, opportunityID, 3*limit)
	if err != nil {
		s.logger.Warn("keyword search failed, using vector hits only", map[string]interface{}{
			"opportunity": opportunityID, "error": err.Error(),
		})
		keywordHits = nil
	}
	for _, hit := range keywordHits {
		if existing, ok := merged[hit.chunk.ID]; ok {
			if hit.score > existing.KeywordScore {
				existing.KeywordScore = hit.score
			}
			continue
		}
		merged[hit.chunk.ID] = &ScoredChunk{Chunk: hit.chunk, KeywordScore: hit.score}
	}

	out := make([]ScoredChunk, 0, len(merged))
	for _, hit := range merged {
		hit.Score = vectorWeight*hit.VectorScore + keywordWeight*hit.KeywordScore
		out = append(out, *hit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) vectorSearch(ctx context.Context, embedding []float32, opportunityID int64, limit int) ([]chunkRow, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if len(embedding) != ChunkDims {
		return nil, fmt.Errorf("query vector has %d dimensions, chunks carry %d: %w",
			len(embedding), ChunkDims, ErrDimensionMismatch)
	}
	var rows []chunkRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+chunkColumns+`,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM chunks
		WHERE opportunity_id = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`,
		vectorLiteral(embedding), opportunityID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search in opportunity %d: %w", opportunityID, err)
	}
	return rows, nil
}

type keywordHit struct {
	chunk models.Chunk
	score float64
}

// keywordSearch substring-matches the query terms against chunk text. The
// SQL pass filters on the raw words; scoring compares accent-normalized
// forms so "licitação" and "licitacao" count the same.
func (s *Store) keywordSearch(ctx context.Context, queryText string, opportunityID int64, limit int) ([]keywordHit, error) {
	rawTerms, terms := queryTerms(queryText)
	if len(terms) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(rawTerms))
	args := []interface{}{opportunityID}
	for _, term := range rawTerms {
		args = append(args, "%"+term+"%")
		clauses = append(clauses, fmt.Sprintf("text ILIKE $%d", len(args)))
	}
	args = append(args, limit)

	var rows []chunkRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+chunkColumns+`, 0 AS similarity
		FROM chunks
		WHERE opportunity_id = $1 AND (`+strings.Join(clauses, " OR ")+`)
		LIMIT $`+fmt.Sprint(len(args)),
		args...)
	if err != nil {
		return nil, err
	}

	hits := make([]keywordHit, 0, len(rows))
	for _, row := range rows {
		normalized := providers.Normalize(row.Text)
		matched := 0
		for _, term := range terms {
			if strings.Contains(normalized, term) {
				matched++
			}
		}
		hits = append(hits, keywordHit{
			chunk: row.toChunk(),
			score: float64(matched) / float64(len(terms)),
		})
	}
	return hits, nil
}

// queryTerms keeps words long enough to carry meaning, in raw lowercase and
// accent-normalized form, index-aligned.
func queryTerms(query string) (raw, normalized []string) {
	for _, word := range strings.Fields(strings.ToLower(query)) {
		norm := providers.Normalize(word)
		if len(norm) < 3 {
			continue
		}
		raw = append(raw, word)
		normalized = append(normalized, norm)
	}
	return raw, normalized
}
