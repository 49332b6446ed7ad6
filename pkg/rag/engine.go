// Package rag answers questions about one tender from its attached
// documents: extraction and vectorization on demand, hybrid retrieval, LLM
// rerank and a cited answer, with a short-lived answer cache in front.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/licitahub/licitahub/pkg/cache"
	"github.com/licitahub/licitahub/pkg/chunking"
	"github.com/licitahub/licitahub/pkg/dedup"
	"github.com/licitahub/licitahub/pkg/embedding"
	"github.com/licitahub/licitahub/pkg/extraction"
	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/persistence"
	"github.com/licitahub/licitahub/pkg/providers"
	"github.com/licitahub/licitahub/pkg/vectorstore"
)

const (
	answerCacheTTL = time.Hour

	retrieveLimit = 12
	rerankLimit   = 8
)

// Actions attached to structured answer failures, for the caller's
// remediation logic.
const (
	ActionDocumentsNotFound = "documents_not_found"
	ActionExtractionFailed  = "extraction_failed"
	ActionAPIError          = "api_error"
	ActionCriticalError     = "critical_error"
)

// AnswerError is a structured failure of the answer pipeline.
type AnswerError struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Source cites one chunk used in the answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Page       int     `json:"page"`
	Section    *string `json:"section,omitempty"`
}

// AnswerResult is a successful answer.
type AnswerResult struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	ChunksUsed int      `json:"chunks_used"`
	CostUSD    float64  `json:"cost_usd"`
	LatencyMS  int64    `json:"latency_ms"`
	Cached     bool     `json:"cached"`
}

// chatCompleter is the slice of the OpenAI-compatible client the engine
// needs; *openai.Client satisfies it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Engine runs the full query path over one tender's documents.
type Engine struct {
	store       *persistence.Service
	vectors     *vectorstore.Store
	embedder    *embedding.Service
	extractor   *extraction.Service
	dedup       *dedup.Service
	chunker     *chunking.Chunker
	cache       cache.Cache
	llm         chatCompleter
	model       string
	temperature float32
	logger      observability.Logger
	now         func() time.Time
}

// NewEngine wires the answer engine. cache may be nil, which disables the
// answer cache; a zero temperature takes the default.
func NewEngine(store *persistence.Service, vectors *vectorstore.Store, embedder *embedding.Service, extractor *extraction.Service, dd *dedup.Service, answerCache cache.Cache, llm chatCompleter, model string, temperature float32, logger observability.Logger) *Engine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if temperature <= 0 {
		temperature = 0.2
	}
	return &Engine{
		store:       store,
		vectors:     vectors,
		embedder:    embedder,
		extractor:   extractor,
		dedup:       dd,
		chunker:     chunking.New(chunking.Config{}),
		cache:       answerCache,
		llm:         llm,
		model:       model,
		temperature: temperature,
		logger:      logger.WithPrefix("rag"),
		now:         time.Now,
	}
}

// Answer answers one question about one stored opportunity.
func (e *Engine) Answer(ctx context.Context, opportunityID int64, query string) (*AnswerResult, error) {
	start := e.now()

	cacheKey := answerCacheKey(opportunityID, query)
	if e.cache != nil {
		var cached AnswerResult
		if err := cache.GetJSON(ctx, e.cache, cacheKey, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
	}

	stored, err := e.store.GetStoredByID(ctx, opportunityID)
	if err != nil {
		return nil, &AnswerError{Action: ActionCriticalError, Message: err.Error()}
	}
	if stored == nil {
		return nil, &AnswerError{Action: ActionDocumentsNotFound, Message: fmt.Sprintf("opportunity %d not found", opportunityID)}
	}

	if err := e.ensureVectorized(ctx, stored); err != nil {
		return nil, err
	}

	queryVec, err := e.embedder.GenerateOne(ctx, query)
	if err != nil {
		return nil, &AnswerError{Action: ActionAPIError, Message: "query embedding failed: " + err.Error()}
	}

	hits, err := e.vectors.HybridSearch(ctx, query, queryVec, opportunityID, retrieveLimit)
	if err != nil {
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, &AnswerError{Action: ActionAPIError,
				Message: "the query was embedded by a fallback model; retry when the primary embedding tier is available"}
		}
		return nil, &AnswerError{Action: ActionCriticalError, Message: err.Error()}
	}
	if len(hits) == 0 {
		return nil, &AnswerError{Action: ActionDocumentsNotFound, Message: "no relevant document content found"}
	}

	hits = e.rerank(ctx, query, hits, rerankLimit)

	answer, cost, err := e.compose(ctx, &stored.Opportunity, query, hits)
	if err != nil {
		return nil, &AnswerError{Action: ActionAPIError, Message: err.Error()}
	}

	result := &AnswerResult{
		Answer:     answer,
		Sources:    sourcesOf(hits),
		ChunksUsed: len(hits),
		CostUSD:    cost,
		LatencyMS:  time.Since(start).Milliseconds(),
	}

	if e.cache != nil {
		if err := cache.SetJSON(ctx, e.cache, cacheKey, result, answerCacheTTL); err != nil {
			e.logger.Warn("answer cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return result, nil
}

// ensureVectorized runs extraction, chunking and embedding for every
// document of the opportunity that is not vectorized yet.
func (e *Engine) ensureVectorized(ctx context.Context, stored *persistence.Stored) error {
	status, err := e.vectors.VectorizationStatus(ctx, stored.ID)
	if err != nil {
		return &AnswerError{Action: ActionCriticalError, Message: err.Error()}
	}
	if status.FullyVectorized {
		return nil
	}

	docs, err := e.extractor.Process(ctx, stored)
	if err != nil {
		return &AnswerError{Action: ActionExtractionFailed, Message: err.Error()}
	}
	if len(docs) == 0 {
		return &AnswerError{Action: ActionDocumentsNotFound, Message: "the tender has no downloadable documents"}
	}

	vectorized := 0
	for i := range docs {
		doc := &docs[i]
		if doc.ExtractionStatus != models.ExtractionDone || doc.ExtractedText == nil {
			continue
		}

		fp := dedup.Fingerprint{URL: doc.StorageURL, SizeBytes: doc.SizeBytes, ContentHash: doc.ContentHash}
		should, err := e.dedup.ShouldProcess(ctx, doc.ID, fp)
		if err != nil {
			return &AnswerError{Action: ActionCriticalError, Message: err.Error()}
		}
		if !should {
			vectorized++
			continue
		}

		chunks := e.chunker.Chunk(*doc.ExtractedText)
		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		for j := range chunks {
			texts[j] = chunks[j].Text
		}
		embedded, err := e.embedder.Generate(ctx, texts)
		if err != nil {
			return &AnswerError{Action: ActionAPIError, Message: "chunk embedding failed: " + err.Error()}
		}

		if err := e.vectors.SaveChunks(ctx, doc.ID, stored.ID, chunks, embedded.Vectors, embedded.ModelName); err != nil {
			if errors.Is(err, vectorstore.ErrDimensionMismatch) {
				return &AnswerError{Action: ActionAPIError,
					Message: "document vectors came from a fallback embedding model and cannot be stored; retry when the primary embedding tier is available"}
			}
			return &AnswerError{Action: ActionCriticalError, Message: err.Error()}
		}
		if err := e.dedup.MarkProcessed(ctx, doc.ID, fp); err != nil {
			e.logger.Warn("failed to mark document processed", map[string]interface{}{
				"document": doc.ID.String(), "error": err.Error(),
			})
		}
		vectorized++
	}

	if vectorized == 0 {
		return &AnswerError{Action: ActionExtractionFailed, Message: "no document yielded extractable text"}
	}
	return nil
}

const answerPrompt = `Você é um assistente especializado em licitações públicas brasileiras.
Responda a pergunta usando APENAS os trechos do edital abaixo. Cite as páginas usadas.
Se a resposta não estiver nos trechos, diga que a informação não foi encontrada nos documentos.

LICITAÇÃO: %s
ÓRGÃO: %s

TRECHOS:
%s

PERGUNTA: %s`

// compose builds the grounded prompt and calls the answering model.
func (e *Engine) compose(ctx context.Context, opp *models.Opportunity, query string, hits []vectorstore.ScoredChunk) (string, float64, error) {
	var sb strings.Builder
	for i, hit := range hits {
		section := ""
		if hit.SectionTitle != nil {
			section = ", seção: " + *hit.SectionTitle
		}
		fmt.Fprintf(&sb, "[%d] (página %d%s)\n%s\n\n", i+1, hit.PageNumber, section, hit.Text)
	}

	prompt := fmt.Sprintf(answerPrompt, opp.Title, opp.ProcuringEntityName, sb.String(), query)

	resp, err := e.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("answer completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("answer completion returned no choices")
	}

	return resp.Choices[0].Message.Content, approximateCost(resp.Usage), nil
}

// approximateCost estimates the call's cost from token usage, at small-model
// list prices. Good enough for per-answer reporting.
func approximateCost(usage openai.Usage) float64 {
	return float64(usage.PromptTokens)*0.15/1e6 + float64(usage.CompletionTokens)*0.60/1e6
}

func sourcesOf(hits []vectorstore.ScoredChunk) []Source {
	sources := make([]Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, Source{
			DocumentID: hit.DocumentID.String(),
			Page:       hit.PageNumber,
			Section:    hit.SectionTitle,
		})
	}
	return sources
}

// answerCacheKey hashes the opportunity id and the normalized query so
// trivially different phrasings of the same question share a slot.
func answerCacheKey(opportunityID int64, query string) string {
	normalized := providers.Normalize(query)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", opportunityID, normalized)))
	return "rag:answer:" + hex.EncodeToString(sum[:])
}
