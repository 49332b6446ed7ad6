// Package embedding turns text into fixed-dimension vectors through a chain
// of providers: a primary paid API, a cheaper secondary API and a local
// model as last resort. Batches consult the permanent embedding cache before
// any provider is called.
package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/licitahub/licitahub/pkg/retry"
)

// Provider generates embeddings for batches of texts.
type Provider interface {
	// Name identifies the tier for logs and breaker metrics.
	Name() string
	// ModelName is persisted alongside every vector this provider emits.
	ModelName() string
	// Dimensions is the provider's output dimensionality.
	Dimensions() int
	// Generate embeds the given texts, one vector per text, in order.
	Generate(ctx context.Context, texts []string) ([][]float32, error)
}

// embeddingAPI is the slice of the OpenAI-compatible client the provider
// uses; *openai.Client satisfies it.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider speaks the OpenAI embeddings wire format. All three tiers
// use it: the primary against api.openai.com, the secondary against an
// OpenAI-compatible endpoint, the local tier against an Ollama server.
type OpenAIProvider struct {
	name       string
	client     embeddingAPI
	model      string
	dimensions int
}

// NewOpenAIProvider creates a provider against the given client.
func NewOpenAIProvider(name string, client embeddingAPI, model string, dimensions int) *OpenAIProvider {
	return &OpenAIProvider{name: name, client: client, model: model, dimensions: dimensions}
}

func (p *OpenAIProvider) Name() string      { return p.name }
func (p *OpenAIProvider) ModelName() string { return p.model }
func (p *OpenAIProvider) Dimensions() int   { return p.dimensions }

// Generate embeds one batch. A response with a mismatched vector count
// aborts the batch: silently misaligned embeddings would poison the store.
func (p *OpenAIProvider) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, translateAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", p.name, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("%s returned out-of-range index %d", p.name, item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%s returned no embedding for text %d", p.name, i)
		}
	}
	return vectors, nil
}

// translateAPIError surfaces the HTTP status so the retry policy can pick
// the right backoff.
func translateAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &retry.HTTPStatusError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}
	return err
}
