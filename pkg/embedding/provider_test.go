package embedding

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/retry"
)

type fakeEmbeddingAPI struct {
	resp openai.EmbeddingResponse
	err  error
}

func (f *fakeEmbeddingAPI) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return f.resp, f.err
}

func TestOpenAIProviderGenerate(t *testing.T) {
	t.Run("reorders by index", func(t *testing.T) {
		api := &fakeEmbeddingAPI{resp: openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Index: 1, Embedding: []float32{2}},
				{Index: 0, Embedding: []float32{1}},
			},
		}}
		p := NewOpenAIProvider("primary", api, "text-embedding-3-large", 1)

		vectors, err := p.Generate(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1}, {2}}, vectors)
	})

	t.Run("count mismatch fails", func(t *testing.T) {
		api := &fakeEmbeddingAPI{resp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: []float32{1}}},
		}}
		p := NewOpenAIProvider("primary", api, "m", 1)

		_, err := p.Generate(context.Background(), []string{"a", "b"})
		assert.Error(t, err)
	})

	t.Run("out of range index fails", func(t *testing.T) {
		api := &fakeEmbeddingAPI{resp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 5, Embedding: []float32{1}}},
		}}
		p := NewOpenAIProvider("primary", api, "m", 1)

		_, err := p.Generate(context.Background(), []string{"a"})
		assert.Error(t, err)
	})

	t.Run("api error carries status", func(t *testing.T) {
		api := &fakeEmbeddingAPI{err: &openai.APIError{
			HTTPStatusCode: 429,
			Message:        "rate limited",
		}}
		p := NewOpenAIProvider("primary", api, "m", 1)

		_, err := p.Generate(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.Equal(t, 429, retry.StatusCode(err))
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		p := NewOpenAIProvider("primary", &fakeEmbeddingAPI{}, "m", 1)
		vectors, err := p.Generate(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, vectors)
	})
}
