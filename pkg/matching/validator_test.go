package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/models"
)

type fakeChat struct {
	content string
	err     error
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func TestParseVerdict(t *testing.T) {
	t.Run("strict json", func(t *testing.T) {
		v := parseVerdict(`{"approved": true, "confidence": 0.9, "reasoning": "atende ao objeto"}`)
		assert.True(t, v.Approved)
		assert.Equal(t, 0.9, v.Confidence)
		assert.Equal(t, "atende ao objeto", v.Reasoning)
	})

	t.Run("json wrapped in prose", func(t *testing.T) {
		v := parseVerdict("Claro! Segue a análise:\n```json\n{\"approved\": false, \"confidence\": 0.3, \"reasoning\": \"fora do ramo\"}\n```")
		assert.False(t, v.Approved)
		assert.Equal(t, "fora do ramo", v.Reasoning)
	})

	t.Run("no json falls back to token scan", func(t *testing.T) {
		assert.True(t, parseVerdict("Sim, a empresa tem capacidade.").Approved)
		assert.False(t, parseVerdict("Não atende ao objeto da licitação.").Approved)
	})
}

type emptyChat struct{}

func (emptyChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestValidateFailureRejects(t *testing.T) {
	company := &models.Company{ID: uuid.New(), LegalName: "Alfa"}
	opp := &models.Opportunity{ProviderName: "pncp", ExternalID: "1", Title: "Pregão"}

	t.Run("transport error", func(t *testing.T) {
		v := NewValidator(&fakeChat{err: errors.New("timeout")}, "gpt-4o-mini", 0, nil)
		verdict := v.Validate(context.Background(), company, opp)
		assert.False(t, verdict.Approved)
		assert.Contains(t, verdict.Reasoning, "validação indisponível")
	})

	t.Run("empty choices", func(t *testing.T) {
		v := NewValidator(&emptyChat{}, "m", 0, nil)
		verdict := v.Validate(context.Background(), company, opp)
		assert.False(t, verdict.Approved)
	})

	t.Run("approval passes through", func(t *testing.T) {
		v := NewValidator(&fakeChat{content: `{"approved": true, "confidence": 0.8, "reasoning": "ok"}`}, "m", 0, nil)
		verdict := v.Validate(context.Background(), company, opp)
		assert.True(t, verdict.Approved)
	})
}

func TestOpportunityText(t *testing.T) {
	opp := &models.Opportunity{
		Title:               "Aquisição de insumos",
		Description:         "Aquisição de insumos", // duplicate of the title, skipped
		ProcuringEntityName: "Prefeitura de Campinas",
		Category:            "Saúde",
		Items: []models.Item{
			{Description: "Seringa 10ml"},
			{Description: ""},
			{Description: "Agulha 25x7"},
		},
	}
	got := opportunityText(opp)
	require.Equal(t, "Aquisição de insumos. Prefeitura de Campinas. Saúde. Seringa 10ml. Agulha 25x7", got)
}
