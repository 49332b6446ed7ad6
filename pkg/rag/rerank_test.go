package rag

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestParseScores(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		assert.Equal(t, []float64{8, 2, 10}, parseScores("[8, 2, 10]", 3))
	})

	t.Run("array wrapped in prose", func(t *testing.T) {
		content := "Claro! Segue a avaliação:\n```json\n[7, 0]\n```"
		assert.Equal(t, []float64{7, 0}, parseScores(content, 2))
	})

	t.Run("wrong length is discarded", func(t *testing.T) {
		assert.Nil(t, parseScores("[1, 2]", 3))
	})

	t.Run("no array", func(t *testing.T) {
		assert.Nil(t, parseScores("não consigo avaliar", 2))
	})

	t.Run("malformed json", func(t *testing.T) {
		assert.Nil(t, parseScores("[1, dois, 3]", 3))
	})
}

func TestAnswerCacheKey(t *testing.T) {
	t.Run("phrasing variants share a slot", func(t *testing.T) {
		a := answerCacheKey(42, "Qual o prazo de entrega?")
		b := answerCacheKey(42, "qual o PRAZO de entrega")
		assert.Equal(t, a, b)
	})

	t.Run("different opportunities do not", func(t *testing.T) {
		a := answerCacheKey(42, "qual o prazo")
		b := answerCacheKey(43, "qual o prazo")
		assert.NotEqual(t, a, b)
	})

	t.Run("key is namespaced", func(t *testing.T) {
		assert.Contains(t, answerCacheKey(1, "x"), "rag:answer:")
	})
}

func TestApproximateCost(t *testing.T) {
	cost := approximateCost(openai.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.InDelta(t, 0.75, cost, 1e-9)

	assert.Zero(t, approximateCost(openai.Usage{}))
}
