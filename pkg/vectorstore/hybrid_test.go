package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[]", vectorLiteral(nil))
	assert.Equal(t, "[1]", vectorLiteral([]float32{1}))
	assert.Equal(t, "[0.5,-2,3.25]", vectorLiteral([]float32{0.5, -2, 3.25}))
}

func TestQueryTerms(t *testing.T) {
	t.Run("keeps raw and normalized aligned", func(t *testing.T) {
		raw, norm := queryTerms("Qual o PRAZO de Validação?")
		assert.Equal(t, []string{"qual", "prazo", "validação?"}, raw)
		assert.Equal(t, []string{"qual", "prazo", "validacao"}, norm)
	})

	t.Run("drops short words", func(t *testing.T) {
		raw, norm := queryTerms("o de em prazo")
		assert.Equal(t, []string{"prazo"}, raw)
		assert.Equal(t, []string{"prazo"}, norm)
	})

	t.Run("empty query", func(t *testing.T) {
		raw, norm := queryTerms("")
		assert.Nil(t, raw)
		assert.Nil(t, norm)
	})
}
