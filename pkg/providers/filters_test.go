package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Licitação", "licitacao"},
		{"PREGÃO ELETRÔNICO", "pregao eletronico"},
		{"  aquisição   de  veículos ", "aquisicao de veiculos"},
		{"informática/TI", "informatica ti"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestKeywordTerms(t *testing.T) {
	t.Run("bare term", func(t *testing.T) {
		f := Filters{Keywords: "Computadores"}
		assert.Equal(t, []string{"computadores"}, f.KeywordTerms())
	})

	t.Run("quoted disjunction", func(t *testing.T) {
		f := Filters{Keywords: `"notebook" OR "laptop" OR "computador portátil"`}
		assert.Equal(t, []string{"notebook", "laptop", "computador portatil"}, f.KeywordTerms())
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, Filters{}.KeywordTerms())
	})
}

func TestMatchesKeywords(t *testing.T) {
	f := Filters{Keywords: `"notebook" OR "laptop"`}

	assert.True(t, f.MatchesKeywords("Aquisição de NOTEBOOKS para a secretaria"))
	assert.True(t, f.MatchesKeywords("laptop dell"))
	assert.False(t, f.MatchesKeywords("serviço de limpeza predial"))
	assert.True(t, Filters{}.MatchesKeywords("anything"))
}

func TestMatchesValue(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	t.Run("no bounds pass everything", func(t *testing.T) {
		assert.True(t, Filters{}.MatchesValue(nil))
		assert.True(t, Filters{}.MatchesValue(v(10)))
	})

	t.Run("sealed value fails bounded filter", func(t *testing.T) {
		assert.False(t, Filters{MinValue: v(1)}.MatchesValue(nil))
	})

	t.Run("bounds", func(t *testing.T) {
		f := Filters{MinValue: v(100), MaxValue: v(200)}
		assert.False(t, f.MatchesValue(v(99)))
		assert.True(t, f.MatchesValue(v(150)))
		assert.False(t, f.MatchesValue(v(201)))
	})
}
