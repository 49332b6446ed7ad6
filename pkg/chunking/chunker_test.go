package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/models"
)

func TestSplitPages(t *testing.T) {
	t.Run("no markers is one page", func(t *testing.T) {
		pages := splitPages("texto corrido sem marcadores")
		require.Len(t, pages, 1)
		assert.Equal(t, 1, pages[0].number)
	})

	t.Run("portuguese and english markers", func(t *testing.T) {
		text := "cabeçalho\n--- PÁGINA 2 ---\ncorpo dois\n--- PAGE 3 ---\ncorpo três"
		pages := splitPages(text)
		require.Len(t, pages, 3)
		assert.Equal(t, 1, pages[0].number)
		assert.Equal(t, "cabeçalho", pages[0].text)
		assert.Equal(t, 2, pages[1].number)
		assert.Equal(t, "corpo dois", pages[1].text)
		assert.Equal(t, 3, pages[2].number)
	})

	t.Run("empty pages are dropped", func(t *testing.T) {
		pages := splitPages("--- PAGE 1 ---\n\n--- PAGE 2 ---\nconteúdo")
		require.Len(t, pages, 1)
		assert.Equal(t, 2, pages[0].number)
	})
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"TERMO DE REFERÊNCIA", models.ChunkTitle},
		{"1. DO OBJETO", models.ChunkTitle},
		{"1.2 Condições gerais", models.ChunkSubtitle},
		{"Condições de entrega:", models.ChunkSubtitle},
		{"- prazo de trinta dias", models.ChunkList},
		{"a) proposta comercial", models.ChunkList},
		{"Item\tQtd\tValor unitário", models.ChunkTable},
		{"O presente termo tem por objeto a aquisição de insumos.", models.ChunkParagraph},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyLine(tt.line), tt.line)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Primeira frase. Segunda frase! Terceira pergunta?")
	assert.Equal(t, []string{"Primeira frase.", "Segunda frase!", "Terceira pergunta?"}, got)
}

func TestChunkStructure(t *testing.T) {
	c := New(Config{TargetChunkChars: 1000, SectionCapChars: 1500, OverlapChars: 20, MinChunkChars: 10})

	text := "TERMO DE REFERÊNCIA\n" +
		"Este documento descreve o objeto da contratação.\n" +
		"--- PÁGINA 2 ---\n" +
		"Condições de entrega:\n" +
		"- prazo de 30 dias\n" +
		"- frete incluso"

	chunks := c.Chunk(text)
	require.Len(t, chunks, 4)

	assert.Equal(t, models.ChunkTitle, chunks[0].ChunkType)
	assert.Equal(t, 1, chunks[0].PageNumber)

	assert.Equal(t, models.ChunkParagraph, chunks[1].ChunkType)
	require.NotNil(t, chunks[1].SectionTitle)
	assert.Equal(t, "TERMO DE REFERÊNCIA", *chunks[1].SectionTitle)
	assert.Equal(t, true, chunks[1].Metadata["has_overlap"])
	assert.True(t, strings.HasPrefix(chunks[1].Text, "TERMO DE REFERÊNCIA"))

	assert.Equal(t, models.ChunkSubtitle, chunks[2].ChunkType)
	assert.Equal(t, 2, chunks[2].PageNumber)

	assert.Equal(t, models.ChunkList, chunks[3].ChunkType)
	require.NotNil(t, chunks[3].SectionTitle)
	assert.Equal(t, "Condições de entrega:", *chunks[3].SectionTitle)

	for _, chunk := range chunks {
		assert.Equal(t, len(chunk.Text), chunk.CharCount)
		assert.Equal(t, (len(chunk.Text)+3)/4, chunk.TokenCount)
	}
}

func TestChunkPacksLongSections(t *testing.T) {
	c := New(Config{TargetChunkChars: 80, SectionCapChars: 10000, OverlapChars: 10, MinChunkChars: 5})

	sentence := "Esta frase ocupa um espaço considerável dentro da seção."
	text := strings.Repeat(sentence+" ", 5)

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, chunk.CharCount, 80+20, "chunk %d", i)
	}
}

func TestChunkDropsFragments(t *testing.T) {
	c := New(Config{})
	assert.Empty(t, c.Chunk("Oi."))
}

func TestOverlapTail(t *testing.T) {
	assert.Equal(t, "curto", overlapTail("curto", 20))
	tail := overlapTail("uma cauda comprida que será cortada no limite", 12)
	assert.LessOrEqual(t, len(tail), 12)
	assert.False(t, strings.HasPrefix(tail, " "))
}

func TestOverlapTailKeepsRunesWhole(t *testing.T) {
	// Cutting 5 bytes off "x" + ten two-byte runes lands mid-rune; the tail
	// must still be valid UTF-8.
	text := "x" + strings.Repeat("ã", 10)
	tail := overlapTail(text, 5)
	assert.True(t, utf8.ValidString(tail))
	assert.Equal(t, "ãã", tail)

	// Accented prose with spaces keeps the word-boundary trim.
	tail = overlapTail("fornecimento de alimentação hospitalar para região metropolitana", 21)
	assert.True(t, utf8.ValidString(tail))
	assert.True(t, strings.HasSuffix("fornecimento de alimentação hospitalar para região metropolitana", tail))
}

func TestAtoiSafe(t *testing.T) {
	assert.Equal(t, 42, atoiSafe("42"))
	assert.Equal(t, 1, atoiSafe("0"))
	assert.Equal(t, 1, atoiSafe("x9"))
}
