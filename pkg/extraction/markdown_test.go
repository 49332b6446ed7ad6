package extraction

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenHTML(t *testing.T) {
	html := `<html><head><style>p{color:red}</style><script>alert(1)</script></head>
<body><h1>Edital</h1><p>Objeto: aquisição de insumos</p>
<ul><li>prazo 30 dias</li></ul></body></html>`

	got, err := flattenHTML(html)
	require.NoError(t, err)

	assert.Contains(t, got, "Edital")
	assert.Contains(t, got, "Objeto: aquisição de insumos")
	assert.Contains(t, got, "prazo 30 dias")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color:red")
}

func TestMarkdownEngineSupports(t *testing.T) {
	e := MarkdownEngine{}
	assert.True(t, e.Supports("text/html; charset=utf-8"))
	assert.True(t, e.Supports("text/plain"))
	assert.True(t, e.Supports("text/csv"))
	assert.False(t, e.Supports("application/pdf"))
}

func TestMarkdownEngineExtract(t *testing.T) {
	dir := t.TempDir()

	t.Run("plain text passes through", func(t *testing.T) {
		path := filepath.Join(dir, "nota.txt")
		require.NoError(t, os.WriteFile(path, []byte("  conteúdo simples  "), 0o644))

		result, err := MarkdownEngine{}.Extract(context.Background(), path)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "conteúdo simples", result.Text)
		assert.Equal(t, "markdown", result.Engine)
		assert.Equal(t, 1, result.PageCount)
	})

	t.Run("html is flattened", func(t *testing.T) {
		path := filepath.Join(dir, "pagina.html")
		require.NoError(t, os.WriteFile(path, []byte("<html><body><p>linha um</p><p>linha dois</p></body></html>"), 0o644))

		result, err := MarkdownEngine{}.Extract(context.Background(), path)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "linha um\nlinha dois", result.Text)
	})

	t.Run("empty file is not a success", func(t *testing.T) {
		path := filepath.Join(dir, "vazio.txt")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		result, err := MarkdownEngine{}.Extract(context.Background(), path)
		require.NoError(t, err)
		assert.False(t, result.Success)
	})
}
