package extraction

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestIsZip(t *testing.T) {
	archive := buildZip(t, map[string][]byte{"a.txt": []byte("oi")})
	assert.True(t, isZip(archive))
	assert.False(t, isZip([]byte("%PDF-1.4")))
	assert.False(t, isZip(nil))
}

func TestUnpackZip(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"edital/anexo1.pdf":    []byte("%PDF-1.4 conteudo"),
		"edital/.DS_Store":     []byte("lixo"),
		"__MACOSX/anexo1.pdf":  []byte("lixo"),
		"planilha\\custos.csv": []byte("a;b"),
	})

	entries, err := unpackZip(archive)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string][]byte{}
	for _, e := range entries {
		byName[e.Name] = e.Data
	}
	assert.Equal(t, []byte("%PDF-1.4 conteudo"), byName["anexo1.pdf"])
	assert.Equal(t, []byte("a;b"), byName["custos.csv"])
}

func TestUnpackZipRejectsGarbage(t *testing.T) {
	_, err := unpackZip([]byte("not a zip"))
	assert.Error(t, err)
}

func TestNestedZipRoundTrip(t *testing.T) {
	inner := buildZip(t, map[string][]byte{"doc.txt": []byte("texto")})
	outer := buildZip(t, map[string][]byte{"anexos.zip": inner})

	entries, err := unpackZip(outer)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, isZip(entries[0].Data))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "b.pdf", baseName("a/b.pdf"))
	assert.Equal(t, "b.pdf", baseName(`a\b.pdf`))
	assert.Equal(t, "b.pdf", baseName("b.pdf"))
}

func TestDetectMime(t *testing.T) {
	t.Run("extension wins", func(t *testing.T) {
		assert.Equal(t, "application/pdf", detectMime("edital.pdf", []byte("whatever")))
	})

	t.Run("pdf magic without extension", func(t *testing.T) {
		assert.Equal(t, "application/pdf", detectMime("download", []byte("%PDF-1.7 resto")))
	})

	t.Run("html sniffed", func(t *testing.T) {
		got := detectMime("pagina", []byte("<html><body>oi</body></html>"))
		assert.Contains(t, got, "text/html")
	})
}
