package comprasnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/models"
)

const itemsPage = `
<html><body><table>
<tr><td>Item: 1 - Seringa descartável 10ml
Quantidade: 1.500
Unidade de fornecimento: Caixa 100,00 UN
Tratamento Diferenciado: Tipo I</td></tr>
<tr><td>Item: 2 - Serviço de manutenção predial
Quantidade: 12,5
Unidade de fornecimento: Mês</td></tr>
<tr><td>Cabeçalho da tabela sem item</td></tr>
</table></body></html>`

func TestParseItems(t *testing.T) {
	items, err := parseItems(itemsPage)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, 1, first.ItemNumber)
	assert.Equal(t, "Seringa descartável 10ml", first.Description)
	assert.Equal(t, 1500.0, first.Quantity)
	assert.Equal(t, "Caixa 100,00 UN", first.Unit)
	assert.Equal(t, models.ItemMaterial, first.MaterialOrService)
	assert.True(t, first.MEEPPExclusive)

	second := items[1]
	assert.Equal(t, 2, second.ItemNumber)
	assert.Equal(t, models.ItemService, second.MaterialOrService)
	assert.Equal(t, 12.5, second.Quantity)
	assert.False(t, second.MEEPPExclusive)
}

func TestParseBRNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.234,56", 1234.56},
		{"1500", 1500},
		{"12,5", 12.5},
		{" 3 ", 3},
		{"abc", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseBRNumber(tt.in), tt.in)
	}
}

func TestDecodeLatin1(t *testing.T) {
	t.Run("utf8 passthrough", func(t *testing.T) {
		assert.Equal(t, "licitação", decodeLatin1([]byte("licitação")))
	})

	t.Run("latin1 decoded", func(t *testing.T) {
		// "ção" in ISO-8859-1.
		body := []byte{'\xe7', '\xe3', 'o'}
		assert.Equal(t, "ção", decodeLatin1(body))
	})
}
