package pncp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseControlNumber(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		cn, err := parseControlNumber("00394452000103-1-000123/2024")
		require.NoError(t, err)
		assert.Equal(t, "00394452000103", cn.CNPJ)
		assert.Equal(t, "1", cn.Modality)
		assert.Equal(t, "000123", cn.Sequence)
		assert.Equal(t, "2024", cn.Year)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, in := range []string{
			"",
			"123-1-000123/2024",
			"00394452000103-1-000123",
			"00394452000103/1/000123/2024",
		} {
			_, err := parseControlNumber(in)
			assert.Error(t, err, in)
		}
	})
}

func TestParsePortalTime(t *testing.T) {
	t.Run("empty is nil", func(t *testing.T) {
		assert.Nil(t, parsePortalTime(""))
	})

	t.Run("garbage is nil", func(t *testing.T) {
		assert.Nil(t, parsePortalTime("ontem"))
	})

	t.Run("accepted layouts", func(t *testing.T) {
		for _, in := range []string{
			"2025-06-10T14:30:00",
			"2025-06-10T14:30:00.123456789",
			"2025-06-10",
		} {
			got := parsePortalTime(in)
			require.NotNil(t, got, in)
			assert.Equal(t, 2025, got.Year())
			assert.Equal(t, 10, got.Day())
		}
	})
}
