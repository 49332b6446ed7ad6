package comprasnet

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeLatin1 converts the portal's ISO-8859-1 responses to UTF-8. Payloads
// that already decode as UTF-8 pass through unchanged.
func decodeLatin1(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
