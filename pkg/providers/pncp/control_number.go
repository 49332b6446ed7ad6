package pncp

import (
	"fmt"
	"regexp"
)

// controlNumber is the parsed form of the portal's control number, which is
// structured as CNPJ-MOD-SEQ/YEAR (e.g. "00394452000103-1-000123/2024").
// The pieces reconstruct the detail endpoint URLs.
type controlNumber struct {
	CNPJ     string
	Modality string
	Sequence string
	Year     string
}

var controlNumberRe = regexp.MustCompile(`^(\d{14})-(\d+)-(\d+)/(\d{4})$`)

// parseControlNumber parses an external id into its components.
func parseControlNumber(externalID string) (controlNumber, error) {
	m := controlNumberRe.FindStringSubmatch(externalID)
	if m == nil {
		return controlNumber{}, fmt.Errorf("malformed control number %q", externalID)
	}
	return controlNumber{
		CNPJ:     m[1],
		Modality: m[2],
		Sequence: m[3],
		Year:     m[4],
	}, nil
}
