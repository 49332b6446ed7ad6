// Package providers defines the provider-adapter abstraction: every upstream
// source of tenders implements the Provider interface and registers itself
// under its lowercase name. Cross-provider code interacts with sources only
// through this interface and the shared Filters type.
package providers

import (
	"context"
	"strings"
	"time"

	"github.com/licitahub/licitahub/pkg/models"
)

// Provider is one upstream source of opportunities.
type Provider interface {
	// ProviderName returns the lowercase registry tag, e.g. "pncp".
	ProviderName() string
	// Metadata describes the source for stats and display.
	Metadata() map[string]interface{}
	// Search returns all opportunities matching the filters, across pages,
	// deduplicated by external id within the call.
	Search(ctx context.Context, filters Filters) ([]models.Opportunity, error)
	// GetDetails returns the full record for one opportunity, or nil when
	// the source does not know the id.
	GetDetails(ctx context.Context, externalID string) (*models.Opportunity, error)
	// GetItems returns the line items of one opportunity.
	GetItems(ctx context.Context, externalID string) ([]models.Item, error)
}

// Filters is the cross-provider search filter set. All fields are optional.
type Filters struct {
	// Keywords holds either a plain term or a disjunction of quoted terms
	// ("a" OR "b") produced by synonym expansion. Adapters substring-match
	// every term individually.
	Keywords string `json:"keywords,omitempty" form:"keywords"`

	RegionCode   string   `json:"region_code,omitempty" form:"region_code"`
	CountryCode  string   `json:"country_code,omitempty" form:"country_code"`
	MinValue     *float64 `json:"min_value,omitempty" form:"min_value"`
	MaxValue     *float64 `json:"max_value,omitempty" form:"max_value"`
	CurrencyCode string   `json:"currency_code,omitempty" form:"currency_code"`

	PublicationDateFrom    *time.Time `json:"publication_date_from,omitempty"`
	PublicationDateTo      *time.Time `json:"publication_date_to,omitempty"`
	SubmissionDeadlineFrom *time.Time `json:"submission_deadline_from,omitempty"`
	SubmissionDeadlineTo   *time.Time `json:"submission_deadline_to,omitempty"`

	Page      int    `json:"page,omitempty" form:"page"`
	PageSize  int    `json:"page_size,omitempty" form:"page_size"`
	SortBy    string `json:"sort_by,omitempty" form:"sort_by"`
	SortOrder string `json:"sort_order,omitempty" form:"sort_order"`
}

// KeywordTerms splits the Keywords expression into individual terms. Quoted
// terms joined by OR come from synonym expansion; a bare string is a single
// term. Terms are returned normalized.
func (f Filters) KeywordTerms() []string {
	raw := strings.TrimSpace(f.Keywords)
	if raw == "" {
		return nil
	}

	var terms []string
	if strings.Contains(raw, `"`) {
		for _, part := range strings.Split(raw, " OR ") {
			part = strings.Trim(strings.TrimSpace(part), `"`)
			if part != "" {
				terms = append(terms, Normalize(part))
			}
		}
	} else {
		terms = append(terms, Normalize(raw))
	}
	return terms
}

// MatchesKeywords reports whether the normalized haystack contains any of
// the filter's terms. An empty keyword filter matches everything.
func (f Filters) MatchesKeywords(haystack string) bool {
	terms := f.KeywordTerms()
	if len(terms) == 0 {
		return true
	}
	normalized := Normalize(haystack)
	for _, term := range terms {
		if strings.Contains(normalized, term) {
			return true
		}
	}
	return false
}

// MatchesValue applies the min/max estimated-value bounds. Sealed values
// (nil) pass only when no bounds are set.
func (f Filters) MatchesValue(value *float64) bool {
	if f.MinValue == nil && f.MaxValue == nil {
		return true
	}
	if value == nil {
		return false
	}
	if f.MinValue != nil && *value < *f.MinValue {
		return false
	}
	if f.MaxValue != nil && *value > *f.MaxValue {
		return false
	}
	return true
}
