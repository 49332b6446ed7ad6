// Package models defines the shared data model: normalized opportunities and
// their items, supplier companies, opportunity-company matches, tender
// documents, text chunks and cache rows. All cross-provider code reads only
// the typed fields defined here; provider-specific payloads travel in the
// opaque ProviderSpecificData blob.
package models

import (
	"time"
)

// Opportunity status values derived from the submission deadline.
const (
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusUndefined = "undefined"
)

// Opportunity is the normalized representation of one public-procurement
// notice. (ProviderName, ExternalID) is the identity across the whole system.
type Opportunity struct {
	ProviderName string `json:"provider_name" db:"provider_name"`
	ExternalID   string `json:"external_id" db:"external_id"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`

	// EstimatedValue is nil when the tender value is sealed/undisclosed.
	EstimatedValue *float64 `json:"estimated_value,omitempty" db:"estimated_value"`
	CurrencyCode   string   `json:"currency_code" db:"currency_code"`

	CountryCode  string `json:"country_code" db:"country_code"`
	RegionCode   string `json:"region_code" db:"region_code"`
	Municipality string `json:"municipality" db:"municipality"`

	PublicationDate    *time.Time `json:"publication_date,omitempty" db:"publication_date"`
	SubmissionDeadline *time.Time `json:"submission_deadline,omitempty" db:"submission_deadline"`
	OpeningDate        *time.Time `json:"opening_date,omitempty" db:"opening_date"`

	ProcuringEntityID   string `json:"procuring_entity_id" db:"procuring_entity_id"`
	ProcuringEntityName string `json:"procuring_entity_name" db:"procuring_entity_name"`

	Category string `json:"category,omitempty" db:"category"`

	// ProviderSpecificData is preserved verbatim for display. Cross-provider
	// code must never rely on its contents.
	ProviderSpecificData map[string]interface{} `json:"provider_specific_data,omitempty" db:"-"`

	Items []Item `json:"items,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Status derives the open/closed state from the submission deadline.
// A tender counts as closed from one day before its deadline onward.
func (o *Opportunity) Status() string {
	return o.StatusAt(time.Now())
}

// StatusAt is Status evaluated against an explicit clock, for testability.
func (o *Opportunity) StatusAt(now time.Time) string {
	if o.SubmissionDeadline == nil || o.SubmissionDeadline.IsZero() {
		return StatusUndefined
	}
	if now.After(o.SubmissionDeadline.Add(-24 * time.Hour)) {
		return StatusClosed
	}
	return StatusOpen
}

// Key returns the composite identity of the opportunity.
func (o *Opportunity) Key() string {
	return o.ProviderName + ":" + o.ExternalID
}

// MaterialOrService enumerates the nature of one tender item.
const (
	ItemMaterial = "material"
	ItemService  = "service"
)

// Item is one line of a tender's shopping list.
type Item struct {
	ItemNumber         int      `json:"item_number" db:"item_number"`
	Description        string   `json:"description" db:"description"`
	Quantity           float64  `json:"quantity" db:"quantity"`
	Unit               string   `json:"unit" db:"unit"`
	UnitEstimatedValue *float64 `json:"unit_estimated_value,omitempty" db:"unit_estimated_value"`
	MaterialOrService  string   `json:"material_or_service" db:"material_or_service"`
	NCMCode            *string  `json:"ncm_code,omitempty" db:"ncm_code"`
	MEEPPExclusive     bool     `json:"me_epp_exclusive" db:"me_epp_exclusive"`
}
