package pncp

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/providers"
)

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// jsonMarshal/jsonUnmarshal are indirections so cache round-trip behavior is
// pinned in one place.
func jsonMarshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func jsonUnmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// applyLocalFilters filters the national set in memory. Keyword matching is
// substring over the normalized concatenation of purchase object, detailed
// object and complementary info; region filtering happens here because the
// upstream rejects some region parameters outright.
func applyLocalFilters(national []models.Opportunity, filters providers.Filters) []models.Opportunity {
	out := make([]models.Opportunity, 0, len(national))

	for _, opp := range national {
		if filters.RegionCode != "" && !strings.EqualFold(opp.RegionCode, filters.RegionCode) {
			continue
		}
		if filters.CountryCode != "" && !strings.EqualFold(opp.CountryCode, filters.CountryCode) {
			continue
		}
		if !filters.MatchesValue(opp.EstimatedValue) {
			continue
		}
		if !matchesDateRange(opp.PublicationDate, filters.PublicationDateFrom, filters.PublicationDateTo) {
			continue
		}
		if !matchesDateRange(opp.SubmissionDeadline, filters.SubmissionDeadlineFrom, filters.SubmissionDeadlineTo) {
			continue
		}
		if !filters.MatchesKeywords(searchableText(opp)) {
			continue
		}
		out = append(out, opp)
	}

	sortResults(out, filters)
	return paginate(out, filters)
}

// searchableText concatenates the three fields keyword matching runs over.
func searchableText(opp models.Opportunity) string {
	var b strings.Builder
	b.WriteString(opp.Title)
	b.WriteByte(' ')
	b.WriteString(opp.Description)
	if info, ok := opp.ProviderSpecificData["informacao_complementar"].(string); ok {
		b.WriteByte(' ')
		b.WriteString(info)
	}
	return b.String()
}

func matchesDateRange(value, from, to *time.Time) bool {
	if value == nil {
		return from == nil && to == nil
	}
	if from != nil && value.Before(*from) {
		return false
	}
	if to != nil && value.After(*to) {
		return false
	}
	return true
}

func sortResults(opps []models.Opportunity, filters providers.Filters) {
	desc := !strings.EqualFold(filters.SortOrder, "asc")

	less := func(i, j int) bool {
		a, b := opps[i], opps[j]
		switch filters.SortBy {
		case "estimated_value":
			av, bv := 0.0, 0.0
			if a.EstimatedValue != nil {
				av = *a.EstimatedValue
			}
			if b.EstimatedValue != nil {
				bv = *b.EstimatedValue
			}
			if desc {
				return av > bv
			}
			return av < bv
		default:
			at, bt := timeOrZero(a.PublicationDate), timeOrZero(b.PublicationDate)
			if desc {
				return at.After(bt)
			}
			return at.Before(bt)
		}
	}
	sort.SliceStable(opps, less)
}

func paginate(opps []models.Opportunity, filters providers.Filters) []models.Opportunity {
	if filters.PageSize <= 0 {
		return opps
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * filters.PageSize
	if start >= len(opps) {
		return []models.Opportunity{}
	}
	end := start + filters.PageSize
	if end > len(opps) {
		end = len(opps)
	}
	return opps[start:end]
}
