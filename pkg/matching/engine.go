package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/licitahub/licitahub/pkg/embedding"
	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/persistence"
)

const (
	// DefaultThreshold is the cosine similarity floor for a match.
	DefaultThreshold = 0.65
	// DefaultWindowDays bounds the incremental run to recent rows.
	DefaultWindowDays = 7

	defaultScanPageSize = 200
)

// Engine runs matching passes over the supplier catalog.
type Engine struct {
	store     *persistence.Service
	embedder  *embedding.Service
	validator *Validator
	logger    observability.Logger

	threshold     float64
	useLLM        bool
	clearBefore   bool
	defaultWindow int
	pageSize      int
	now           func() time.Time
}

// Options tunes a matching engine.
type Options struct {
	// Threshold is the cosine similarity floor; zero means DefaultThreshold.
	Threshold float64
	// EnableLLMValidation gates similarity hits behind the validator.
	EnableLLMValidation bool
	// ClearBeforeReevaluate makes RunFull delete existing match rows first.
	ClearBeforeReevaluate bool
	// IncrementalDays is the window when RunIncremental gets no explicit
	// one; zero means DefaultWindowDays.
	IncrementalDays int
	// PageSize is the opportunity scan page; zero means defaultScanPageSize.
	PageSize int
}

// NewEngine wires the matching engine. validator may be nil when the LLM
// gate is disabled.
func NewEngine(store *persistence.Service, embedder *embedding.Service, validator *Validator, opts Options, logger observability.Logger) *Engine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	window := opts.IncrementalDays
	if window <= 0 {
		window = DefaultWindowDays
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultScanPageSize
	}
	return &Engine{
		store:         store,
		embedder:      embedder,
		validator:     validator,
		logger:        logger.WithPrefix("matching"),
		threshold:     threshold,
		useLLM:        opts.EnableLLMValidation && validator != nil,
		clearBefore:   opts.ClearBeforeReevaluate,
		defaultWindow: window,
		pageSize:      pageSize,
		now:           time.Now,
	}
}

// Report summarizes one matching run.
type Report struct {
	Companies     int `json:"companies"`
	Opportunities int `json:"opportunities"`
	Evaluated     int `json:"evaluated"`
	Matched       int `json:"matched"`
	LLMRejected   int `json:"llm_rejected"`
	Errors        int `json:"errors"`
}

// RunIncremental matches every company against opportunities created in the
// last windowDays days, skipping pairs that already have a match row.
func (e *Engine) RunIncremental(ctx context.Context, windowDays int) (*Report, error) {
	if windowDays <= 0 {
		windowDays = e.defaultWindow
	}
	from := e.now().AddDate(0, 0, -windowDays)
	return e.run(ctx, &from, nil, true)
}

// RunFull matches every company against every stored opportunity in the
// given created-at range (either bound may be nil). Existing pairs are
// reevaluated; when configured, their match rows are cleared first.
func (e *Engine) RunFull(ctx context.Context, from, to *time.Time) (*Report, error) {
	return e.run(ctx, from, to, false)
}

func (e *Engine) run(ctx context.Context, from, to *time.Time, skipExisting bool) (*Report, error) {
	companies, err := e.store.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	opportunities, err := e.scanOpportunities(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &Report{Companies: len(companies), Opportunities: len(opportunities)}
	if len(companies) == 0 || len(opportunities) == 0 {
		return report, nil
	}

	if !skipExisting && e.clearBefore {
		ids := make([]int64, len(opportunities))
		for i, o := range opportunities {
			ids[i] = o.ID
		}
		cleared, err := e.store.ClearMatches(ctx, ids)
		if err != nil {
			return nil, err
		}
		e.logger.Info("cleared previous matches", map[string]interface{}{"rows": cleared})
	}

	oppVectors, err := e.embedOpportunities(ctx, opportunities)
	if err != nil {
		return nil, err
	}

	for i := range companies {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := e.matchCompany(ctx, &companies[i], opportunities, oppVectors, skipExisting, report); err != nil {
			e.logger.Error("company matching failed", map[string]interface{}{
				"company": companies[i].ID.String(), "error": err.Error(),
			})
			report.Errors++
		}
	}

	e.logger.Info("matching run finished", map[string]interface{}{
		"companies": report.Companies, "opportunities": report.Opportunities,
		"matched": report.Matched, "llm_rejected": report.LLMRejected, "errors": report.Errors,
	})
	return report, nil
}

func (e *Engine) matchCompany(ctx context.Context, company *models.Company, opps []persistence.Stored, oppVectors [][]float32, skipExisting bool, report *Report) error {
	profile := company.ProfileText()
	if strings.TrimSpace(profile) == "" {
		return fmt.Errorf("company %s has an empty profile", company.ID)
	}

	companyVec, err := e.embedder.GenerateOne(ctx, profile)
	if err != nil {
		return fmt.Errorf("embed company profile: %w", err)
	}

	var existing map[int64]bool
	if skipExisting {
		ids := make([]int64, len(opps))
		for i, o := range opps {
			ids[i] = o.ID
		}
		existing, err = e.store.MatchedOpportunityIDs(ctx, company.ID, ids)
		if err != nil {
			return err
		}
	}

	for i := range opps {
		if existing[opps[i].ID] {
			continue
		}
		report.Evaluated++

		score := embedding.CosineSimilarity(companyVec, oppVectors[i])
		if score < e.threshold {
			continue
		}

		match := models.Match{
			CompanyID:       company.ID,
			OpportunityID:   opps[i].ID,
			SimilarityScore: score,
		}

		if e.useLLM {
			verdict := e.validator.Validate(ctx, company, &opps[i].Opportunity)
			approved := verdict.Approved
			match.LLMApproved = &approved
			if verdict.Reasoning != "" {
				reasoning := verdict.Reasoning
				match.LLMReasoning = &reasoning
			}
			if !approved {
				report.LLMRejected++
				// The rejected row is still written; the API filters on the verdict.
			}
		}

		if err := e.store.UpsertMatch(ctx, &match); err != nil {
			e.logger.Error("failed to persist match", map[string]interface{}{
				"company": company.ID.String(), "opportunity": opps[i].ID, "error": err.Error(),
			})
			report.Errors++
			continue
		}
		if match.LLMApproved == nil || *match.LLMApproved {
			report.Matched++
		}
	}
	return nil
}

// scanOpportunities pages through the store so a large table never loads in
// one query.
func (e *Engine) scanOpportunities(ctx context.Context, from, to *time.Time) ([]persistence.Stored, error) {
	var all []persistence.Stored
	for offset := 0; ; offset += e.pageSize {
		page, err := e.store.Search(ctx, persistence.SearchQuery{
			CreatedFrom: from,
			CreatedTo:   to,
			Limit:       e.pageSize,
			Offset:      offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < e.pageSize {
			return all, nil
		}
	}
}

func (e *Engine) embedOpportunities(ctx context.Context, opps []persistence.Stored) ([][]float32, error) {
	texts := make([]string, len(opps))
	for i := range opps {
		texts[i] = opportunityText(&opps[i].Opportunity)
	}
	result, err := e.embedder.Generate(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed opportunities: %w", err)
	}
	return result.Vectors, nil
}

// opportunityText builds the tender's matching document: title, object
// description, buyer and the item lines.
func opportunityText(opp *models.Opportunity) string {
	parts := make([]string, 0, 4+len(opp.Items))
	if opp.Title != "" {
		parts = append(parts, opp.Title)
	}
	if opp.Description != "" && opp.Description != opp.Title {
		parts = append(parts, opp.Description)
	}
	if opp.ProcuringEntityName != "" {
		parts = append(parts, opp.ProcuringEntityName)
	}
	if opp.Category != "" {
		parts = append(parts, opp.Category)
	}
	for _, item := range opp.Items {
		if item.Description != "" {
			parts = append(parts, item.Description)
		}
	}
	return strings.Join(parts, ". ")
}
