package pncp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/licitahub/licitahub/pkg/cache"
	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/providers"
)

// ProviderName is the registry tag of this adapter.
const ProviderName = "pncp"

const (
	// Date window fetched on every search: two weeks back for late
	// publications, four months forward of proposal deadlines.
	windowBack    = 14 * 24 * time.Hour
	windowForward = 120 * 24 * time.Hour

	batchSize       = 20
	batchPause      = 500 * time.Millisecond
	maxEmptyBatches = 5

	nationalCacheTTL = 24 * time.Hour
)

// Config configures the adapter.
type Config struct {
	BaseURL      string
	ModalityCode int
	HTTPTimeout  time.Duration
}

// Adapter implements providers.Provider against the portal's REST API.
type Adapter struct {
	cfg    Config
	client *client
	cache  cache.Cache
	logger observability.Logger
	now    func() time.Time
}

// New creates a PNCP adapter. The cache may be nil; searches then always hit
// the upstream.
func New(cfg Config, c cache.Cache, logger observability.Logger) *Adapter {
	if cfg.ModalityCode == 0 {
		cfg.ModalityCode = 8
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Adapter{
		cfg:    cfg,
		client: newClient(cfg.BaseURL, cfg.HTTPTimeout),
		cache:  c,
		logger: logger.WithPrefix("pncp"),
		now:    time.Now,
	}
}

// ProviderName returns the registry tag.
func (a *Adapter) ProviderName() string { return ProviderName }

// Metadata describes the source.
func (a *Adapter) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"name":          ProviderName,
		"kind":          "rest",
		"base_url":      a.cfg.BaseURL,
		"modality_code": a.cfg.ModalityCode,
		"page_size":     pageSize,
		"max_pages":     maxPages,
	}
}

// Search fetches the national set for the current date window (or serves it
// from cache) and applies the caller's filters locally.
func (a *Adapter) Search(ctx context.Context, filters providers.Filters) ([]models.Opportunity, error) {
	national, err := a.nationalSet(ctx)
	if err != nil {
		return nil, err
	}
	return applyLocalFilters(national, filters), nil
}

// GetDetails fetches the full record for one control number. When the detail
// endpoint fails, the paginated national set is scanned for the id instead.
func (a *Adapter) GetDetails(ctx context.Context, externalID string) (*models.Opportunity, error) {
	cn, err := parseControlNumber(externalID)
	if err != nil {
		return nil, err
	}

	detail, err := a.client.fetchDetail(ctx, cn)
	if err == nil && detail.NumeroControlePNCP != "" {
		opp := a.normalize(*detail)
		return &opp, nil
	}
	if err != nil {
		a.logger.Warn("detail fetch failed, falling back to listing scan", map[string]interface{}{
			"external_id": externalID,
			"error":       err.Error(),
		})
	}

	national, err := a.nationalSet(ctx)
	if err != nil {
		return nil, err
	}
	for i := range national {
		if national[i].ExternalID == externalID {
			return &national[i], nil
		}
	}
	return nil, nil
}

// GetItems fetches the line items of one control number.
func (a *Adapter) GetItems(ctx context.Context, externalID string) ([]models.Item, error) {
	cn, err := parseControlNumber(externalID)
	if err != nil {
		return nil, err
	}

	wire, err := a.client.fetchItems(ctx, cn)
	if err != nil {
		return nil, fmt.Errorf("fetch items for %s: %w", externalID, err)
	}

	items := make([]models.Item, 0, len(wire))
	for _, w := range wire {
		items = append(items, normalizeItem(w))
	}
	return items, nil
}

// ListAttachments fetches the published attachment listing of one control
// number, for the document extractor.
func (a *Adapter) ListAttachments(ctx context.Context, externalID string) ([]models.Attachment, error) {
	cn, err := parseControlNumber(externalID)
	if err != nil {
		return nil, err
	}

	wire, err := a.client.fetchFiles(ctx, cn)
	if err != nil {
		return nil, fmt.Errorf("fetch attachments for %s: %w", externalID, err)
	}

	out := make([]models.Attachment, 0, len(wire))
	for _, w := range wire {
		url := w.URL
		if url == "" {
			url = w.URI
		}
		if url == "" {
			continue
		}
		title := w.Titulo
		if title == "" {
			title = fmt.Sprintf("documento_%d", w.SequencialDocumento)
		}
		out = append(out, models.Attachment{Title: title, URL: url})
	}
	return out, nil
}

// nationalCacheKey identifies the raw national page set for the current date
// window and modality, independent of caller filters.
func (a *Adapter) nationalCacheKey(start, end time.Time) string {
	return fmt.Sprintf("pncp:national:%s:%s:mod%d",
		start.Format("20060102"), end.Format("20060102"), a.cfg.ModalityCode)
}

// nationalSet returns the normalized national opportunity set for the
// current window, from cache when fresh.
func (a *Adapter) nationalSet(ctx context.Context) ([]models.Opportunity, error) {
	now := a.now()
	start := now.Add(-windowBack)
	end := now.Add(windowForward)
	key := a.nationalCacheKey(start, end)

	if a.cache != nil {
		if raw, err := a.cache.Get(ctx, key); err == nil {
			if data, err := cache.MaybeDecompress(raw); err == nil {
				var cached []models.Opportunity
				if err := jsonUnmarshal(data, &cached); err == nil {
					a.logger.Debug("national set served from cache", map[string]interface{}{
						"key": key, "count": len(cached),
					})
					return cached, nil
				}
			}
		}
	}

	fetched, err := a.fetchNational(ctx, start, end)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if data, err := jsonMarshal(fetched); err == nil {
			if compressed, err := cache.MaybeCompress(data); err == nil {
				if err := a.cache.Set(ctx, key, compressed, nationalCacheTTL); err != nil {
					a.logger.Warn("failed to cache national set", map[string]interface{}{
						"key": key, "error": err.Error(),
					})
				}
			}
		}
	}

	return fetched, nil
}

// fetchNational pulls the paginated listing in concurrent batches of 20
// pages, pacing batches 500 ms apart. It stops after five consecutive empty
// batches or as soon as a page comes back short (no more pages upstream).
func (a *Adapter) fetchNational(ctx context.Context, start, end time.Time) ([]models.Opportunity, error) {
	type pageResult struct {
		page int
		rows []contratacao
		err  error
	}

	var (
		all          []contratacao
		emptyBatches int
		exhausted    bool
	)

	for first := 1; first <= maxPages && !exhausted; first += batchSize {
		last := first + batchSize - 1
		if last > maxPages {
			last = maxPages
		}

		results := make([]pageResult, 0, last-first+1)
		resultCh := make(chan pageResult, last-first+1)

		var wg sync.WaitGroup
		for page := first; page <= last; page++ {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				resp, err := a.client.fetchPage(ctx, start, end, a.cfg.ModalityCode, page)
				if err != nil {
					resultCh <- pageResult{page: page, err: err}
					return
				}
				var rows []contratacao
				if resp != nil {
					rows = resp.Data
				}
				resultCh <- pageResult{page: page, rows: rows}
			}(page)
		}
		wg.Wait()
		close(resultCh)

		for r := range resultCh {
			results = append(results, r)
		}

		batchRows := 0
		for _, r := range results {
			if r.err != nil {
				// A page that failed all its retries never aborts the
				// whole search.
				a.logger.Warn("page fetch failed", map[string]interface{}{
					"page": r.page, "error": r.err.Error(),
				})
				continue
			}
			batchRows += len(r.rows)
			all = append(all, r.rows...)
			if len(r.rows) < pageSize {
				exhausted = true
			}
		}

		if batchRows == 0 {
			emptyBatches++
			if emptyBatches >= maxEmptyBatches {
				break
			}
		} else {
			emptyBatches = 0
		}

		if exhausted || last == maxPages {
			break
		}

		select {
		case <-time.After(batchPause):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// First-seen wins on duplicate control numbers across pages.
	seen := make(map[string]struct{}, len(all))
	out := make([]models.Opportunity, 0, len(all))
	for _, c := range all {
		if c.NumeroControlePNCP == "" {
			continue
		}
		if _, dup := seen[c.NumeroControlePNCP]; dup {
			continue
		}
		seen[c.NumeroControlePNCP] = struct{}{}
		out = append(out, a.normalize(c))
	}

	a.logger.Info("national set fetched", map[string]interface{}{
		"rows": len(out), "window_start": start.Format("2006-01-02"), "window_end": end.Format("2006-01-02"),
	})
	return out, nil
}

// normalize converts a wire record into the normalized opportunity.
func (a *Adapter) normalize(c contratacao) models.Opportunity {
	description := c.ObjetoDetalhado
	if description == "" {
		description = c.ObjetoCompra
	}

	currency := c.Moeda
	if currency == "" {
		currency = "BRL"
	}

	opp := models.Opportunity{
		ProviderName:        ProviderName,
		ExternalID:          c.NumeroControlePNCP,
		Title:               c.ObjetoCompra,
		Description:         description,
		EstimatedValue:      c.ValorTotalEstimado,
		CurrencyCode:        currency,
		CountryCode:         "BR",
		RegionCode:          c.UnidadeOrgao.UFSigla,
		Municipality:        c.UnidadeOrgao.MunicipioNome,
		PublicationDate:     parsePortalTime(c.DataPublicacaoPncp),
		SubmissionDeadline:  parsePortalTime(c.DataEncerramentoProposta),
		OpeningDate:         parsePortalTime(c.DataAberturaProposta),
		ProcuringEntityID:   c.OrgaoEntidade.CNPJ,
		ProcuringEntityName: c.OrgaoEntidade.RazaoSocial,
		ProviderSpecificData: map[string]interface{}{
			"modalidade_id":           c.ModalidadeID,
			"modalidade_nome":         c.ModalidadeNome,
			"situacao_compra":         c.SituacaoCompraNome,
			"informacao_complementar": c.InformacaoComplementar,
		},
	}
	return opp
}

func normalizeItem(w itemWire) models.Item {
	kind := models.ItemMaterial
	if strings.EqualFold(w.MaterialOuServico, "S") {
		kind = models.ItemService
	}
	return models.Item{
		ItemNumber:         w.NumeroItem,
		Description:        w.Descricao,
		Quantity:           w.Quantidade,
		Unit:               w.UnidadeMedida,
		UnitEstimatedValue: w.ValorUnitarioEstimado,
		MaterialOrService:  kind,
		NCMCode:            w.NcmNbsCodigo,
		MEEPPExclusive:     w.TipoBeneficioID == 1,
	}
}

// parsePortalTime accepts the timestamp layouts the portal emits. Timestamps
// are timezone-naive local times.
func parsePortalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}
