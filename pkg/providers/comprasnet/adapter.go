// Package comprasnet implements the provider adapter for the legacy
// procurement portal that only exposes an HTML search form. Listings are
// scraped with goquery; the per-process freshness cache keeps one listing
// per filter signature for an hour.
package comprasnet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/licitahub/licitahub/pkg/cache"
	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/providers"
	"github.com/licitahub/licitahub/pkg/retry"

	"golang.org/x/time/rate"
)

// ProviderName is the registry tag of this adapter.
const ProviderName = "comprasnet"

const (
	hostConcurrency = 5
	freshnessTTL    = time.Hour
	requestTimeout  = 45 * time.Second

	// The legacy portal is fragile; retries are few and evenly spaced so
	// scraping stays polite.
	retryDelay    = 2 * time.Second
	retryAttempts = 2
)

// Config configures the adapter.
type Config struct {
	SearchURL string
}

// Adapter implements providers.Provider by scraping the portal's HTML.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Policy
	fresh      *cache.MemoryCache
	logger     observability.Logger
}

// New creates a ComprasNet adapter.
func New(cfg Config, logger observability.Logger) (*Adapter, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	fresh, err := cache.NewMemoryCache(256)
	if err != nil {
		return nil, fmt.Errorf("create freshness cache: %w", err)
	}
	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: hostConcurrency,
				MaxConnsPerHost:     hostConcurrency,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(hostConcurrency), hostConcurrency),
		retry:   retry.NewFixedDelay(retryDelay, retryAttempts),
		fresh:   fresh,
		logger:  logger.WithPrefix("comprasnet"),
	}, nil
}

// ProviderName returns the registry tag.
func (a *Adapter) ProviderName() string { return ProviderName }

// Metadata describes the source.
func (a *Adapter) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"name":       ProviderName,
		"kind":       "scrape",
		"search_url": a.cfg.SearchURL,
	}
}

// Search posts the search form and parses the listing HTML. The parsed
// listing is held in a one-hour freshness cache keyed by the normalized
// filter signature.
func (a *Adapter) Search(ctx context.Context, filters providers.Filters) ([]models.Opportunity, error) {
	key := a.freshnessKey(filters)

	if data, err := a.fresh.Get(ctx, key); err == nil {
		var cached []models.Opportunity
		if err := jsonUnmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	html, err := a.postSearchForm(ctx, filters)
	if err != nil {
		return nil, err
	}

	opps, err := parseListing(html, a.logger)
	if err != nil {
		return nil, err
	}

	opps = filterListing(opps, filters)

	if data, err := jsonMarshal(opps); err == nil {
		_ = a.fresh.Set(ctx, key, data, freshnessTTL)
	}
	return opps, nil
}

// GetDetails re-runs an unfiltered search and scans for the id; the portal
// has no standalone detail endpoint.
func (a *Adapter) GetDetails(ctx context.Context, externalID string) (*models.Opportunity, error) {
	opps, err := a.Search(ctx, providers.Filters{})
	if err != nil {
		return nil, err
	}
	for i := range opps {
		if opps[i].ExternalID == externalID {
			return &opps[i], nil
		}
	}
	return nil, nil
}

// GetItems follows the items URL captured from the listing's onclick handler
// and parses the item table.
func (a *Adapter) GetItems(ctx context.Context, externalID string) ([]models.Item, error) {
	opp, err := a.GetDetails(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if opp == nil {
		return nil, fmt.Errorf("opportunity %s not found in listing", externalID)
	}

	itemsURL, _ := opp.ProviderSpecificData["items_url"].(string)
	if itemsURL == "" {
		return nil, fmt.Errorf("opportunity %s has no items URL", externalID)
	}

	resolved, err := a.resolveURL(itemsURL)
	if err != nil {
		return nil, err
	}

	html, err := a.get(ctx, resolved)
	if err != nil {
		return nil, err
	}
	return parseItems(html)
}

func (a *Adapter) freshnessKey(filters providers.Filters) string {
	terms := strings.Join(filters.KeywordTerms(), ",")
	return fmt.Sprintf("comprasnet:listing:%s:%s", providers.Normalize(filters.RegionCode), terms)
}

// postSearchForm issues the portal's search form POST, retrying transient
// failures, and returns the response HTML decoded to UTF-8.
func (a *Adapter) postSearchForm(ctx context.Context, filters providers.Filters) (string, error) {
	form := url.Values{}
	form.Set("numprp", "")
	form.Set("dt_publ_ini", "")
	form.Set("dt_publ_fim", "")
	form.Set("chkModalidade", "5") // pregão eletrônico
	form.Set("chk_concor", "")
	form.Set("txtObjeto", firstTerm(filters))
	if filters.RegionCode != "" {
		form.Set("sto_uf", strings.ToUpper(filters.RegionCode))
	}

	var html string
	err := a.retry.Execute(ctx, func(ctx context.Context) error {
		var err error
		html, err = a.postOnce(ctx, form)
		return err
	})
	return html, err
}

func (a *Adapter) postOnce(ctx context.Context, form url.Values) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.SearchURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; licitahub/1.0)")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search form post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, fmt.Sprintf("portal returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read listing: %w", err)
	}
	return decodeLatin1(body), nil
}

// get fetches target with retries on transient failures.
func (a *Adapter) get(ctx context.Context, target string) (string, error) {
	var html string
	err := a.retry.Execute(ctx, func(ctx context.Context) error {
		var err error
		html, err = a.getOnce(ctx, target)
		return err
	})
	return html, err
}

func (a *Adapter) getOnce(ctx context.Context, target string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; licitahub/1.0)")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, fmt.Sprintf("portal returned %d for %s", resp.StatusCode, target))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", target, err)
	}
	return decodeLatin1(body), nil
}

// statusError wraps a non-200 status; non-429 client errors come back
// permanent so the retry policy fails fast on them.
func statusError(status int, message string) error {
	err := &retry.HTTPStatusError{StatusCode: status, Message: message}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

// resolveURL resolves the URL fragment captured from an onclick handler
// against the search URL's origin.
func (a *Adapter) resolveURL(fragment string) (string, error) {
	base, err := url.Parse(a.cfg.SearchURL)
	if err != nil {
		return "", fmt.Errorf("bad search url: %w", err)
	}
	ref, err := url.Parse(fragment)
	if err != nil {
		return "", fmt.Errorf("bad url fragment %q: %w", fragment, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func firstTerm(filters providers.Filters) string {
	terms := filters.KeywordTerms()
	if len(terms) == 0 {
		return ""
	}
	return terms[0]
}

// filterListing applies the cross-provider filters the form cannot express.
func filterListing(opps []models.Opportunity, filters providers.Filters) []models.Opportunity {
	out := make([]models.Opportunity, 0, len(opps))
	for _, opp := range opps {
		if filters.RegionCode != "" && !strings.EqualFold(opp.RegionCode, filters.RegionCode) {
			continue
		}
		if !filters.MatchesValue(opp.EstimatedValue) {
			continue
		}
		if !filters.MatchesKeywords(opp.Title + " " + opp.Description) {
			continue
		}
		out = append(out, opp)
	}
	return out
}
