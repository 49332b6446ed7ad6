// Package pncp implements the provider adapter for the national procurement
// portal's public REST API. Listings are fetched nationally (the upstream
// rejects some region filters with HTTP 422) and filtered locally; the full
// national page set for the current date window is cached for 24 hours.
package pncp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/licitahub/licitahub/pkg/retry"
)

const (
	pageSize        = 50
	maxPages        = 200
	hostConcurrency = 8
)

// contratacao is the upstream wire format of one tender in the listing.
type contratacao struct {
	NumeroControlePNCP      string   `json:"numeroControlePNCP"`
	ObjetoCompra            string   `json:"objetoCompra"`
	InformacaoComplementar  string   `json:"informacaoComplementar"`
	ObjetoDetalhado         string   `json:"objetoDetalhado"`
	ValorTotalEstimado      *float64 `json:"valorTotalEstimado"`
	Moeda                   string   `json:"moeda"`
	DataPublicacaoPncp      string   `json:"dataPublicacaoPncp"`
	DataEncerramentoProposta string  `json:"dataEncerramentoProposta"`
	DataAberturaProposta    string   `json:"dataAberturaProposta"`
	ModalidadeID            int      `json:"modalidadeId"`
	ModalidadeNome          string   `json:"modalidadeNome"`
	SituacaoCompraNome      string   `json:"situacaoCompraNome"`
	OrgaoEntidade           struct {
		CNPJ        string `json:"cnpj"`
		RazaoSocial string `json:"razaoSocial"`
	} `json:"orgaoEntidade"`
	UnidadeOrgao struct {
		UFSigla       string `json:"ufSigla"`
		MunicipioNome string `json:"municipioNome"`
	} `json:"unidadeOrgao"`
}

// listResponse is the paginated envelope of the listing endpoint.
type listResponse struct {
	Data             []contratacao `json:"data"`
	TotalRegistros   int           `json:"totalRegistros"`
	TotalPaginas     int           `json:"totalPaginas"`
	NumeroPagina     int           `json:"numeroPagina"`
	PaginasRestantes int           `json:"paginasRestantes"`
	Empty            bool          `json:"empty"`
}

// itemWire is the upstream wire format of one tender item.
type itemWire struct {
	NumeroItem             int      `json:"numeroItem"`
	Descricao              string   `json:"descricao"`
	Quantidade             float64  `json:"quantidade"`
	UnidadeMedida          string   `json:"unidadeMedida"`
	ValorUnitarioEstimado  *float64 `json:"valorUnitarioEstimado"`
	MaterialOuServico      string   `json:"materialOuServico"`
	NcmNbsCodigo           *string  `json:"ncmNbsCodigo"`
	TipoBeneficioID        int      `json:"tipoBeneficioId"`
}

// arquivoWire is the upstream wire format of one published attachment.
type arquivoWire struct {
	SequencialDocumento int    `json:"sequencialDocumento"`
	Titulo              string `json:"titulo"`
	URL                 string `json:"url"`
	URI                 string `json:"uri"`
}

// client performs HTTP calls against the portal with a shared pooled
// transport and a per-host request rate cap.
type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Policy
}

func newClient(baseURL string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        hostConcurrency * 2,
				MaxIdleConnsPerHost: hostConcurrency,
				MaxConnsPerHost:     hostConcurrency,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(hostConcurrency), hostConcurrency),
		// Pages are fetched 20 at a time, so per-request retries stay short;
		// a page lost after three attempts is dropped by the caller.
		retry: retry.NewExponentialBackoff(retry.Config{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			MaxElapsedTime:  30 * time.Second,
			MaxRetries:      3,
		}),
	}
}

// fetchPage fetches one listing page for the given date window and modality.
func (c *client) fetchPage(ctx context.Context, start, end time.Time, modality, page int) (*listResponse, error) {
	url := fmt.Sprintf(
		"%s/contratacoes/proposta?dataInicial=%s&dataFinal=%s&pagina=%d&tamanhoPagina=%d&codigoModalidadeContratacao=%d",
		c.baseURL, start.Format("20060102"), end.Format("20060102"), page, pageSize, modality,
	)

	var out listResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// fetchDetail fetches the full record of one purchase.
func (c *client) fetchDetail(ctx context.Context, cn controlNumber) (*contratacao, error) {
	url := fmt.Sprintf("%s/orgaos/%s/compras/%s/%s", c.baseURL, cn.CNPJ, cn.Year, cn.Sequence)
	var out contratacao
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// fetchItems fetches the line items of one purchase.
func (c *client) fetchItems(ctx context.Context, cn controlNumber) ([]itemWire, error) {
	url := fmt.Sprintf("%s/orgaos/%s/compras/%s/%s/itens", c.baseURL, cn.CNPJ, cn.Year, cn.Sequence)
	var out []itemWire
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchFiles fetches the published attachment listing of one purchase.
func (c *client) fetchFiles(ctx context.Context, cn controlNumber) ([]arquivoWire, error) {
	url := fmt.Sprintf("%s/orgaos/%s/compras/%s/%s/arquivos", c.baseURL, cn.CNPJ, cn.Year, cn.Sequence)
	var out []arquivoWire
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getJSON fetches url with retries. Network failures, 429 and 5xx back off
// and retry; any other client error fails immediately.
func (c *client) getJSON(ctx context.Context, url string, out interface{}) error {
	return c.retry.Execute(ctx, func(ctx context.Context) error {
		return c.fetchJSON(ctx, url, out)
	})
}

// fetchJSON performs a single GET attempt.
func (c *client) fetchJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 204 means an empty window, not an error.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &retry.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("portal returned %d for %s: %s", resp.StatusCode, url, string(body)),
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
