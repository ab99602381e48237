package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// gammaPageSize is the page size used when listing markets.
const gammaPageSize = 500

// currencyAliases expands a ticker into the words market questions use.
var currencyAliases = map[string][]string{
	"BTC":  {"btc", "bitcoin"},
	"ETH":  {"eth", "ethereum", "ether"},
	"SOL":  {"sol", "solana"},
	"XRP":  {"xrp", "ripple"},
	"DOGE": {"doge", "dogecoin"},
	"BNB":  {"bnb"},
}

// GammaClient is the REST client for the Gamma API, which serves market
// discovery and resolution.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	maxPages   int
}

// NewGammaClient creates a Gamma client for baseURL, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxPages:   10,
	}
}

// ListActiveMarkets pages through every open market.
func (g *GammaClient) ListActiveMarkets(ctx context.Context) ([]APIMarket, error) {
	var all []APIMarket
	for page := 0; page < g.maxPages; page++ {
		params := url.Values{}
		params.Set("active", "true")
		params.Set("closed", "false")
		params.Set("archived", "false")
		params.Set("enableOrderBook", "true")
		params.Set("limit", strconv.Itoa(gammaPageSize))
		params.Set("offset", strconv.Itoa(page*gammaPageSize))

		body, err := g.doGet(ctx, "/markets?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
		}
		var batch []APIMarket
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < gammaPageSize {
			break
		}
	}
	return all, nil
}

// FetchCandidateMarkets returns tradable binary markets mentioning any of
// currencies. An empty currency list keeps every market.
func (g *GammaClient) FetchCandidateMarkets(ctx context.Context, currencies []string) ([]domain.Market, error) {
	raw, err := g.ListActiveMarkets(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]domain.Market, 0, len(raw))
	for i := range raw {
		m := raw[i].ToDomainMarket()
		if !m.Tradable() || !MatchesCurrency(m, currencies) {
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// GetMarket returns one raw market by id.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (APIMarket, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}
	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	return m, nil
}

// GetResolution reports whether marketID has closed and which outcome won.
func (g *GammaClient) GetResolution(ctx context.Context, marketID string) (domain.Resolution, error) {
	m, err := g.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Resolution{}, err
	}
	return m.ToResolution(), nil
}

// MatchesCurrency reports whether the market question or slug names one of
// currencies, matched on whole words.
func MatchesCurrency(m domain.Market, currencies []string) bool {
	if len(currencies) == 0 {
		return true
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(m.Question+" "+m.Slug), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		words[w] = struct{}{}
	}
	for _, c := range currencies {
		aliases, ok := currencyAliases[strings.ToUpper(c)]
		if !ok {
			aliases = []string{strings.ToLower(c)}
		}
		for _, a := range aliases {
			if _, hit := words[a]; hit {
				return true
			}
		}
	}
	return false
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
