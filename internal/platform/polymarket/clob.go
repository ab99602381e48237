package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/crypto"
	"github.com/alanyoungcy/pairarb/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// StatusError is a non-2xx response from the venue.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// ClobClient is the REST client for the CLOB API: books, balance and leg
// orders. Orders are signed locally, so the order hash is known before the
// request is sent.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	negRisk    *crypto.Signer

	mu       sync.RWMutex
	hmacAuth *crypto.HMACAuth
	negRiskT map[string]bool
}

// NewClobClient creates a CLOB client. negRisk signs orders of neg-risk
// markets and may be nil when those markets are never traded. hmac may be
// nil until DeriveAPIKey runs.
func NewClobClient(baseURL string, signer, negRisk *crypto.Signer, hmac *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		negRisk:    negRisk,
		hmacAuth:   hmac,
		negRiskT:   make(map[string]bool),
	}
}

// MarkNegRisk records that tokens belong to a neg-risk market.
func (c *ClobClient) MarkNegRisk(tokens ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tokens {
		c.negRiskT[t] = true
	}
}

func (c *ClobClient) signerFor(tokenID string) *crypto.Signer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.negRiskT[tokenID] && c.negRisk != nil {
		return c.negRisk
	}
	return c.signer
}

// GetOrderBook returns the book of tokenID. An unknown token yields an
// empty book.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/book?token_id="+url.QueryEscape(tokenID), nil, false)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OrderBook{TokenID: tokenID, FetchedAt: time.Now().UTC()}, nil
		}
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	var book APIBook
	if err := json.Unmarshal(respBody, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	return book.ToDomainBook(), nil
}

// GetBalance returns the collateral balance and allowance of the wallet.
func (c *ClobClient) GetBalance(ctx context.Context) (domain.Balance, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL&signature_type=0", nil, true)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("polymarket/clob: get balance: %w", err)
	}
	var bal APIBalance
	if err := json.Unmarshal(respBody, &bal); err != nil {
		return domain.Balance{}, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	out, err := bal.ToDomainBalance()
	if err != nil {
		return domain.Balance{}, fmt.Errorf("polymarket/clob: parse balance: %w", err)
	}
	return out, nil
}

// BuildOrder converts a leg request into the unsigned order struct. Size is
// truncated to cents of a share and the collateral side to 4 decimals.
func (c *ClobClient) BuildOrder(req domain.LegOrder, salt int64) (crypto.OrderPayload, error) {
	if req.TokenID == "" || req.Price <= 0 || req.Price >= 1 || req.Size <= 0 {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket/clob: %w: token=%q price=%v size=%v",
			domain.ErrInvalidOrder, req.TokenID, req.Price, req.Size)
	}
	price := decimal.NewFromFloat(req.Price).Round(4)
	shares := decimal.NewFromFloat(req.Size).Truncate(2)
	collateral := shares.Mul(price).Truncate(4)
	if !shares.IsPositive() || !collateral.IsPositive() {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket/clob: %w: size %v rounds to zero", domain.ErrInvalidOrder, req.Size)
	}

	units := func(d decimal.Decimal) string {
		return d.Shift(collateralDecimals).Truncate(0).String()
	}
	side := crypto.SideBuy
	maker, taker := units(collateral), units(shares)
	if req.Side == domain.OrderSideSell {
		side = crypto.SideSell
		maker, taker = taker, maker
	}

	addr := c.signer.Address().Hex()
	return crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         addr,
		Signer:        addr,
		Taker:         zeroAddress,
		TokenID:       req.TokenID,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: 0,
	}, nil
}

// PlaceOrder signs and submits a GTC limit order and returns its id.
//
// When the request fails after signing without a definitive rejection
// (transport error, timeout, 5xx) the locally computed order hash is
// returned together with the error, since the order may be resting.
func (c *ClobClient) PlaceOrder(ctx context.Context, req domain.LegOrder) (string, error) {
	salt := rand.Int64N(1 << 53)
	payload, err := c.BuildOrder(req, salt)
	if err != nil {
		return "", err
	}
	signed, err := c.signerFor(req.TokenID).SignOrder(payload)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}

	side := "BUY"
	if payload.Side == crypto.SideSell {
		side = "SELL"
	}
	body := APIOrderRequest{
		Order: APISignedOrder{
			Salt:          salt,
			Maker:         signed.Maker,
			Signer:        signed.Signer,
			Taker:         signed.Taker,
			TokenID:       signed.TokenID,
			MakerAmount:   signed.MakerAmount,
			TakerAmount:   signed.TakerAmount,
			Expiration:    signed.Expiration,
			Nonce:         signed.Nonce,
			FeeRateBps:    signed.FeeRateBps,
			Side:          side,
			SignatureType: signed.SignatureType,
			Signature:     signed.Signature,
		},
		Owner:     c.apiKey(),
		OrderType: "GTC",
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", body, true)
	if err != nil {
		if definitive(err) {
			return "", fmt.Errorf("polymarket/clob: post order: %w", err)
		}
		return signed.Hash, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return signed.Hash, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}
	if result.OrderID != "" {
		return result.OrderID, nil
	}
	return signed.Hash, nil
}

// definitive reports whether err proves the venue did not accept the order.
func definitive(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// CancelOrder cancels one order and reports whether the venue confirmed it.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) bool {
	respBody, err := c.doRequest(ctx, http.MethodDelete, "/order", map[string]string{"orderID": orderID}, true)
	if err != nil {
		return false
	}
	var result APICancelResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false
	}
	for _, id := range result.Canceled {
		if id == orderID {
			return true
		}
	}
	return false
}

// CancelAllOrders cancels every open order of the wallet.
func (c *ClobClient) CancelAllOrders(ctx context.Context) bool {
	respBody, err := c.doRequest(ctx, http.MethodDelete, "/cancel-all", nil, true)
	if err != nil {
		return false
	}
	var result APICancelResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false
	}
	return len(result.NotCanceled) == 0
}

// GetOrderStatus returns the exchange-side state of one leg order.
func (c *ClobClient) GetOrderStatus(ctx context.Context, orderID string) (domain.LegStatus, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil, true)
	if err != nil {
		return domain.LegUnknown, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}
	var order APIOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return domain.LegUnknown, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	return order.LegStatus(), nil
}

// DeriveAPIKey runs the L1 auth flow: it signs a ClobAuth message, derives
// the wallet's existing API credentials and creates them when none exist.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	creds, err := c.l1(ctx, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		creds, err = c.l1(ctx, http.MethodPost, "/auth/api-key")
	}
	if err != nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	c.mu.Lock()
	c.hmacAuth = creds
	c.mu.Unlock()
	return nil
}

func (c *ClobClient) l1(ctx context.Context, method, path string) (*crypto.HMACAuth, error) {
	ts := time.Now().Unix()
	sig, err := c.signer.SignAuthMessage(ts, 0)
	if err != nil {
		return nil, fmt.Errorf("sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("POLY_NONCE", "0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if authResp.APIKey == "" {
		return nil, fmt.Errorf("auth response without api key")
	}
	return &crypto.HMACAuth{Key: authResp.APIKey, Secret: authResp.Secret, Passphrase: authResp.Passphrase}, nil
}

func (c *ClobClient) apiKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hmacAuth == nil {
		return ""
	}
	return c.hmacAuth.Key
}

// doRequest sends a request and returns the response body. Authenticated
// requests carry L2 HMAC headers over the exact body sent.
func (c *ClobClient) doRequest(ctx context.Context, method, path string, body any, auth bool) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		c.mu.RLock()
		h := c.hmacAuth
		c.mu.RUnlock()
		if h == nil {
			return nil, fmt.Errorf("%w: api key not derived", domain.ErrUnauthorized)
		}
		signPath := path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		for k, v := range h.L2Headers(c.signer.Address().Hex(), method, signPath, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors. The
// StatusError stays reachable through errors.As.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	se := &StatusError{Code: statusCode, Body: string(body)}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, se)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, se)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, se)
	default:
		return se
	}
}
