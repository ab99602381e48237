package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList unmarshals Gamma's JSON-encoded string arrays such as
// "[\"Yes\",\"No\"]" as well as plain arrays.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return err
	}
	*l = arr
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Gamma API.
type APIMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	ConditionID   string     `json:"conditionId"`
	Slug          string     `json:"slug"`
	Active        flexBool   `json:"active"`
	Closed        flexBool   `json:"closed"`
	Archived      flexBool   `json:"archived"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	ClobTokenIDs  stringList `json:"clobTokenIds"`
	Tokens        []Token    `json:"tokens"`
	Volume        string     `json:"volume"`
	NegRisk       bool       `json:"negRisk"`
	EndDate       string     `json:"endDate"`
	UMAStatus     string     `json:"umaResolutionStatus"`
}

// Token is a token entry of older Gamma market payloads.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// outcomeTokens pairs outcome names with token ids from whichever form the
// payload carries.
func (m *APIMarket) outcomeTokens() map[string]string {
	out := make(map[string]string, 2)
	if len(m.Tokens) > 0 {
		for _, t := range m.Tokens {
			out[strings.ToLower(t.Outcome)] = t.TokenID
		}
		return out
	}
	for i, name := range m.Outcomes {
		if i < len(m.ClobTokenIDs) {
			out[strings.ToLower(name)] = m.ClobTokenIDs[i]
		}
	}
	return out
}

// ToDomainMarket converts m. Markets without both a Yes and a No token come
// back with empty token ids and are not tradable.
func (m *APIMarket) ToDomainMarket() domain.Market {
	tokens := m.outcomeTokens()
	dm := domain.Market{
		ID:       m.ID,
		Question: m.Question,
		Slug:     m.Slug,
		YesToken: tokens["yes"],
		NoToken:  tokens["no"],
		Active:   bool(m.Active) && !bool(m.Archived),
		Closed:   bool(m.Closed),
	}
	if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
		dm.Volume = v
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			dm.ExpiresAt = t
		}
	}
	dm.Resolved = m.ToResolution().Resolved()
	return dm
}

// ToResolution reads the winning outcome. A closed market whose outcome
// prices are not yet 1/0 is still unresolved.
func (m *APIMarket) ToResolution() domain.Resolution {
	res := domain.Resolution{MarketID: m.ID, Closed: bool(m.Closed)}
	if !res.Closed {
		return res
	}
	for _, t := range m.Tokens {
		if t.Winner {
			res.Outcome = strings.ToLower(t.Outcome)
			return res
		}
	}
	for i, p := range m.OutcomePrices {
		price, err := decimal.NewFromString(p)
		if err != nil || i >= len(m.Outcomes) {
			continue
		}
		if price.Equal(decimal.NewFromInt(1)) {
			res.Outcome = strings.ToLower(m.Outcomes[i])
			return res
		}
	}
	return res
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APILevel is one price level with decimal strings.
type APILevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the CLOB order book of one token, as served by GET /book and
// the "book" market channel event.
type APIBook struct {
	EventType string     `json:"event_type,omitempty"`
	Market    string     `json:"market"`
	AssetID   string     `json:"asset_id"`
	Bids      []APILevel `json:"bids"`
	Asks      []APILevel `json:"asks"`
	Timestamp string     `json:"timestamp"`
	Hash      string     `json:"hash"`
}

// ToDomainBook converts b with asks ascending and bids descending.
// Unparseable and empty levels are dropped.
func (b *APIBook) ToDomainBook() domain.OrderBook {
	book := domain.OrderBook{
		TokenID:   b.AssetID,
		Asks:      levels(b.Asks),
		Bids:      levels(b.Bids),
		FetchedAt: parseTimestamp(b.Timestamp),
	}
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	return book
}

func levels(in []APILevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		p, perr := strconv.ParseFloat(l.Price, 64)
		s, serr := strconv.ParseFloat(l.Size, 64)
		if perr != nil || serr != nil || s <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// parseTimestamp accepts unix milliseconds, unix seconds or RFC 3339 and
// falls back to now.
func parseTimestamp(ts string) time.Time {
	if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Now().UTC()
}

// APIOrder is an order as returned by GET /data/order/{id}.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// LegStatus maps the exchange order state. A live order whose matched size
// reached its original size counts as matched.
func (o *APIOrder) LegStatus() domain.LegStatus {
	switch strings.ToUpper(o.Status) {
	case "MATCHED", "FILLED":
		return domain.LegMatched
	case "CANCELED", "CANCELLED", "CANCELED_MARKET_RESOLVED":
		return domain.LegCancelled
	case "LIVE", "OPEN", "DELAYED", "UNMATCHED":
		orig, oerr := decimal.NewFromString(o.OriginalSize)
		matched, merr := decimal.NewFromString(o.SizeMatched)
		if oerr == nil && merr == nil && orig.IsPositive() && matched.GreaterThanOrEqual(orig) {
			return domain.LegMatched
		}
		return domain.LegOpen
	}
	return domain.LegUnknown
}

// APIOrderRequest is the body of POST /order.
type APIOrderRequest struct {
	Order     APISignedOrder `json:"order"`
	Owner     string         `json:"owner"`
	OrderType string         `json:"orderType"`
}

// APISignedOrder is the signed order as the CLOB expects it on the wire.
type APISignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// APIOrderResult is the response of POST /order.
type APIOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	OrderID  string `json:"orderID,omitempty"`
	Status   string `json:"status,omitempty"`
}

// APICancelResult is the response of the cancel endpoints.
type APICancelResult struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// APIBalance is the response of GET /balance-allowance. Amounts are in
// collateral base units (6 decimals).
type APIBalance struct {
	Balance    string            `json:"balance"`
	Allowance  string            `json:"allowance"`
	Allowances map[string]string `json:"allowances"`
}

// collateralDecimals is the USDC precision on Polygon.
const collateralDecimals = 6

// ToDomainBalance converts base units to dollars. With several spender
// allowances the smallest one bounds what can be traded.
func (b *APIBalance) ToDomainBalance() (domain.Balance, error) {
	bal, err := decimal.NewFromString(b.Balance)
	if err != nil {
		return domain.Balance{}, err
	}
	allowance := decimal.Zero
	switch {
	case b.Allowance != "":
		if allowance, err = decimal.NewFromString(b.Allowance); err != nil {
			return domain.Balance{}, err
		}
	case len(b.Allowances) > 0:
		first := true
		for _, v := range b.Allowances {
			a, err := decimal.NewFromString(v)
			if err != nil {
				return domain.Balance{}, err
			}
			if first || a.LessThan(allowance) {
				allowance = a
				first = false
			}
		}
	}
	return domain.Balance{
		Balance:   bal.Shift(-collateralDecimals).InexactFloat64(),
		Allowance: allowance.Shift(-collateralDecimals).InexactFloat64(),
	}, nil
}
