// Package polymarket is the venue adapter: Gamma market discovery and
// resolution, the CLOB order gateway and its market-data WebSocket.
package polymarket

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Client bundles the Gamma and CLOB clients into one domain.Exchange.
type Client struct {
	*GammaClient
	*ClobClient
}

// NewClient combines gamma and clob.
func NewClient(gamma *GammaClient, clob *ClobClient) *Client {
	return &Client{GammaClient: gamma, ClobClient: clob}
}

// FetchCandidateMarkets lists tradable markets for currencies and remembers
// which tokens need the neg-risk exchange signer.
func (c *Client) FetchCandidateMarkets(ctx context.Context, currencies []string) ([]domain.Market, error) {
	raw, err := c.ListActiveMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("polymarket: candidates: %w", err)
	}
	markets := make([]domain.Market, 0, len(raw))
	for i := range raw {
		m := raw[i].ToDomainMarket()
		if !m.Tradable() || !MatchesCurrency(m, currencies) {
			continue
		}
		if raw[i].NegRisk {
			c.MarkNegRisk(m.YesToken, m.NoToken)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// PaperClient reads markets and books from the venue and simulates orders
// and balance locally.
type PaperClient struct {
	*GammaClient
	*PaperGateway
	books *ClobClient
}

// NewPaperClient creates a PaperClient holding balance dollars.
func NewPaperClient(gamma *GammaClient, books *ClobClient, balance float64) *PaperClient {
	return &PaperClient{
		GammaClient:  gamma,
		PaperGateway: NewPaperGateway(books, balance),
		books:        books,
	}
}

// GetOrderBook reads the live book.
func (c *PaperClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	return c.books.GetOrderBook(ctx, tokenID)
}

var (
	_ domain.Exchange         = (*Client)(nil)
	_ domain.ResolutionSource = (*Client)(nil)
	_ domain.Exchange         = (*PaperClient)(nil)
	_ domain.ResolutionSource = (*PaperClient)(nil)
)
