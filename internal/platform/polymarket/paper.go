package polymarket

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

type paperOrder struct {
	req    domain.LegOrder
	cost   decimal.Decimal
	status domain.LegStatus
}

// PaperGateway simulates the order gateway and balance against live books.
// A buy fills at once when the best ask is at or below its limit and rests
// otherwise. Collateral is reserved on placement and released on cancel.
type PaperGateway struct {
	books domain.BookSource

	mu      sync.Mutex
	balance decimal.Decimal
	orders  map[string]*paperOrder
}

// NewPaperGateway creates a PaperGateway starting with balance dollars.
func NewPaperGateway(books domain.BookSource, balance float64) *PaperGateway {
	return &PaperGateway{
		books:   books,
		balance: decimal.NewFromFloat(balance),
		orders:  make(map[string]*paperOrder),
	}
}

// PlaceOrder reserves collateral and matches against the current book.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req domain.LegOrder) (string, error) {
	if req.TokenID == "" || req.Price <= 0 || req.Price >= 1 || req.Size <= 0 {
		return "", fmt.Errorf("polymarket/paper: %w", domain.ErrInvalidOrder)
	}
	cost := decimal.NewFromFloat(req.Size).Mul(decimal.NewFromFloat(req.Price))

	book, err := p.books.GetOrderBook(ctx, req.TokenID)
	if err != nil {
		return "", fmt.Errorf("polymarket/paper: book %s: %w", req.TokenID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if req.Side != domain.OrderSideSell && cost.GreaterThan(p.balance) {
		return "", fmt.Errorf("polymarket/paper: insufficient balance %s for %s", p.balance, cost)
	}

	status := domain.LegOpen
	if ask, ok := book.BestAsk(); ok && ask.Price <= req.Price && req.Side != domain.OrderSideSell {
		status = domain.LegMatched
	}
	if req.Side != domain.OrderSideSell {
		p.balance = p.balance.Sub(cost)
	}

	id := "paper-" + uuid.NewString()
	p.orders[id] = &paperOrder{req: req, cost: cost, status: status}
	return id, nil
}

// CancelOrder cancels a resting order and releases its collateral.
func (p *PaperGateway) CancelOrder(_ context.Context, orderID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelLocked(orderID)
}

func (p *PaperGateway) cancelLocked(id string) bool {
	o, ok := p.orders[id]
	if !ok || o.status != domain.LegOpen {
		return false
	}
	o.status = domain.LegCancelled
	if o.req.Side != domain.OrderSideSell {
		p.balance = p.balance.Add(o.cost)
	}
	return true
}

// CancelAllOrders cancels every resting order.
func (p *PaperGateway) CancelAllOrders(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.orders {
		if o.status == domain.LegOpen {
			p.cancelLocked(id)
		}
	}
	return true
}

// GetOrderStatus reports a simulated order's state.
func (p *PaperGateway) GetOrderStatus(_ context.Context, orderID string) (domain.LegStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return domain.LegUnknown, fmt.Errorf("polymarket/paper: order %s: %w", orderID, domain.ErrNotFound)
	}
	return o.status, nil
}

// GetBalance returns the simulated collateral. Allowance is unlimited.
func (p *PaperGateway) GetBalance(_ context.Context) (domain.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.balance.InexactFloat64()
	return domain.Balance{Balance: b, Allowance: b}, nil
}

var (
	_ domain.OrderGateway  = (*PaperGateway)(nil)
	_ domain.BalanceSource = (*PaperGateway)(nil)
)
