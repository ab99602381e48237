// Package memory provides in-process implementations of the domain stores.
// They back the paper-trading mode and the package tests; state is lost on
// exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.SettingsStore    = (*SettingsStore)(nil)
	_ domain.OpportunityStore = (*OpportunityStore)(nil)
	_ domain.TradeStore       = (*TradeStore)(nil)
	_ domain.AlertStore       = (*AlertStore)(nil)
	_ domain.DailyPnLStore    = (*DailyPnLStore)(nil)
	_ domain.AuditStore       = (*AuditStore)(nil)
)

func key(accountID, id string) string { return accountID + "/" + id }

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// SettingsStore keeps one Settings value per account.
type SettingsStore struct {
	mu   sync.RWMutex
	rows map[string]domain.Settings
}

// NewSettingsStore creates an empty SettingsStore.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{rows: make(map[string]domain.Settings)}
}

func (s *SettingsStore) Get(_ context.Context, accountID string) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.rows[accountID]
	if !ok {
		return domain.Settings{}, domain.ErrNotFound
	}
	st.ActiveCurrencies = append([]string(nil), st.ActiveCurrencies...)
	return st, nil
}

func (s *SettingsStore) Upsert(_ context.Context, st domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ActiveCurrencies = append([]string(nil), st.ActiveCurrencies...)
	st.UpdatedAt = time.Now().UTC()
	s.rows[st.AccountID] = st
	return nil
}

func (s *SettingsStore) SetKillSwitch(_ context.Context, accountID string, on bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	st.KillSwitch = on
	st.KillSwitchReason = reason
	st.UpdatedAt = time.Now().UTC()
	s.rows[accountID] = st
	return nil
}

// OpportunityStore keeps opportunities in insertion order.
type OpportunityStore struct {
	mu    sync.RWMutex
	rows  map[string]domain.Opportunity
	order []string
}

// NewOpportunityStore creates an empty OpportunityStore.
func NewOpportunityStore() *OpportunityStore {
	return &OpportunityStore{rows: make(map[string]domain.Opportunity)}
}

func (s *OpportunityStore) Create(_ context.Context, opp domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(opp.AccountID, opp.ID)
	if _, ok := s.rows[k]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[k] = opp
	s.order = append(s.order, k)
	return nil
}

func (s *OpportunityStore) GetByID(_ context.Context, accountID, id string) (domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opp, ok := s.rows[key(accountID, id)]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	return opp, nil
}

func (s *OpportunityStore) UpdateStatus(_ context.Context, accountID, id string, status domain.OpportunityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, id)
	opp, ok := s.rows[k]
	if !ok {
		return domain.ErrNotFound
	}
	if opp.Status != domain.OpportunityPending {
		return domain.ErrInvalidTransition
	}
	opp.Status = status
	opp.UpdatedAt = time.Now().UTC()
	s.rows[k] = opp
	return nil
}

func (s *OpportunityStore) ExistsPendingForMarket(_ context.Context, accountID, marketID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, opp := range s.rows {
		if opp.AccountID == accountID && opp.MarketID == marketID && opp.Status == domain.OpportunityPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *OpportunityStore) ListByStatus(_ context.Context, accountID string, status domain.OpportunityStatus, opts domain.ListOpts) ([]domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Opportunity
	for i := len(s.order) - 1; i >= 0; i-- {
		opp := s.rows[s.order[i]]
		if opp.AccountID != accountID {
			continue
		}
		if status != "" && opp.Status != status {
			continue
		}
		out = append(out, opp)
	}
	return page(out, opts), nil
}

func (s *OpportunityStore) TransitionPending(_ context.Context, accountID string, status domain.OpportunityStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for k, opp := range s.rows {
		if opp.AccountID == accountID && opp.Status == domain.OpportunityPending {
			opp.Status = status
			opp.UpdatedAt = now
			s.rows[k] = opp
			n++
		}
	}
	return n, nil
}

func (s *OpportunityStore) ExpirePending(_ context.Context, accountID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, opp := range s.rows {
		if opp.AccountID == accountID && opp.Status == domain.OpportunityPending && opp.Expired(now) {
			opp.Status = domain.OpportunityExpired
			opp.UpdatedAt = now.UTC()
			s.rows[k] = opp
			n++
		}
	}
	return n, nil
}

// TradeStore keeps trades in insertion order.
type TradeStore struct {
	mu    sync.RWMutex
	rows  map[string]domain.Trade
	order []string
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{rows: make(map[string]domain.Trade)}
}

func (s *TradeStore) Create(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(t.AccountID, t.ID)
	if _, ok := s.rows[k]; ok {
		return domain.ErrAlreadyExists
	}
	if t.OpportunityID != "" {
		for _, existing := range s.rows {
			if existing.OpportunityID == t.OpportunityID {
				return domain.ErrAlreadyExists
			}
		}
	}
	s.rows[k] = t
	s.order = append(s.order, k)
	return nil
}

func (s *TradeStore) GetByID(_ context.Context, accountID, id string) (domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rows[key(accountID, id)]
	if !ok {
		return domain.Trade{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *TradeStore) Update(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(t.AccountID, t.ID)
	if _, ok := s.rows[k]; !ok {
		return domain.ErrNotFound
	}
	s.rows[k] = t
	return nil
}

func (s *TradeStore) CountByStatus(_ context.Context, accountID string, statuses []domain.TradeStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.rows {
		if t.AccountID == accountID && hasStatus(statuses, t.Status) {
			n++
		}
	}
	return n, nil
}

func (s *TradeStore) ListByStatus(_ context.Context, accountID string, statuses []domain.TradeStatus, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.rows[s.order[i]]
		if t.AccountID != accountID {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, t.Status) {
			continue
		}
		out = append(out, t)
	}
	return page(out, opts), nil
}

func (s *TradeStore) ListSettledBefore(_ context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for _, k := range s.order {
		t := s.rows[k]
		if t.Status.Terminal() && t.UpdatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return page(out, domain.ListOpts{Limit: limit}), nil
}

func (s *TradeStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var n int64
	kept := s.order[:0]
	for _, k := range s.order {
		if drop[s.rows[k].ID] {
			delete(s.rows, k)
			n++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	return n, nil
}

func hasStatus(statuses []domain.TradeStatus, st domain.TradeStatus) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// AlertStore keeps alerts in insertion order.
type AlertStore struct {
	mu   sync.RWMutex
	rows []domain.Alert
}

// NewAlertStore creates an empty AlertStore.
func NewAlertStore() *AlertStore { return &AlertStore{} }

func (s *AlertStore) Create(_ context.Context, a domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, a)
	return nil
}

func (s *AlertStore) List(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Alert
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].AccountID == accountID {
			out = append(out, s.rows[i])
		}
	}
	return page(out, opts), nil
}

func (s *AlertStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Alert
	for _, a := range s.rows {
		if a.CreatedAt.Before(before) {
			out = append(out, a)
		}
	}
	return page(out, domain.ListOpts{Limit: limit}), nil
}

func (s *AlertStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.rows[:0]
	for _, a := range s.rows {
		if a.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return n, nil
}

// DailyPnLStore keeps one aggregate per account and UTC day.
type DailyPnLStore struct {
	mu   sync.RWMutex
	rows map[string]domain.DailyPnL
}

// NewDailyPnLStore creates an empty DailyPnLStore.
func NewDailyPnLStore() *DailyPnLStore {
	return &DailyPnLStore{rows: make(map[string]domain.DailyPnL)}
}

func dayKey(accountID string, day time.Time) string {
	return key(accountID, domain.Day(day).Format(time.DateOnly))
}

func (s *DailyPnLStore) Get(_ context.Context, accountID string, day time.Time) (domain.DailyPnL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[dayKey(accountID, day)]
	if !ok {
		return domain.DailyPnL{AccountID: accountID, Date: domain.Day(day)}, nil
	}
	return p, nil
}

func (s *DailyPnLStore) Add(_ context.Context, accountID string, day time.Time, profit float64) (domain.DailyPnL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dayKey(accountID, day)
	p, ok := s.rows[k]
	if !ok {
		p = domain.DailyPnL{AccountID: accountID, Date: domain.Day(day)}
	}
	p.TradeCount++
	if profit > 0 {
		p.WinCount++
	}
	p.RealizedPnL += profit
	s.rows[k] = p
	return p, nil
}

// Set overwrites a day's aggregate. Used to seed paper accounts and tests.
func (s *DailyPnLStore) Set(p domain.DailyPnL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Date = domain.Day(p.Date)
	s.rows[dayKey(p.AccountID, p.Date)] = p
}

func (s *DailyPnLStore) ListRecent(_ context.Context, accountID string, days int) ([]domain.DailyPnL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DailyPnL
	for _, p := range s.rows {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if days > 0 && len(out) > days {
		out = out[:days]
	}
	return out, nil
}

// AuditStore appends audit entries in memory.
type AuditStore struct {
	mu   sync.RWMutex
	rows []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore { return &AuditStore{} }

func (s *AuditStore) Log(_ context.Context, accountID, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, domain.AuditEntry{
		ID:        int64(len(s.rows) + 1),
		AccountID: accountID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *AuditStore) List(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].AccountID == accountID {
			out = append(out, s.rows[i])
		}
	}
	return page(out, opts), nil
}
