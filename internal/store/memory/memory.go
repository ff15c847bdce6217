// Package memory provides in-memory implementations of the domain store
// interfaces. They back the dev mode and the service-layer tests; the
// postgres package is the durable counterpart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// LedgerStore is an in-memory domain.LedgerStore.
type LedgerStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

// NewLedgerStore creates an empty in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{accounts: make(map[string]domain.Account)}
}

func (s *LedgerStore) Get(_ context.Context, wallet string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[wallet]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return acct, nil
}

func (s *LedgerStore) Credit(_ context.Context, wallet string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[wallet]
	acct.Wallet = wallet
	acct.AvailableMicros += amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[wallet] = acct
	return nil
}

func (s *LedgerStore) Debit(_ context.Context, wallet string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[wallet]
	if acct.AvailableMicros < amount {
		return domain.ErrInsufficientBalance
	}
	acct.AvailableMicros -= amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[wallet] = acct
	return nil
}

func (s *LedgerStore) Lock(_ context.Context, wallet string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[wallet]
	if acct.AvailableMicros < amount {
		return domain.ErrInsufficientBalance
	}
	acct.AvailableMicros -= amount
	acct.LockedMicros += amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[wallet] = acct
	return nil
}

func (s *LedgerStore) Unlock(_ context.Context, wallet string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[wallet]
	if acct.LockedMicros < amount {
		return domain.ErrInsufficientBalance
	}
	acct.LockedMicros -= amount
	acct.AvailableMicros += amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[wallet] = acct
	return nil
}

func (s *LedgerStore) SpendLocked(_ context.Context, wallet string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[wallet]
	if acct.LockedMicros < amount {
		return domain.ErrInsufficientBalance
	}
	acct.LockedMicros -= amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[wallet] = acct
	return nil
}

// PoolStore is an in-memory domain.PoolStore.
type PoolStore struct {
	mu    sync.RWMutex
	pools map[string]domain.Pool
}

// NewPoolStore creates an empty in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{pools: make(map[string]domain.Pool)}
}

func clonePool(p domain.Pool) domain.Pool {
	p.Outcomes = append([]domain.Outcome(nil), p.Outcomes...)
	return p
}

func (s *PoolStore) Create(_ context.Context, pool domain.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.pools[pool.ID] = clonePool(pool)
	return nil
}

func (s *PoolStore) Get(_ context.Context, id string) (domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	return clonePool(pool), nil
}

func (s *PoolStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pools := make([]domain.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, clonePool(p))
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].CreatedAt.Before(pools[j].CreatedAt) })
	return paginate(pools, opts), nil
}

func (s *PoolStore) Update(_ context.Context, pool domain.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.ID]; !ok {
		return domain.ErrNotFound
	}
	s.pools[pool.ID] = clonePool(pool)
	return nil
}

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	return nil
}

func (s *MarketStore) Get(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *MarketStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	markets := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].CreatedAt.Before(markets[j].CreatedAt) })
	return paginate(markets, opts), nil
}

func (s *MarketStore) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = m
	return nil
}

// OrderStore is an in-memory domain.OrderStore.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderStore creates an empty in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

func (s *OrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.orders[o.ID] = o
	return nil
}

func (s *OrderStore) Get(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *OrderStore) Update(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	s.orders[o.ID] = o
	return nil
}

func (s *OrderStore) ListOpenByMarket(_ context.Context, marketID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.MarketID == marketID && !o.Terminal() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *OrderStore) ListByWallet(_ context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Wallet == wallet {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// PositionStore is an in-memory domain.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[domain.PositionKey]domain.Position
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[domain.PositionKey]domain.Position)}
}

func (s *PositionStore) Get(_ context.Context, key domain.PositionKey) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[key]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *PositionStore) Upsert(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.Key()] = pos
	return nil
}

func (s *PositionStore) ListByWallet(_ context.Context, wallet string) ([]domain.Position, error) {
	return s.list(func(p domain.Position) bool { return p.Wallet == wallet })
}

func (s *PositionStore) ListByPool(_ context.Context, poolID string) ([]domain.Position, error) {
	return s.list(func(p domain.Position) bool { return p.PoolID == poolID })
}

func (s *PositionStore) ListByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	return s.list(func(p domain.Position) bool { return p.MarketID == marketID })
}

func (s *PositionStore) list(keep func(domain.Position) bool) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SettlementStore is an in-memory domain.SettlementStore.
type SettlementStore struct {
	mu      sync.Mutex
	byNonce map[string]domain.PendingSettlement
}

// NewSettlementStore creates an empty in-memory settlement store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{byNonce: make(map[string]domain.PendingSettlement)}
}

func (s *SettlementStore) Create(_ context.Context, ps domain.PendingSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNonce[ps.Nonce]; ok {
		return domain.ErrAlreadyExists
	}
	s.byNonce[ps.Nonce] = ps
	return nil
}

func (s *SettlementStore) GetByNonce(_ context.Context, nonce string) (domain.PendingSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.byNonce[nonce]
	if !ok {
		return domain.PendingSettlement{}, domain.ErrNotFound
	}
	return ps, nil
}

func (s *SettlementStore) Consume(_ context.Context, nonce, txRef string, now time.Time) (domain.PendingSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.byNonce[nonce]
	if !ok {
		return domain.PendingSettlement{}, domain.ErrNonceUnknown
	}
	switch {
	case ps.Status == domain.SettlementStatusUsed:
		return domain.PendingSettlement{}, domain.ErrNonceUsed
	case ps.Status == domain.SettlementStatusExpired || ps.Expired(now):
		ps.Status = domain.SettlementStatusExpired
		s.byNonce[nonce] = ps
		return domain.PendingSettlement{}, domain.ErrNonceExpired
	}
	used := now
	ps.Status = domain.SettlementStatusUsed
	ps.TxRef = txRef
	ps.UsedAt = &used
	s.byNonce[nonce] = ps
	return ps, nil
}

func (s *SettlementStore) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for nonce, ps := range s.byNonce {
		if ps.Status == domain.SettlementStatusPending && ps.Expired(now) {
			ps.Status = domain.SettlementStatusExpired
			s.byNonce[nonce] = ps
			n++
		}
	}
	return n, nil
}

// FillStore is an in-memory domain.FillStore.
type FillStore struct {
	mu    sync.RWMutex
	fills []domain.Fill
}

// NewFillStore creates an empty in-memory fill store.
func NewFillStore() *FillStore {
	return &FillStore{}
}

func (s *FillStore) Insert(_ context.Context, f domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, f)
	return nil
}

func (s *FillStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Fill
	for _, f := range s.fills {
		if f.MarketID == marketID {
			out = append(out, f)
		}
	}
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
