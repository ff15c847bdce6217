package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// LedgerService exposes account balances and position reads, plus the
// deposit/withdraw entry points the API layer calls.
type LedgerService struct {
	ledger    domain.LedgerStore
	positions domain.PositionStore
	locks     *EntityLocks
	logger    *slog.Logger
}

func NewLedgerService(ledger domain.LedgerStore, positions domain.PositionStore, locks *EntityLocks, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		ledger:    ledger,
		positions: positions,
		locks:     locks,
		logger:    logger,
	}
}

// Deposit credits a wallet's available balance.
func (s *LedgerService) Deposit(ctx context.Context, wallet string, amountMicros int64) (domain.Account, error) {
	if amountMicros <= 0 {
		return domain.Account{}, domain.ErrInvalidQuantity
	}
	unlock := s.locks.LockUser(wallet)
	defer unlock()

	if err := s.ledger.Credit(ctx, wallet, amountMicros); err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: credit %s: %w", wallet, err)
	}
	account, err := s.ledger.Get(ctx, wallet)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: get account %s: %w", wallet, err)
	}

	s.logger.InfoContext(ctx, "ledger_service: deposit",
		slog.String("wallet", wallet),
		slog.Int64("amount_micros", amountMicros),
	)
	return account, nil
}

// Withdraw debits a wallet's available balance. Locked collateral cannot be
// withdrawn.
func (s *LedgerService) Withdraw(ctx context.Context, wallet string, amountMicros int64) (domain.Account, error) {
	if amountMicros <= 0 {
		return domain.Account{}, domain.ErrInvalidQuantity
	}
	unlock := s.locks.LockUser(wallet)
	defer unlock()

	if err := s.ledger.Debit(ctx, wallet, amountMicros); err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: debit %s: %w", wallet, err)
	}
	account, err := s.ledger.Get(ctx, wallet)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: get account %s: %w", wallet, err)
	}

	s.logger.InfoContext(ctx, "ledger_service: withdraw",
		slog.String("wallet", wallet),
		slog.Int64("amount_micros", amountMicros),
	)
	return account, nil
}

// Account returns a wallet's balances. Unknown wallets read as zero.
func (s *LedgerService) Account(ctx context.Context, wallet string) (domain.Account, error) {
	account, err := s.ledger.Get(ctx, wallet)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Account{Wallet: wallet}, nil
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger_service: get account %s: %w", wallet, err)
	}
	return account, nil
}

// Positions returns every pool and market position a wallet holds.
func (s *LedgerService) Positions(ctx context.Context, wallet string) ([]domain.Position, error) {
	positions, err := s.positions.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list positions %s: %w", wallet, err)
	}
	return positions, nil
}
