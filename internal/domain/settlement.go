package domain

import "time"

// SettlementStatus tracks a pending settlement's lifecycle.
type SettlementStatus string

const (
	SettlementStatusPending SettlementStatus = "pending"
	SettlementStatusUsed    SettlementStatus = "used"
	SettlementStatusExpired SettlementStatus = "expired"
)

// PendingSettlement is a nonce-bound, time-limited record created by a build
// call. A later submit must match these terms exactly. The nonce is
// single-use: submitting with a stale, used, or unknown nonce fails without
// touching the ledger.
type PendingSettlement struct {
	ID               string
	Nonce            string
	Wallet           string
	MarketID         string
	Outcome          OrderOutcome
	Side             OrderSide
	PriceMicros      int64
	Quantity         int64
	CollateralMicros int64 // price * quantity, the maximum pair-minting cost
	Status           SettlementStatus
	TxRef            string // external transaction reference recorded on submit
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UsedAt           *time.Time
}

// Expired reports whether the settlement deadline has passed. Expiry is
// checked lazily on access; an expired settlement holds no lock and no
// reserved collateral.
func (s PendingSettlement) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
