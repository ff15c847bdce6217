package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderOutcome is the side of the binary contract an order trades.
type OrderOutcome string

const (
	OutcomeYes OrderOutcome = "yes"
	OutcomeNo  OrderOutcome = "no"
)

// Opposite returns the complementary outcome.
func (o OrderOutcome) Opposite() OrderOutcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// OrderStatus tracks the order lifecycle. Status is a pure function of filled
// quantity versus total quantity plus explicit cancellation or expiry;
// filled, cancelled and expired are terminal.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Price bounds for limit orders, in micros: [0.01, 0.99].
const (
	MinPriceMicros int64 = 10_000
	MaxPriceMicros int64 = 990_000
)

// Order is a resting or filled limit order on a binary market. Quantities are
// integral shares; prices are fixed-point micros.
type Order struct {
	ID          string
	MarketID    string
	Wallet      string
	Outcome     OrderOutcome
	Side        OrderSide
	PriceMicros int64
	Quantity    int64
	Filled      int64
	Status      OrderStatus
	ExpiresAt   *time.Time // nil for good-till-cancelled
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// Terminal reports whether the order can no longer change.
func (o Order) Terminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// ExpiredAt reports whether the order's deadline has passed at the given time.
func (o Order) ExpiredAt(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Fill records one match between two orders. Minted is true when the match
// created a new complementary pair (both sides fresh capital) rather than
// transferring existing shares.
type Fill struct {
	ID           string
	MarketID     string
	TakerOrderID string
	MakerOrderID string
	Outcome      OrderOutcome // outcome of the taker order
	PriceMicros  int64        // YES-equivalent price of the match
	Quantity     int64
	Minted       bool
	CreatedAt    time.Time
}
