package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrPoolNotOpen         = errors.New("pool is not open for trading")
	ErrMarketNotOpen       = errors.New("market is not open for trading")
	ErrAlreadyResolved     = errors.New("already resolved")
	ErrInvalidPrice        = errors.New("price out of range")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrInvalidLiquidity    = errors.New("liquidity parameter must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrStaleQuote          = errors.New("quote no longer matches live price")
	ErrNonceUnknown        = errors.New("settlement nonce unknown")
	ErrNonceUsed           = errors.New("settlement nonce already used")
	ErrNonceExpired        = errors.New("settlement nonce expired")
	ErrTermsMismatch       = errors.New("signed payload does not match settlement terms")
	ErrSignatureInvalid    = errors.New("signature verification failed")
	ErrSignatureRequired   = errors.New("order requires signed settlement")
	ErrNotOrderOwner       = errors.New("not the order owner")
	ErrOrderTerminal       = errors.New("order is in a terminal state")
	ErrLockHeld            = errors.New("lock already held")
)

// Recoverable reports whether the caller can retry the operation with
// corrected or refreshed input. Staleness errors require a fresh quote or a
// rebuilt settlement; validation and resource errors require corrected input.
// Anything not listed here is treated as a system failure.
func Recoverable(err error) bool {
	for _, e := range []error{
		ErrPoolNotOpen, ErrMarketNotOpen,
		ErrInvalidPrice, ErrInvalidQuantity, ErrInvalidOutcome,
		ErrInsufficientBalance, ErrInsufficientShares,
		ErrStaleQuote, ErrNonceUnknown, ErrNonceUsed, ErrNonceExpired,
		ErrTermsMismatch, ErrSignatureInvalid, ErrSignatureRequired,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
