package domain

import "errors"

// Engine rejections. Every rejected mutation leaves the ledger unchanged
// except where noted on the operation.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTooEarly        = errors.New("market has not ended")
	ErrMarketClosed    = errors.New("market closed")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrNotResolved     = errors.New("market not resolved")
	ErrAlreadyClaimed  = errors.New("already claimed")
	ErrNothingToClaim  = errors.New("nothing to claim")
)

// Infrastructure errors.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
