package market

import "errors"

var (
	errNilState  = errors.New("market engine: state not configured")
	errNilLedger = errors.New("market engine: ledger not configured")
	errNilAssets = errors.New("market engine: ownership provider not configured")
)

// Precondition, temporal, conflict and payment violations surfaced by the
// engine. Each operation rejects before any mutation; callers receive the
// sentinel wrapped with the offending key.
var (
	ErrNotOwner                  = errors.New("market: caller does not own token")
	ErrNotApproved               = errors.New("market: module lacks transfer approval")
	ErrPriceZero                 = errors.New("market: price must be positive")
	ErrInvalidExpiration         = errors.New("market: expiration must be in the future")
	ErrCannotListForSelf         = errors.New("market: private buyer equals seller")
	ErrAlreadyListed             = errors.New("market: active listing exists")
	ErrNotSeller                 = errors.New("market: caller is not the seller")
	ErrListingNotFound           = errors.New("market: listing not found")
	ErrListingExpired            = errors.New("market: listing expired")
	ErrPrivateListingWrongBuyer  = errors.New("market: listing reserved for another buyer")
	ErrWrongPaymentAmount        = errors.New("market: payment does not match required amount")
	ErrSellerCannotBuyOwnListing = errors.New("market: seller cannot buy own listing")
	ErrAmountZero                = errors.New("market: offer amount must be positive")
	ErrInvalidExpirationWindow   = errors.New("market: offer expiration outside allowed window")
	ErrOfferAlreadyExists        = errors.New("market: active offer exists for bidder")
	ErrOwnerOfferOnListedItem    = errors.New("market: owner cannot offer on own listed token")
	// ErrOfferNotFound covers both a missing offer and an offer held by a
	// different bidder. Cancel and reclaim resolve offers by caller, so the
	// two cases surface identically.
	ErrOfferNotFound     = errors.New("market: no offer found for caller")
	ErrOfferExpired      = errors.New("market: offer expired")
	ErrOfferNotExpired   = errors.New("market: offer has not expired")
	ErrInsufficientFunds = errors.New("market: insufficient balance")
)
