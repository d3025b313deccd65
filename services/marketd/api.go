package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"nftmarket/native/market"
)

// Wire types for the HTTP surface. Addresses travel as 0x-prefixed hex,
// amounts and token ids as decimal strings so precision survives JSON.

type listRequest struct {
	Caller       string `json:"caller"`
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	Price        string `json:"price"`
	PaymentToken string `json:"paymentToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	PrivateBuyer string `json:"privateBuyer,omitempty"`
}

type cancelListingRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
}

type updatePriceRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	NewPrice   string `json:"newPrice"`
}

type buyRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Payment    string `json:"payment"`
}

type buyBatchItem struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
}

type buyBatchRequest struct {
	Caller  string         `json:"caller"`
	Items   []buyBatchItem `json:"items"`
	Payment string         `json:"payment"`
}

type makeOfferRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Amount     string `json:"amount"`
	Payment    string `json:"payment"`
	ExpiresAt  int64  `json:"expiresAt"`
}

type offerActionRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Bidder     string `json:"bidder,omitempty"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type mintRequest struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Owner      string `json:"owner"`
}

type approveRequest struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Operator   string `json:"operator"`
}

type royaltyRequest struct {
	Collection string `json:"collection"`
	Bps        uint32 `json:"bps"`
	Recipient  string `json:"recipient"`
}

type listingPayload struct {
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	Seller       string `json:"seller"`
	Price        string `json:"price"`
	PaymentToken string `json:"paymentToken"`
	ListedAt     int64  `json:"listedAt"`
	ExpiresAt    int64  `json:"expiresAt"`
	PrivateBuyer string `json:"privateBuyer,omitempty"`
	LedgerIndex  uint64 `json:"ledgerIndex"`
}

type offerPayload struct {
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	Bidder       string `json:"bidder"`
	Amount       string `json:"amount"`
	PaymentToken string `json:"paymentToken"`
	CreatedAt    int64  `json:"createdAt"`
	ExpiresAt    int64  `json:"expiresAt"`
	LedgerIndex  uint64 `json:"ledgerIndex"`
}

type salePayload struct {
	Index            uint64 `json:"index"`
	Collection       string `json:"collection"`
	TokenID          string `json:"tokenId"`
	Seller           string `json:"seller"`
	Buyer            string `json:"buyer"`
	Price            string `json:"price"`
	PaymentToken     string `json:"paymentToken"`
	Fee              string `json:"fee"`
	Royalty          string `json:"royaltyAmount"`
	RoyaltyRecipient string `json:"royaltyRecipient,omitempty"`
	SaleType         string `json:"saleType"`
	SoldAt           int64  `json:"soldAt"`
	ListingIndex     uint64 `json:"listingIndex,omitempty"`
	OfferIndex       uint64 `json:"offerIndex,omitempty"`
}

type historicalListingPayload struct {
	Index        uint64 `json:"index"`
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	Seller       string `json:"seller"`
	Price        string `json:"price"`
	PaymentToken string `json:"paymentToken"`
	ListedAt     int64  `json:"listedAt"`
	ExpiresAt    int64  `json:"expiresAt"`
	PrivateBuyer string `json:"privateBuyer,omitempty"`
	Status       string `json:"status"`
	ClosedAt     int64  `json:"closedAt,omitempty"`
}

type historicalOfferPayload struct {
	Index        uint64 `json:"index"`
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	Bidder       string `json:"bidder"`
	Amount       string `json:"amount"`
	PaymentToken string `json:"paymentToken"`
	CreatedAt    int64  `json:"createdAt"`
	ExpiresAt    int64  `json:"expiresAt"`
	Status       string `json:"status"`
	ClosedAt     int64  `json:"closedAt,omitempty"`
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("empty address")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseOptionalAddress(raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	return parseAddress(raw)
}

func parseAmount(raw, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a decimal integer", field)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%s must be non-negative", field)
	}
	return value, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatOptionalAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return formatAddress(addr)
}

func listingToPayload(l *market.Listing) *listingPayload {
	if l == nil {
		return nil
	}
	return &listingPayload{
		Collection:   formatAddress(l.Collection),
		TokenID:      l.TokenID.String(),
		Seller:       formatAddress(l.Seller),
		Price:        l.Price.String(),
		PaymentToken: formatAddress(l.PayToken),
		ListedAt:     l.ListedAt,
		ExpiresAt:    l.ExpiresAt,
		PrivateBuyer: formatOptionalAddress(l.PrivateBuyer),
		LedgerIndex:  l.LedgerIndex,
	}
}

func offerToPayload(o *market.Offer) *offerPayload {
	if o == nil {
		return nil
	}
	return &offerPayload{
		Collection:   formatAddress(o.Collection),
		TokenID:      o.TokenID.String(),
		Bidder:       formatAddress(o.Bidder),
		Amount:       o.Amount.String(),
		PaymentToken: formatAddress(o.PayToken),
		CreatedAt:    o.CreatedAt,
		ExpiresAt:    o.ExpiresAt,
		LedgerIndex:  o.LedgerIndex,
	}
}

func saleToPayload(s *market.HistoricalSale) *salePayload {
	if s == nil {
		return nil
	}
	return &salePayload{
		Index:            s.Index,
		Collection:       formatAddress(s.Collection),
		TokenID:          s.TokenID.String(),
		Seller:           formatAddress(s.Seller),
		Buyer:            formatAddress(s.Buyer),
		Price:            s.Price.String(),
		PaymentToken:     formatAddress(s.PayToken),
		Fee:              s.Fee.String(),
		Royalty:          s.Royalty.String(),
		RoyaltyRecipient: formatOptionalAddress(s.RoyaltyRecipient),
		SaleType:         s.Kind.String(),
		SoldAt:           s.SoldAt,
		ListingIndex:     s.ListingIndex,
		OfferIndex:       s.OfferIndex,
	}
}

func historicalListingToPayload(l *market.HistoricalListing) *historicalListingPayload {
	if l == nil {
		return nil
	}
	return &historicalListingPayload{
		Index:        l.Index,
		Collection:   formatAddress(l.Collection),
		TokenID:      l.TokenID.String(),
		Seller:       formatAddress(l.Seller),
		Price:        l.Price.String(),
		PaymentToken: formatAddress(l.PayToken),
		ListedAt:     l.ListedAt,
		ExpiresAt:    l.ExpiresAt,
		PrivateBuyer: formatOptionalAddress(l.PrivateBuyer),
		Status:       listingStatusString(l.Status),
		ClosedAt:     l.ClosedAt,
	}
}

func historicalOfferToPayload(o *market.HistoricalOffer) *historicalOfferPayload {
	if o == nil {
		return nil
	}
	return &historicalOfferPayload{
		Index:        o.Index,
		Collection:   formatAddress(o.Collection),
		TokenID:      o.TokenID.String(),
		Bidder:       formatAddress(o.Bidder),
		Amount:       o.Amount.String(),
		PaymentToken: formatAddress(o.PayToken),
		CreatedAt:    o.CreatedAt,
		ExpiresAt:    o.ExpiresAt,
		Status:       offerStatusString(o.Status),
		ClosedAt:     o.ClosedAt,
	}
}

func listingStatusString(status market.ListingStatus) string {
	switch status {
	case market.ListingActive:
		return "active"
	case market.ListingSold:
		return "sold"
	case market.ListingCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func offerStatusString(status market.OfferStatus) string {
	switch status {
	case market.OfferActive:
		return "active"
	case market.OfferAccepted:
		return "accepted"
	case market.OfferCancelled:
		return "cancelled"
	case market.OfferExpiredReclaimed:
		return "expired_reclaimed"
	default:
		return "unknown"
	}
}
