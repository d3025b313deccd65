package state

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/native/market"
)

// Market record storage backing the trading engine. Active listings and
// offers are keyed by their deterministic item identifiers; the escrow book
// tracks per-bidder locked value and never goes negative.
const (
	listingPrefix = "market/listing/"
	offerPrefix   = "market/offer/"
	escrowPrefix  = "market/escrow/"
)

type storedListing struct {
	Collection   [20]byte
	TokenID      *big.Int
	Seller       [20]byte
	Price        *big.Int
	PayToken     [20]byte
	ListedAt     uint64
	ExpiresAt    uint64
	PrivateBuyer [20]byte
	LedgerIndex  uint64
}

type storedOffer struct {
	Collection  [20]byte
	TokenID     *big.Int
	Bidder      [20]byte
	Amount      *big.Int
	PayToken    [20]byte
	CreatedAt   uint64
	ExpiresAt   uint64
	LedgerIndex uint64
}

func listingKey(id [32]byte) []byte {
	return []byte(listingPrefix + hex.EncodeToString(id[:]))
}

func offerKey(id [32]byte) []byte {
	return []byte(offerPrefix + hex.EncodeToString(id[:]))
}

func escrowKey(addr [20]byte) []byte {
	return []byte(escrowPrefix + hex.EncodeToString(addr[:]))
}

// MarketListingGet loads the active listing stored under the item id.
func (m *Manager) MarketListingGet(id [32]byte) (*market.Listing, bool, error) {
	raw, ok, err := m.KVGet(listingKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedListing
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode listing: %w", err)
	}
	listing := &market.Listing{
		Collection:   stored.Collection,
		TokenID:      stored.TokenID,
		Seller:       stored.Seller,
		Price:        stored.Price,
		PayToken:     stored.PayToken,
		ListedAt:     int64(stored.ListedAt),
		ExpiresAt:    int64(stored.ExpiresAt),
		PrivateBuyer: stored.PrivateBuyer,
		LedgerIndex:  stored.LedgerIndex,
	}
	return listing.Clone(), true, nil
}

// MarketListingPut stores the active listing under the item id.
func (m *Manager) MarketListingPut(id [32]byte, listing *market.Listing) error {
	sanitized, err := market.SanitizeListing(listing)
	if err != nil {
		return err
	}
	listedAt, err := unsignedTime(sanitized.ListedAt, "listedAt")
	if err != nil {
		return err
	}
	expiresAt, err := unsignedTime(sanitized.ExpiresAt, "expiresAt")
	if err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(&storedListing{
		Collection:   sanitized.Collection,
		TokenID:      sanitized.TokenID,
		Seller:       sanitized.Seller,
		Price:        sanitized.Price,
		PayToken:     sanitized.PayToken,
		ListedAt:     listedAt,
		ExpiresAt:    expiresAt,
		PrivateBuyer: sanitized.PrivateBuyer,
		LedgerIndex:  sanitized.LedgerIndex,
	})
	if err != nil {
		return err
	}
	return m.KVPut(listingKey(id), raw)
}

// MarketListingDelete removes the active listing under the item id.
func (m *Manager) MarketListingDelete(id [32]byte) error {
	return m.KVDelete(listingKey(id))
}

// MarketOfferGet loads the active offer stored under the offer id.
func (m *Manager) MarketOfferGet(id [32]byte) (*market.Offer, bool, error) {
	raw, ok, err := m.KVGet(offerKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var stored storedOffer
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode offer: %w", err)
	}
	offer := &market.Offer{
		Collection:  stored.Collection,
		TokenID:     stored.TokenID,
		Bidder:      stored.Bidder,
		Amount:      stored.Amount,
		PayToken:    stored.PayToken,
		CreatedAt:   int64(stored.CreatedAt),
		ExpiresAt:   int64(stored.ExpiresAt),
		LedgerIndex: stored.LedgerIndex,
	}
	return offer.Clone(), true, nil
}

// MarketOfferPut stores the active offer under the offer id.
func (m *Manager) MarketOfferPut(id [32]byte, offer *market.Offer) error {
	sanitized, err := market.SanitizeOffer(offer)
	if err != nil {
		return err
	}
	createdAt, err := unsignedTime(sanitized.CreatedAt, "createdAt")
	if err != nil {
		return err
	}
	expiresAt, err := unsignedTime(sanitized.ExpiresAt, "expiresAt")
	if err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(&storedOffer{
		Collection:  sanitized.Collection,
		TokenID:     sanitized.TokenID,
		Bidder:      sanitized.Bidder,
		Amount:      sanitized.Amount,
		PayToken:    sanitized.PayToken,
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
		LedgerIndex: sanitized.LedgerIndex,
	})
	if err != nil {
		return err
	}
	return m.KVPut(offerKey(id), raw)
}

// MarketOfferDelete removes the active offer under the offer id.
func (m *Manager) MarketOfferDelete(id [32]byte) error {
	return m.KVDelete(offerKey(id))
}

// MarketEscrowBalance returns the bidder's locked balance. Unknown bidders
// hold zero.
func (m *Manager) MarketEscrowBalance(addr [20]byte) (*big.Int, error) {
	raw, ok, err := m.KVGet(escrowKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(raw, balance); err != nil {
		return nil, fmt.Errorf("state: decode escrow balance: %w", err)
	}
	return balance, nil
}

// MarketEscrowCredit adds to the bidder's locked balance.
func (m *Manager) MarketEscrowCredit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: escrow credit must be positive")
	}
	balance, err := m.MarketEscrowBalance(addr)
	if err != nil {
		return err
	}
	balance = balance.Add(balance, amount)
	raw, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return m.KVPut(escrowKey(addr), raw)
}

// MarketEscrowDebit removes from the bidder's locked balance. Debits beyond
// the current balance fail; a balance reaching zero clears the entry.
func (m *Manager) MarketEscrowDebit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: escrow debit must be positive")
	}
	balance, err := m.MarketEscrowBalance(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow debit exceeds balance")
	}
	balance = balance.Sub(balance, amount)
	if balance.Sign() == 0 {
		return m.KVDelete(escrowKey(addr))
	}
	raw, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return m.KVPut(escrowKey(addr), raw)
}

func unsignedTime(ts int64, field string) (uint64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("state: %s is negative", field)
	}
	return uint64(ts), nil
}
