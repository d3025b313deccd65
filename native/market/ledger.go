package market

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// Ledger status values. Transitions are one-way: once a record leaves Active
// it never changes again.
type ListingStatus uint8

const (
	ListingActive ListingStatus = iota
	ListingSold
	ListingCancelled
)

type OfferStatus uint8

const (
	OfferActive OfferStatus = iota
	OfferAccepted
	OfferCancelled
	OfferExpiredReclaimed
)

// LedgerStore is the key-value surface the ledger persists through.
type LedgerStore interface {
	KVGet(key []byte) ([]byte, bool, error)
	KVPut(key, value []byte) error
}

// HistoricalListing is the append-only record of a listing. It survives the
// deletion of the active listing and tracks the outcome.
type HistoricalListing struct {
	Index        uint64
	Collection   [20]byte
	TokenID      *big.Int
	Seller       [20]byte
	Price        *big.Int
	PayToken     [20]byte
	ListedAt     int64
	ExpiresAt    int64
	PrivateBuyer [20]byte
	Status       ListingStatus
	ClosedAt     int64
}

// HistoricalOffer is the append-only record of an offer and its outcome.
type HistoricalOffer struct {
	Index      uint64
	Collection [20]byte
	TokenID    *big.Int
	Bidder     [20]byte
	Amount     *big.Int
	PayToken   [20]byte
	CreatedAt  int64
	ExpiresAt  int64
	Status     OfferStatus
	ClosedAt   int64
}

// HistoricalSale is the append-only record of a settled trade, including the
// full fee and royalty breakdown. ListingIndex and OfferIndex reference the
// ledger entries that produced the sale; zero means not applicable.
type HistoricalSale struct {
	Index            uint64
	Collection       [20]byte
	TokenID          *big.Int
	Seller           [20]byte
	Buyer            [20]byte
	Price            *big.Int
	PayToken         [20]byte
	Fee              *big.Int
	Royalty          *big.Int
	RoyaltyRecipient [20]byte
	Kind             SaleKind
	SoldAt           int64
	ListingIndex     uint64
	OfferIndex       uint64
}

// rlp requires unsigned integers, so timestamps are stored as uint64 and
// converted at the boundary. Negative timestamps are rejected on write.
type storedListing struct {
	Collection   [20]byte
	TokenID      *big.Int
	Seller       [20]byte
	Price        *big.Int
	PayToken     [20]byte
	ListedAt     uint64
	ExpiresAt    uint64
	PrivateBuyer [20]byte
	Status       uint8
	ClosedAt     uint64
}

type storedOffer struct {
	Collection [20]byte
	TokenID    *big.Int
	Bidder     [20]byte
	Amount     *big.Int
	PayToken   [20]byte
	CreatedAt  uint64
	ExpiresAt  uint64
	Status     uint8
	ClosedAt   uint64
}

type storedSale struct {
	Collection       [20]byte
	TokenID          *big.Int
	Seller           [20]byte
	Buyer            [20]byte
	Price            *big.Int
	PayToken         [20]byte
	Fee              *big.Int
	Royalty          *big.Int
	RoyaltyRecipient [20]byte
	Kind             uint8
	SoldAt           uint64
	ListingIndex     uint64
	OfferIndex       uint64
}

const (
	ledgerListingPrefix = "market/ledger/listings/"
	ledgerOfferPrefix   = "market/ledger/offers/"
	ledgerSalePrefix    = "market/ledger/sales/"
)

// Ledger is the append-only history of listings, offers and sales. Records
// are addressed by a 1-based monotonic index per record kind; the counter is
// stored under <prefix>count and never decreases.
type Ledger struct {
	store LedgerStore
}

// NewLedger constructs a ledger over the supplied store.
func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) ready() error {
	if l == nil || l.store == nil {
		return errNilLedger
	}
	return nil
}

func ledgerCountKey(prefix string) []byte {
	return []byte(prefix + "count")
}

func ledgerRecordKey(prefix string, index uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], index)
	return key
}

func (l *Ledger) count(prefix string) (uint64, error) {
	raw, ok, err := l.store.KVGet(ledgerCountKey(prefix))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var count uint64
	if err := rlp.DecodeBytes(raw, &count); err != nil {
		return 0, fmt.Errorf("market ledger: decode counter: %w", err)
	}
	return count, nil
}

func (l *Ledger) bump(prefix string) (uint64, error) {
	count, err := l.count(prefix)
	if err != nil {
		return 0, err
	}
	next := count + 1
	raw, err := rlp.EncodeToBytes(next)
	if err != nil {
		return 0, err
	}
	if err := l.store.KVPut(ledgerCountKey(prefix), raw); err != nil {
		return 0, err
	}
	return next, nil
}

func checkedTimestamp(ts int64, field string) (uint64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("market ledger: %s is negative", field)
	}
	return uint64(ts), nil
}

// AppendListing records a new listing and returns its 1-based index. The
// record starts in Active state.
func (l *Ledger) AppendListing(listing *Listing) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return 0, err
	}
	listedAt, err := checkedTimestamp(sanitized.ListedAt, "listedAt")
	if err != nil {
		return 0, err
	}
	expiresAt, err := checkedTimestamp(sanitized.ExpiresAt, "expiresAt")
	if err != nil {
		return 0, err
	}
	index, err := l.bump(ledgerListingPrefix)
	if err != nil {
		return 0, err
	}
	stored := storedListing{
		Collection:   sanitized.Collection,
		TokenID:      sanitized.TokenID,
		Seller:       sanitized.Seller,
		Price:        sanitized.Price,
		PayToken:     sanitized.PayToken,
		ListedAt:     listedAt,
		ExpiresAt:    expiresAt,
		PrivateBuyer: sanitized.PrivateBuyer,
		Status:       uint8(ListingActive),
	}
	if err := l.putListing(index, &stored); err != nil {
		return 0, err
	}
	return index, nil
}

// AppendOffer records a new offer and returns its 1-based index.
func (l *Ledger) AppendOffer(offer *Offer) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return 0, err
	}
	createdAt, err := checkedTimestamp(sanitized.CreatedAt, "createdAt")
	if err != nil {
		return 0, err
	}
	expiresAt, err := checkedTimestamp(sanitized.ExpiresAt, "expiresAt")
	if err != nil {
		return 0, err
	}
	index, err := l.bump(ledgerOfferPrefix)
	if err != nil {
		return 0, err
	}
	stored := storedOffer{
		Collection: sanitized.Collection,
		TokenID:    sanitized.TokenID,
		Bidder:     sanitized.Bidder,
		Amount:     sanitized.Amount,
		PayToken:   sanitized.PayToken,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
		Status:     uint8(OfferActive),
	}
	if err := l.putOffer(index, &stored); err != nil {
		return 0, err
	}
	return index, nil
}

// AppendSale records a settled trade and returns its 1-based index. Sales are
// terminal records and carry no status.
func (l *Ledger) AppendSale(sale *HistoricalSale) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	if sale == nil {
		return 0, fmt.Errorf("market ledger: nil sale")
	}
	if !sale.Kind.Valid() {
		return 0, fmt.Errorf("market ledger: invalid sale kind %d", sale.Kind)
	}
	soldAt, err := checkedTimestamp(sale.SoldAt, "soldAt")
	if err != nil {
		return 0, err
	}
	index, err := l.bump(ledgerSalePrefix)
	if err != nil {
		return 0, err
	}
	stored := storedSale{
		Collection:       sale.Collection,
		TokenID:          bigOrZero(sale.TokenID),
		Seller:           sale.Seller,
		Buyer:            sale.Buyer,
		Price:            bigOrZero(sale.Price),
		PayToken:         sale.PayToken,
		Fee:              bigOrZero(sale.Fee),
		Royalty:          bigOrZero(sale.Royalty),
		RoyaltyRecipient: sale.RoyaltyRecipient,
		Kind:             uint8(sale.Kind),
		SoldAt:           soldAt,
		ListingIndex:     sale.ListingIndex,
		OfferIndex:       sale.OfferIndex,
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return 0, err
	}
	if err := l.store.KVPut(ledgerRecordKey(ledgerSalePrefix, index), raw); err != nil {
		return 0, err
	}
	return index, nil
}

// MarkListingSold transitions a ledger listing from Active to Sold.
func (l *Ledger) MarkListingSold(index uint64, closedAt int64) error {
	return l.closeListing(index, ListingSold, closedAt)
}

// MarkListingCancelled transitions a ledger listing from Active to Cancelled.
func (l *Ledger) MarkListingCancelled(index uint64, closedAt int64) error {
	return l.closeListing(index, ListingCancelled, closedAt)
}

func (l *Ledger) closeListing(index uint64, status ListingStatus, closedAt int64) error {
	if err := l.ready(); err != nil {
		return err
	}
	stored, err := l.getListing(index)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("market ledger: listing %d not found", index)
	}
	if ListingStatus(stored.Status) != ListingActive {
		return fmt.Errorf("market ledger: listing %d already closed", index)
	}
	ts, err := checkedTimestamp(closedAt, "closedAt")
	if err != nil {
		return err
	}
	stored.Status = uint8(status)
	stored.ClosedAt = ts
	return l.putListing(index, stored)
}

// MarkOfferAccepted transitions a ledger offer from Active to Accepted.
func (l *Ledger) MarkOfferAccepted(index uint64, closedAt int64) error {
	return l.closeOffer(index, OfferAccepted, closedAt)
}

// MarkOfferCancelled transitions a ledger offer from Active to Cancelled.
func (l *Ledger) MarkOfferCancelled(index uint64, closedAt int64) error {
	return l.closeOffer(index, OfferCancelled, closedAt)
}

// MarkOfferReclaimed transitions a ledger offer from Active to
// ExpiredReclaimed after the escrow behind it has been returned.
func (l *Ledger) MarkOfferReclaimed(index uint64, closedAt int64) error {
	return l.closeOffer(index, OfferExpiredReclaimed, closedAt)
}

func (l *Ledger) closeOffer(index uint64, status OfferStatus, closedAt int64) error {
	if err := l.ready(); err != nil {
		return err
	}
	stored, err := l.getOffer(index)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("market ledger: offer %d not found", index)
	}
	if OfferStatus(stored.Status) != OfferActive {
		return fmt.Errorf("market ledger: offer %d already closed", index)
	}
	ts, err := checkedTimestamp(closedAt, "closedAt")
	if err != nil {
		return err
	}
	stored.Status = uint8(status)
	stored.ClosedAt = ts
	return l.putOffer(index, stored)
}

// ListingCount returns the number of listing records ever appended.
func (l *Ledger) ListingCount() (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.count(ledgerListingPrefix)
}

// OfferCount returns the number of offer records ever appended.
func (l *Ledger) OfferCount() (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.count(ledgerOfferPrefix)
}

// SaleCount returns the number of sale records ever appended.
func (l *Ledger) SaleCount() (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.count(ledgerSalePrefix)
}

// GetListing loads the ledger listing at the given 1-based index.
func (l *Ledger) GetListing(index uint64) (*HistoricalListing, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	stored, err := l.getListing(index)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("market ledger: listing %d not found", index)
	}
	return historicalListing(index, stored), nil
}

// GetOffer loads the ledger offer at the given 1-based index.
func (l *Ledger) GetOffer(index uint64) (*HistoricalOffer, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	stored, err := l.getOffer(index)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("market ledger: offer %d not found", index)
	}
	return historicalOffer(index, stored), nil
}

// GetSale loads the ledger sale at the given 1-based index.
func (l *Ledger) GetSale(index uint64) (*HistoricalSale, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	raw, ok, err := l.store.KVGet(ledgerRecordKey(ledgerSalePrefix, index))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("market ledger: sale %d not found", index)
	}
	var stored storedSale
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("market ledger: decode sale %d: %w", index, err)
	}
	return historicalSale(index, &stored), nil
}

// ListingsRange returns up to limit listing records starting at the 1-based
// index. Reads past the end of the ledger return the available suffix.
func (l *Ledger) ListingsRange(start uint64, limit int) ([]*HistoricalListing, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	count, err := l.count(ledgerListingPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*HistoricalListing, 0, limit)
	for index := max64(start, 1); index <= count && len(out) < limit; index++ {
		stored, err := l.getListing(index)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, fmt.Errorf("market ledger: listing %d missing below counter", index)
		}
		out = append(out, historicalListing(index, stored))
	}
	return out, nil
}

// OffersRange returns up to limit offer records starting at the 1-based index.
func (l *Ledger) OffersRange(start uint64, limit int) ([]*HistoricalOffer, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	count, err := l.count(ledgerOfferPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*HistoricalOffer, 0, limit)
	for index := max64(start, 1); index <= count && len(out) < limit; index++ {
		stored, err := l.getOffer(index)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, fmt.Errorf("market ledger: offer %d missing below counter", index)
		}
		out = append(out, historicalOffer(index, stored))
	}
	return out, nil
}

// SalesRange returns up to limit sale records starting at the 1-based index.
func (l *Ledger) SalesRange(start uint64, limit int) ([]*HistoricalSale, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	count, err := l.count(ledgerSalePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*HistoricalSale, 0, limit)
	for index := max64(start, 1); index <= count && len(out) < limit; index++ {
		sale, err := l.GetSale(index)
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, nil
}

func (l *Ledger) getListing(index uint64) (*storedListing, error) {
	raw, ok, err := l.store.KVGet(ledgerRecordKey(ledgerListingPrefix, index))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var stored storedListing
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("market ledger: decode listing %d: %w", index, err)
	}
	return &stored, nil
}

func (l *Ledger) putListing(index uint64, stored *storedListing) error {
	raw, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return l.store.KVPut(ledgerRecordKey(ledgerListingPrefix, index), raw)
}

func (l *Ledger) getOffer(index uint64) (*storedOffer, error) {
	raw, ok, err := l.store.KVGet(ledgerRecordKey(ledgerOfferPrefix, index))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var stored storedOffer
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("market ledger: decode offer %d: %w", index, err)
	}
	return &stored, nil
}

func (l *Ledger) putOffer(index uint64, stored *storedOffer) error {
	raw, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return l.store.KVPut(ledgerRecordKey(ledgerOfferPrefix, index), raw)
}

func historicalListing(index uint64, stored *storedListing) *HistoricalListing {
	return &HistoricalListing{
		Index:        index,
		Collection:   stored.Collection,
		TokenID:      bigOrZero(stored.TokenID),
		Seller:       stored.Seller,
		Price:        bigOrZero(stored.Price),
		PayToken:     stored.PayToken,
		ListedAt:     int64(stored.ListedAt),
		ExpiresAt:    int64(stored.ExpiresAt),
		PrivateBuyer: stored.PrivateBuyer,
		Status:       ListingStatus(stored.Status),
		ClosedAt:     int64(stored.ClosedAt),
	}
}

func historicalOffer(index uint64, stored *storedOffer) *HistoricalOffer {
	return &HistoricalOffer{
		Index:      index,
		Collection: stored.Collection,
		TokenID:    bigOrZero(stored.TokenID),
		Bidder:     stored.Bidder,
		Amount:     bigOrZero(stored.Amount),
		PayToken:   stored.PayToken,
		CreatedAt:  int64(stored.CreatedAt),
		ExpiresAt:  int64(stored.ExpiresAt),
		Status:     OfferStatus(stored.Status),
		ClosedAt:   int64(stored.ClosedAt),
	}
}

func historicalSale(index uint64, stored *storedSale) *HistoricalSale {
	return &HistoricalSale{
		Index:            index,
		Collection:       stored.Collection,
		TokenID:          bigOrZero(stored.TokenID),
		Seller:           stored.Seller,
		Buyer:            stored.Buyer,
		Price:            bigOrZero(stored.Price),
		PayToken:         stored.PayToken,
		Fee:              bigOrZero(stored.Fee),
		Royalty:          bigOrZero(stored.Royalty),
		RoyaltyRecipient: stored.RoyaltyRecipient,
		Kind:             SaleKind(stored.Kind),
		SoldAt:           int64(stored.SoldAt),
		ListingIndex:     stored.ListingIndex,
		OfferIndex:       stored.OfferIndex,
	}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
