package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// NativeToken is the payment-token sentinel representing the native currency.
var NativeToken = [20]byte{}

// Offer expirations must fall inside this window, measured from creation time.
const (
	MinOfferLifetime int64 = 60 * 60
	MaxOfferLifetime int64 = 30 * 24 * 60 * 60
)

// SaleKind distinguishes how a historical sale was settled.
type SaleKind uint8

const (
	SaleRegular SaleKind = iota
	SalePrivate
	SaleAcceptedOffer
)

// Valid reports whether the sale kind is within the supported range.
func (k SaleKind) Valid() bool {
	switch k {
	case SaleRegular, SalePrivate, SaleAcceptedOffer:
		return true
	default:
		return false
	}
}

func (k SaleKind) String() string {
	switch k {
	case SaleRegular:
		return "regular"
	case SalePrivate:
		return "private"
	case SaleAcceptedOffer:
		return "accepted_offer"
	default:
		return "unknown"
	}
}

// Listing is an active offer-to-sell created by a token's owner at a fixed
// price. At most one active listing exists per (collection, tokenID) key.
type Listing struct {
	Collection   [20]byte
	TokenID      *big.Int
	Seller       [20]byte
	Price        *big.Int
	PayToken     [20]byte
	ListedAt     int64
	ExpiresAt    int64
	PrivateBuyer [20]byte
	LedgerIndex  uint64
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.TokenID != nil {
		clone.TokenID = new(big.Int).Set(l.TokenID)
	} else {
		clone.TokenID = big.NewInt(0)
	}
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// Offer is an active offer-to-buy created by a prospective buyer, backed by
// funds locked in escrow. A bidder holds at most one active offer per token.
type Offer struct {
	Collection  [20]byte
	TokenID     *big.Int
	Bidder      [20]byte
	Amount      *big.Int
	PayToken    [20]byte
	CreatedAt   int64
	ExpiresAt   int64
	LedgerIndex uint64
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.TokenID != nil {
		clone.TokenID = new(big.Int).Set(o.TokenID)
	} else {
		clone.TokenID = big.NewInt(0)
	}
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil big.Int fields. The original is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	clone := l.Clone()
	if clone.TokenID.Sign() < 0 {
		return nil, fmt.Errorf("market: token id must be non-negative")
	}
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: listing price must be positive")
	}
	if clone.ExpiresAt != 0 && clone.ExpiresAt <= clone.ListedAt {
		return nil, fmt.Errorf("market: listing expiration precedes creation")
	}
	if clone.PrivateBuyer == clone.Seller && clone.PrivateBuyer != ([20]byte{}) {
		return nil, fmt.Errorf("market: private buyer equals seller")
	}
	return clone, nil
}

// SanitizeOffer validates and normalises the supplied offer, returning a
// cloned instance with non-nil big.Int fields. The original is not mutated.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("market: nil offer")
	}
	clone := o.Clone()
	if clone.TokenID.Sign() < 0 {
		return nil, fmt.Errorf("market: token id must be non-negative")
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("market: offer amount must be positive")
	}
	lifetime := clone.ExpiresAt - clone.CreatedAt
	if lifetime < MinOfferLifetime || lifetime > MaxOfferLifetime {
		return nil, fmt.Errorf("market: offer lifetime %ds outside allowed window", lifetime)
	}
	return clone, nil
}

// ItemKey derives the deterministic identifier for a (collection, tokenID)
// pair. Token ids are encoded as 32-byte big-endian words so the key matches
// regardless of the integer's byte length.
func ItemKey(collection [20]byte, tokenID *big.Int) [32]byte {
	word := tokenWord(tokenID)
	return ethcrypto.Keccak256Hash(collection[:], word[:])
}

// OfferKey derives the deterministic identifier for an offer, scoped to the
// bidder so each bidder owns an independent slot per token.
func OfferKey(collection [20]byte, tokenID *big.Int, bidder [20]byte) [32]byte {
	word := tokenWord(tokenID)
	return ethcrypto.Keccak256Hash(collection[:], word[:], bidder[:])
}

func tokenWord(tokenID *big.Int) [32]byte {
	var word [32]byte
	if tokenID == nil {
		return word
	}
	b := tokenID.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(word[32-len(b):], b)
	return word
}

func moduleAddress(tag string) [20]byte {
	hash := ethcrypto.Keccak256([]byte(tag))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// ModuleAddress identifies the engine as an operator towards the asset
// ownership provider; sellers grant transfer rights to this address.
var ModuleAddress = moduleAddress("market/module")

// EscrowVault is the account holding the native funds locked behind open
// offers until they are accepted, cancelled, or reclaimed.
var EscrowVault = moduleAddress("market/escrow-vault")
