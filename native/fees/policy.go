package fees

import (
	"fmt"
	"math/big"
)

// BpsDenominator is the basis-point scale: 10_000 bps = 100%.
const BpsDenominator = 10_000

// RoyaltyLookup resolves the royalty obligation for a collection at a given
// sale price. Implementations typically consult per-collection policy stored
// alongside the asset registry.
type RoyaltyLookup interface {
	RoyaltyInfo(collection [20]byte, salePrice *big.Int) (amount *big.Int, recipient [20]byte, err error)
}

// QuoteInput captures the context required to evaluate the payout split for a
// single sale.
type QuoteInput struct {
	Price            *big.Int
	FeeBps           uint32
	Collection       [20]byte
	RoyaltiesEnabled bool
	Lookup           RoyaltyLookup
}

// Breakdown is the resolved payout split. The parts always sum to the price:
// Fee + Royalty + SellerProceeds == Price.
type Breakdown struct {
	Fee              *big.Int
	Royalty          *big.Int
	RoyaltyRecipient [20]byte
	SellerProceeds   *big.Int
}

// Quote computes the protocol fee and royalty for a sale. The fee is
// price*bps/10000 rounded down. Royalty is zero when disabled; otherwise the
// lookup's answer is capped so fee plus royalty never exceed the price.
func Quote(input QuoteInput) (*Breakdown, error) {
	if input.Price == nil || input.Price.Sign() <= 0 {
		return nil, fmt.Errorf("fees: price must be positive")
	}
	if input.FeeBps > BpsDenominator {
		return nil, fmt.Errorf("fees: fee bps %d exceeds %d", input.FeeBps, BpsDenominator)
	}
	price := new(big.Int).Set(input.Price)

	fee := new(big.Int).Mul(price, big.NewInt(int64(input.FeeBps)))
	fee = fee.Div(fee, big.NewInt(BpsDenominator))

	breakdown := &Breakdown{
		Fee:     fee,
		Royalty: big.NewInt(0),
	}
	if input.RoyaltiesEnabled && input.Lookup != nil {
		amount, recipient, err := input.Lookup.RoyaltyInfo(input.Collection, price)
		if err != nil {
			return nil, fmt.Errorf("fees: royalty lookup: %w", err)
		}
		if amount != nil && amount.Sign() > 0 && recipient != ([20]byte{}) {
			royalty := new(big.Int).Set(amount)
			headroom := new(big.Int).Sub(price, fee)
			if royalty.Cmp(headroom) > 0 {
				royalty = headroom
			}
			if royalty.Sign() > 0 {
				breakdown.Royalty = royalty
				breakdown.RoyaltyRecipient = recipient
			}
		}
	}
	proceeds := new(big.Int).Sub(price, breakdown.Fee)
	proceeds = proceeds.Sub(proceeds, breakdown.Royalty)
	breakdown.SellerProceeds = proceeds
	return breakdown, nil
}

// StaticRoyalty is a RoyaltyLookup applying the same basis-point rate and
// recipient to every collection. Useful for tests and single-collection
// deployments.
type StaticRoyalty struct {
	Bps       uint32
	Recipient [20]byte
}

// RoyaltyInfo implements RoyaltyLookup.
func (s StaticRoyalty) RoyaltyInfo(_ [20]byte, salePrice *big.Int) (*big.Int, [20]byte, error) {
	if salePrice == nil || salePrice.Sign() <= 0 || s.Bps == 0 {
		return big.NewInt(0), s.Recipient, nil
	}
	amount := new(big.Int).Mul(salePrice, big.NewInt(int64(s.Bps)))
	amount = amount.Div(amount, big.NewInt(BpsDenominator))
	return amount, s.Recipient, nil
}
