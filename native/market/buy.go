package market

import (
	"fmt"
	"math/big"
)

// BuyItem identifies one listing inside a batched purchase.
type BuyItem struct {
	Collection [20]byte
	TokenID    *big.Int
}

// Buy settles a direct purchase of an active listing. The attached payment
// must equal the listing price exactly; the buyer's balance funds the seller,
// the fee recipient and the royalty recipient in one atomic step.
func (e *Engine) Buy(caller [20]byte, collection [20]byte, tokenID *big.Int, payment *big.Int) (*HistoricalSale, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var sale *HistoricalSale
	err := e.run(func() error {
		var err error
		sale, err = e.buyOne(caller, collection, tokenID, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// BuyBatch settles a list of direct purchases atomically. The attached
// payment must equal the sum of the listing prices; any single item's failure
// aborts the whole batch and reverts every prior item.
func (e *Engine) BuyBatch(caller [20]byte, items []BuyItem, payment *big.Int) ([]*HistoricalSale, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("market: empty batch")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var sales []*HistoricalSale
	err := e.run(func() error {
		total := big.NewInt(0)
		prices := make([]*big.Int, len(items))
		for i, item := range items {
			listing, _, ok, err := e.activeListing(item.Collection, item.TokenID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: batch item %d", ErrListingNotFound, i)
			}
			prices[i] = listing.Price
			total = total.Add(total, listing.Price)
		}
		if payment == nil || payment.Cmp(total) != 0 {
			return ErrWrongPaymentAmount
		}
		sales = make([]*HistoricalSale, 0, len(items))
		for i, item := range items {
			sale, err := e.buyOne(caller, item.Collection, item.TokenID, prices[i])
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			sales = append(sales, sale)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// buyOne validates and settles a single purchase. Callers hold the engine
// lock and an open snapshot.
func (e *Engine) buyOne(caller [20]byte, collection [20]byte, tokenID *big.Int, payment *big.Int) (*HistoricalSale, error) {
	listing, id, ok, err := e.activeListing(collection, tokenID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	now := e.now()
	if listingExpired(listing, now) {
		return nil, ErrListingExpired
	}
	// The seller falls through to the self-purchase error below even on a
	// private listing reserved for someone else.
	if listing.PrivateBuyer != ([20]byte{}) && caller != listing.PrivateBuyer && caller != listing.Seller {
		return nil, ErrPrivateListingWrongBuyer
	}
	if payment == nil || payment.Cmp(listing.Price) != 0 {
		return nil, ErrWrongPaymentAmount
	}
	if caller == listing.Seller {
		return nil, ErrSellerCannotBuyOwnListing
	}

	breakdown, err := e.quote(collection, listing.Seller, listing.Price)
	if err != nil {
		return nil, err
	}
	if err := e.settle(caller, listing.Seller, breakdown); err != nil {
		return nil, err
	}
	if err := e.assets.Transfer(collection, tokenID, listing.Seller, caller); err != nil {
		return nil, err
	}
	if err := e.state.MarketListingDelete(id); err != nil {
		return nil, err
	}
	if err := e.ledger.MarkListingSold(listing.LedgerIndex, now); err != nil {
		return nil, err
	}
	kind := SaleRegular
	if listing.PrivateBuyer != ([20]byte{}) {
		kind = SalePrivate
	}
	sale := &HistoricalSale{
		Collection:       collection,
		TokenID:          bigOrZero(tokenID),
		Seller:           listing.Seller,
		Buyer:            caller,
		Price:            bigOrZero(listing.Price),
		PayToken:         listing.PayToken,
		Fee:              breakdown.Fee,
		Royalty:          breakdown.Royalty,
		RoyaltyRecipient: breakdown.RoyaltyRecipient,
		Kind:             kind,
		SoldAt:           now,
		ListingIndex:     listing.LedgerIndex,
	}
	index, err := e.ledger.AppendSale(sale)
	if err != nil {
		return nil, err
	}
	sale.Index = index
	e.emit(NewSoldEvent(sale))
	return sale, nil
}
