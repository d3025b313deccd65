package market

import (
	"math/big"
)

// List creates an active listing for the caller's token. The caller must own
// the token and must have granted transfer rights to the module address. A
// stale expired listing under the same key is replaced; its ledger record is
// closed as cancelled.
func (e *Engine) List(caller [20]byte, collection [20]byte, tokenID *big.Int, price *big.Int, payToken [20]byte, expiresAt int64, privateBuyer [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var created *Listing
	err := e.run(func() error {
		owner, err := e.assets.OwnerOf(collection, tokenID)
		if err != nil {
			return err
		}
		if owner != caller {
			return ErrNotOwner
		}
		approved, err := e.assets.IsTransferApproved(collection, tokenID, ModuleAddress)
		if err != nil {
			return err
		}
		if !approved {
			return ErrNotApproved
		}
		if price == nil || price.Sign() <= 0 {
			return ErrPriceZero
		}
		now := e.now()
		if expiresAt != 0 && expiresAt <= now {
			return ErrInvalidExpiration
		}
		if privateBuyer != ([20]byte{}) && privateBuyer == caller {
			return ErrCannotListForSelf
		}
		existing, id, ok, err := e.activeListing(collection, tokenID)
		if err != nil {
			return err
		}
		if ok {
			if !listingExpired(existing, now) {
				return ErrAlreadyListed
			}
			// Lazy expiry: the stale listing gives way, its history closes.
			if err := e.state.MarketListingDelete(id); err != nil {
				return err
			}
			if err := e.ledger.MarkListingCancelled(existing.LedgerIndex, now); err != nil {
				return err
			}
		}
		listing := &Listing{
			Collection:   collection,
			TokenID:      tokenID,
			Seller:       caller,
			Price:        price,
			PayToken:     payToken,
			ListedAt:     now,
			ExpiresAt:    expiresAt,
			PrivateBuyer: privateBuyer,
		}
		sanitized, err := SanitizeListing(listing)
		if err != nil {
			return err
		}
		index, err := e.ledger.AppendListing(sanitized)
		if err != nil {
			return err
		}
		sanitized.LedgerIndex = index
		if err := e.state.MarketListingPut(id, sanitized); err != nil {
			return err
		}
		created = sanitized.Clone()
		e.emit(NewListingCreatedEvent(sanitized))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CancelListing removes the caller's active listing. Expired listings may
// still be cancelled by their seller.
func (e *Engine) CancelListing(caller [20]byte, collection [20]byte, tokenID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.run(func() error {
		listing, id, ok, err := e.activeListing(collection, tokenID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrListingNotFound
		}
		if listing.Seller != caller {
			return ErrNotSeller
		}
		if err := e.state.MarketListingDelete(id); err != nil {
			return err
		}
		if err := e.ledger.MarkListingCancelled(listing.LedgerIndex, e.now()); err != nil {
			return err
		}
		e.emit(NewListingCancelledEvent(listing))
		return nil
	})
}

// UpdatePrice mutates the price of the caller's active listing. Only the
// active record changes; the ledger entry keeps the original price.
func (e *Engine) UpdatePrice(caller [20]byte, collection [20]byte, tokenID *big.Int, newPrice *big.Int) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var updated *Listing
	err := e.run(func() error {
		listing, id, ok, err := e.activeListing(collection, tokenID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrListingNotFound
		}
		if listing.Seller != caller {
			return ErrNotSeller
		}
		if newPrice == nil || newPrice.Sign() <= 0 {
			return ErrPriceZero
		}
		listing.Price = new(big.Int).Set(newPrice)
		if err := e.state.MarketListingPut(id, listing); err != nil {
			return err
		}
		updated = listing.Clone()
		e.emit(NewListingPriceUpdatedEvent(listing))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetListing returns the active listing for the token, if any. Reads are not
// gated by the pause flag.
func (e *Engine) GetListing(collection [20]byte, tokenID *big.Int) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	listing, _, ok, err := e.activeListing(collection, tokenID)
	if err != nil || !ok {
		return nil, false, err
	}
	return listing.Clone(), true, nil
}
