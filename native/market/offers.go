package market

import (
	"math/big"
)

// MakeOffer locks the attached payment in escrow and records an active offer.
// The payment must equal the offer amount exactly and the expiration must lie
// within the allowed window measured from the current time.
func (e *Engine) MakeOffer(caller [20]byte, collection [20]byte, tokenID *big.Int, amount *big.Int, payment *big.Int, expiresAt int64) (*Offer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var created *Offer
	err := e.run(func() error {
		if amount == nil || amount.Sign() <= 0 {
			return ErrAmountZero
		}
		if payment == nil || payment.Cmp(amount) != 0 {
			return ErrWrongPaymentAmount
		}
		now := e.now()
		lifetime := expiresAt - now
		if lifetime < MinOfferLifetime || lifetime > MaxOfferLifetime {
			return ErrInvalidExpirationWindow
		}
		key := OfferKey(collection, tokenID, caller)
		if _, ok, err := e.state.MarketOfferGet(key); err != nil {
			return err
		} else if ok {
			return ErrOfferAlreadyExists
		}
		// Owners may offer on their own unlisted tokens; an active listing
		// makes the offer self-dealing.
		owner, err := e.assets.OwnerOf(collection, tokenID)
		if err != nil {
			return err
		}
		if owner == caller {
			listing, _, ok, err := e.activeListing(collection, tokenID)
			if err != nil {
				return err
			}
			if ok && !listingExpired(listing, now) {
				return ErrOwnerOfferOnListedItem
			}
		}
		if err := e.lockEscrow(caller, amount); err != nil {
			return err
		}
		offer := &Offer{
			Collection: collection,
			TokenID:    tokenID,
			Bidder:     caller,
			Amount:     amount,
			PayToken:   NativeToken,
			CreatedAt:  now,
			ExpiresAt:  expiresAt,
		}
		sanitized, err := SanitizeOffer(offer)
		if err != nil {
			return err
		}
		index, err := e.ledger.AppendOffer(sanitized)
		if err != nil {
			return err
		}
		sanitized.LedgerIndex = index
		if err := e.state.MarketOfferPut(key, sanitized); err != nil {
			return err
		}
		created = sanitized.Clone()
		e.emit(NewOfferCreatedEvent(sanitized))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CancelOffer withdraws the caller's active offer and releases its escrow in
// full. An absent offer and an offer held by another bidder are the same
// failure from the caller's point of view.
func (e *Engine) CancelOffer(caller [20]byte, collection [20]byte, tokenID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.run(func() error {
		key := OfferKey(collection, tokenID, caller)
		offer, ok, err := e.state.MarketOfferGet(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotFound
		}
		if err := e.releaseEscrow(caller, offer.Amount); err != nil {
			return err
		}
		if err := e.state.MarketOfferDelete(key); err != nil {
			return err
		}
		if err := e.ledger.MarkOfferCancelled(offer.LedgerIndex, e.now()); err != nil {
			return err
		}
		e.emit(NewOfferCancelledEvent(offer))
		return nil
	})
}

// AcceptOffer settles a sale against the bidder's escrowed funds. The caller
// must own the token and have granted transfer rights to the module. If the
// caller also holds an active listing for the token, acceptance folds the
// listing away rather than erroring, and the private-buyer restriction on
// that listing does not apply.
func (e *Engine) AcceptOffer(caller [20]byte, collection [20]byte, tokenID *big.Int, bidder [20]byte) (*HistoricalSale, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var sale *HistoricalSale
	err := e.run(func() error {
		key := OfferKey(collection, tokenID, bidder)
		offer, ok, err := e.state.MarketOfferGet(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotFound
		}
		owner, err := e.assets.OwnerOf(collection, tokenID)
		if err != nil {
			return err
		}
		if owner != caller {
			return ErrNotOwner
		}
		now := e.now()
		if offerExpired(offer, now) {
			return ErrOfferExpired
		}
		approved, err := e.assets.IsTransferApproved(collection, tokenID, ModuleAddress)
		if err != nil {
			return err
		}
		if !approved {
			return ErrNotApproved
		}

		var listingIndex uint64
		listing, listingID, listed, err := e.activeListing(collection, tokenID)
		if err != nil {
			return err
		}
		if listed && listing.Seller == caller {
			// The listing is superseded by the sale: its ledger entry closes
			// as Sold while the surface event reports a cancellation.
			if err := e.state.MarketListingDelete(listingID); err != nil {
				return err
			}
			if err := e.ledger.MarkListingSold(listing.LedgerIndex, now); err != nil {
				return err
			}
			e.emit(NewListingCancelledEvent(listing))
			listingIndex = listing.LedgerIndex
		}

		breakdown, err := e.quote(collection, caller, offer.Amount)
		if err != nil {
			return err
		}
		if err := e.state.MarketEscrowDebit(bidder, offer.Amount); err != nil {
			return err
		}
		if err := e.settle(EscrowVault, caller, breakdown); err != nil {
			return err
		}
		if err := e.assets.Transfer(collection, tokenID, caller, bidder); err != nil {
			return err
		}
		if err := e.state.MarketOfferDelete(key); err != nil {
			return err
		}
		if err := e.ledger.MarkOfferAccepted(offer.LedgerIndex, now); err != nil {
			return err
		}
		sale = &HistoricalSale{
			Collection:       collection,
			TokenID:          bigOrZero(tokenID),
			Seller:           caller,
			Buyer:            bidder,
			Price:            bigOrZero(offer.Amount),
			PayToken:         offer.PayToken,
			Fee:              breakdown.Fee,
			Royalty:          breakdown.Royalty,
			RoyaltyRecipient: breakdown.RoyaltyRecipient,
			Kind:             SaleAcceptedOffer,
			SoldAt:           now,
			ListingIndex:     listingIndex,
			OfferIndex:       offer.LedgerIndex,
		}
		index, err := e.ledger.AppendSale(sale)
		if err != nil {
			return err
		}
		sale.Index = index
		e.emit(NewSoldEvent(sale))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// ReclaimExpiredOfferEscrow returns the escrow behind the caller's expired
// offer. The offer must have passed its expiration; live offers are cancelled
// through CancelOffer instead.
func (e *Engine) ReclaimExpiredOfferEscrow(caller [20]byte, collection [20]byte, tokenID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.run(func() error {
		key := OfferKey(collection, tokenID, caller)
		offer, ok, err := e.state.MarketOfferGet(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotFound
		}
		now := e.now()
		if !offerExpired(offer, now) {
			return ErrOfferNotExpired
		}
		if err := e.releaseEscrow(caller, offer.Amount); err != nil {
			return err
		}
		if err := e.state.MarketOfferDelete(key); err != nil {
			return err
		}
		if err := e.ledger.MarkOfferReclaimed(offer.LedgerIndex, now); err != nil {
			return err
		}
		e.emit(NewOfferReclaimedEvent(offer))
		return nil
	})
}

// GetOffer returns the active offer for the token by the given bidder.
func (e *Engine) GetOffer(collection [20]byte, tokenID *big.Int, bidder [20]byte) (*Offer, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	offer, ok, err := e.state.MarketOfferGet(OfferKey(collection, tokenID, bidder))
	if err != nil || !ok {
		return nil, false, err
	}
	return offer.Clone(), true, nil
}

// EscrowBalance returns the bidder's total native funds locked behind open
// offers.
func (e *Engine) EscrowBalance(bidder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.MarketEscrowBalance(bidder)
}
