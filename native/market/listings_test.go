package market_test

import (
	"errors"
	"math/big"
	"testing"

	"nftmarket/native/market"
)

func TestListHappyPath(t *testing.T) {
	env := newTestEnv(t)
	id := env.mint(t, seller, 1)
	env.approve(t, seller, id)

	listing, err := env.engine.List(seller, collection, id, big.NewInt(100), market.NativeToken, 0, [20]byte{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Seller != seller {
		t.Fatalf("unexpected seller")
	}
	if listing.LedgerIndex != 1 {
		t.Fatalf("expected ledger index 1, got %d", listing.LedgerIndex)
	}

	stored, ok, err := env.engine.GetListing(collection, id)
	if err != nil || !ok {
		t.Fatalf("listing not stored: ok=%v err=%v", ok, err)
	}
	requireInt(t, stored.Price, 100, "stored price")

	record, err := env.engine.Ledger().GetListing(1)
	if err != nil {
		t.Fatalf("ledger listing: %v", err)
	}
	if record.Status != market.ListingActive {
		t.Fatalf("expected active ledger record, got %d", record.Status)
	}

	evt := env.emitter.last(t)
	if evt.Type != market.EventTypeListingCreated {
		t.Fatalf("unexpected event type %q", evt.Type)
	}
	if evt.Attributes["ledgerIndex"] != "1" {
		t.Fatalf("unexpected ledger index attribute %q", evt.Attributes["ledgerIndex"])
	}
}

func TestListPreconditions(t *testing.T) {
	env := newTestEnv(t)
	id := env.mint(t, seller, 1)

	if _, err := env.engine.List(stranger, collection, id, big.NewInt(100), market.NativeToken, 0, [20]byte{}); !errors.Is(err, market.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := env.engine.List(seller, collection, id, big.NewInt(100), market.NativeToken, 0, [20]byte{}); !errors.Is(err, market.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	env.approve(t, seller, id)
	if _, err := env.engine.List(seller, collection, id, big.NewInt(0), market.NativeToken, 0, [20]byte{}); !errors.Is(err, market.ErrPriceZero) {
		t.Fatalf("expected ErrPriceZero, got %v", err)
	}
	if _, err := env.engine.List(seller, collection, id, nil, market.NativeToken, 0, [20]byte{}); !errors.Is(err, market.ErrPriceZero) {
		t.Fatalf("expected ErrPriceZero for nil price, got %v", err)
	}
	if _, err := env.engine.List(seller, collection, id, big.NewInt(100), market.NativeToken, env.clock.now, [20]byte{}); !errors.Is(err, market.ErrInvalidExpiration) {
		t.Fatalf("expected ErrInvalidExpiration, got %v", err)
	}
	if _, err := env.engine.List(seller, collection, id, big.NewInt(100), market.NativeToken, 0, seller); !errors.Is(err, market.ErrCannotListForSelf) {
		t.Fatalf("expected ErrCannotListForSelf, got %v", err)
	}
	if len(env.emitter.events) != 0 {
		t.Fatalf("failed operations must not emit events")
	}

	// Smallest unit is a valid price.
	if _, err := env.engine.List(seller, collection, id, big.NewInt(1), market.NativeToken, 0, [20]byte{}); err != nil {
		t.Fatalf("price of one must list: %v", err)
	}
	if _, err := env.engine.List(seller, collection, id, big.NewInt(2), market.NativeToken, 0, [20]byte{}); !errors.Is(err, market.ErrAlreadyListed) {
		t.Fatalf("expected ErrAlreadyListed, got %v", err)
	}
}

func TestListReplacesExpiredListing(t *testing.T) {
	env := newTestEnv(t)
	id := env.mint(t, seller, 1)
	env.approve(t, seller, id)

	if _, err := env.engine.List(seller, collection, id, big.NewInt(100), market.NativeToken, env.clock.now+100, [20]byte{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	env.clock.Advance(200)

	listing, err := env.engine.List(seller, collection, id, big.NewInt(150), market.NativeToken, 0, [20]byte{})
	if err != nil {
		t.Fatalf("relist after expiry: %v", err)
	}
	if listing.LedgerIndex != 2 {
		t.Fatalf("expected fresh ledger record, got index %d", listing.LedgerIndex)
	}
	stale, err := env.engine.Ledger().GetListing(1)
	if err != nil {
		t.Fatalf("ledger listing: %v", err)
	}
	if stale.Status != market.ListingCancelled {
		t.Fatalf("expired record should close as cancelled, got %d", stale.Status)
	}
}

func TestCancelListing(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListed(t, 1, 100)

	if err := env.engine.CancelListing(seller, collection, big.NewInt(99)); !errors.Is(err, market.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if err := env.engine.CancelListing(stranger, collection, id); !errors.Is(err, market.ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
	if err := env.engine.CancelListing(seller, collection, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok, err := env.engine.GetListing(collection, id); err != nil || ok {
		t.Fatalf("listing should be gone: ok=%v err=%v", ok, err)
	}
	record, err := env.engine.Ledger().GetListing(1)
	if err != nil {
		t.Fatalf("ledger listing: %v", err)
	}
	if record.Status != market.ListingCancelled || record.ClosedAt != env.clock.now {
		t.Fatalf("unexpected ledger record: %+v", record)
	}
	if evt := env.emitter.last(t); evt.Type != market.EventTypeListingCancelled {
		t.Fatalf("unexpected event type %q", evt.Type)
	}
}

func TestUpdatePrice(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListed(t, 1, 100)

	if _, err := env.engine.UpdatePrice(stranger, collection, id, big.NewInt(200)); !errors.Is(err, market.ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
	if _, err := env.engine.UpdatePrice(seller, collection, id, big.NewInt(0)); !errors.Is(err, market.ErrPriceZero) {
		t.Fatalf("expected ErrPriceZero, got %v", err)
	}

	updated, err := env.engine.UpdatePrice(seller, collection, id, big.NewInt(200))
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	requireInt(t, updated.Price, 200, "updated price")

	// Only the active record changes; the ledger keeps the original price.
	record, err := env.engine.Ledger().GetListing(1)
	if err != nil {
		t.Fatalf("ledger listing: %v", err)
	}
	requireInt(t, record.Price, 100, "ledger price")

	evt := env.emitter.last(t)
	if evt.Type != market.EventTypeListingPriceUpdated {
		t.Fatalf("unexpected event type %q", evt.Type)
	}
	if evt.Attributes["newPrice"] != "200" {
		t.Fatalf("unexpected newPrice attribute %q", evt.Attributes["newPrice"])
	}
}
