package state

import (
	"math/big"
	"testing"

	"nftmarket/core/types"
	"nftmarket/native/market"
	"nftmarket/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestSnapshotRevertRestoresPriorValues(t *testing.T) {
	m := newTestManager(t)
	if err := m.KVPut([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	rev := m.Snapshot()
	if err := m.KVPut([]byte("a"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.KVPut([]byte("b"), []byte("3")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.KVDelete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	m.RevertToSnapshot(rev)

	value, ok, err := m.KVGet([]byte("a"))
	if err != nil || !ok || string(value) != "1" {
		t.Fatalf("expected a=1 after revert, got %q ok=%v err=%v", value, ok, err)
	}
	if _, ok, _ := m.KVGet([]byte("b")); ok {
		t.Fatalf("key written inside snapshot must be gone after revert")
	}
}

func TestSnapshotDiscardKeepsWrites(t *testing.T) {
	m := newTestManager(t)
	rev := m.Snapshot()
	if err := m.KVPut([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	m.DiscardSnapshot(rev)
	value, ok, err := m.KVGet([]byte("a"))
	if err != nil || !ok || string(value) != "1" {
		t.Fatalf("expected committed value, got %q ok=%v err=%v", value, ok, err)
	}
}

func TestNestedSnapshots(t *testing.T) {
	m := newTestManager(t)
	outer := m.Snapshot()
	if err := m.KVPut([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	inner := m.Snapshot()
	if err := m.KVPut([]byte("a"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	m.RevertToSnapshot(inner)

	value, _, _ := m.KVGet([]byte("a"))
	if string(value) != "1" {
		t.Fatalf("inner revert must keep outer write, got %q", value)
	}
	m.RevertToSnapshot(outer)
	if _, ok, _ := m.KVGet([]byte("a")); ok {
		t.Fatalf("outer revert must drop everything")
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := [20]byte{0x01}

	account, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if account.Balance.Sign() != 0 {
		t.Fatalf("unknown account must have zero balance")
	}

	if err := m.PutAccount(addr, &types.Account{Balance: big.NewInt(500), Nonce: 7}); err != nil {
		t.Fatalf("put: %v", err)
	}
	account, err = m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(500)) != 0 || account.Nonce != 7 {
		t.Fatalf("unexpected account: %+v", account)
	}

	if err := m.PutAccount(addr, &types.Account{Balance: big.NewInt(-1)}); err == nil {
		t.Fatalf("negative balance must be rejected")
	}
}

func TestMarketRecordsRoundTrip(t *testing.T) {
	m := newTestManager(t)
	id := market.ItemKey([20]byte{0xc0}, big.NewInt(1))
	listing := &market.Listing{
		Collection:  [20]byte{0xc0},
		TokenID:     big.NewInt(1),
		Seller:      [20]byte{0x01},
		Price:       big.NewInt(100),
		ListedAt:    1_700_000_000,
		LedgerIndex: 3,
	}
	if err := m.MarketListingPut(id, listing); err != nil {
		t.Fatalf("put listing: %v", err)
	}
	loaded, ok, err := m.MarketListingGet(id)
	if err != nil || !ok {
		t.Fatalf("get listing: ok=%v err=%v", ok, err)
	}
	if loaded.Price.Cmp(listing.Price) != 0 || loaded.LedgerIndex != 3 {
		t.Fatalf("unexpected listing: %+v", loaded)
	}
	if err := m.MarketListingDelete(id); err != nil {
		t.Fatalf("delete listing: %v", err)
	}
	if _, ok, _ := m.MarketListingGet(id); ok {
		t.Fatalf("listing must be gone")
	}

	offerID := market.OfferKey([20]byte{0xc0}, big.NewInt(1), [20]byte{0x03})
	offer := &market.Offer{
		Collection: [20]byte{0xc0},
		TokenID:    big.NewInt(1),
		Bidder:     [20]byte{0x03},
		Amount:     big.NewInt(50),
		CreatedAt:  1_700_000_000,
		ExpiresAt:  1_700_000_000 + 2*60*60,
	}
	if err := m.MarketOfferPut(offerID, offer); err != nil {
		t.Fatalf("put offer: %v", err)
	}
	loadedOffer, ok, err := m.MarketOfferGet(offerID)
	if err != nil || !ok {
		t.Fatalf("get offer: ok=%v err=%v", ok, err)
	}
	if loadedOffer.Amount.Cmp(offer.Amount) != 0 {
		t.Fatalf("unexpected offer: %+v", loadedOffer)
	}
}

func TestEscrowBookNeverGoesNegative(t *testing.T) {
	m := newTestManager(t)
	addr := [20]byte{0x03}

	if err := m.MarketEscrowCredit(addr, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := m.MarketEscrowDebit(addr, big.NewInt(101)); err == nil {
		t.Fatalf("overdraft must be rejected")
	}
	if err := m.MarketEscrowDebit(addr, big.NewInt(100)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, err := m.MarketEscrowBalance(addr)
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s (err=%v)", balance, err)
	}
	if err := m.MarketEscrowDebit(addr, big.NewInt(1)); err == nil {
		t.Fatalf("debit from empty book must be rejected")
	}
}

func TestPausesRoundTrip(t *testing.T) {
	m := newTestManager(t)
	view := NewPauses(m)
	if view.IsPaused("market") {
		t.Fatalf("fresh state must not be paused")
	}
	if err := m.SetPaused("market", true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	if !view.IsPaused("market") {
		t.Fatalf("expected paused")
	}
	if view.IsPaused("assets") {
		t.Fatalf("other modules must be unaffected")
	}
	if err := m.SetPaused("market", false); err != nil {
		t.Fatalf("unset paused: %v", err)
	}
	if view.IsPaused("market") {
		t.Fatalf("expected unpaused")
	}
}

func TestSchemaVersion(t *testing.T) {
	m := newTestManager(t)
	version, err := m.SchemaVersionOf()
	if err != nil || version != 0 {
		t.Fatalf("fresh database must report zero, got %d (err=%v)", version, err)
	}
	if err := m.EnsureSchemaVersion(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	version, err = m.SchemaVersionOf()
	if err != nil || version != SchemaVersion {
		t.Fatalf("expected stamped version %d, got %d (err=%v)", SchemaVersion, version, err)
	}
	if err := m.EnsureSchemaVersion(); err != nil {
		t.Fatalf("ensure must be idempotent: %v", err)
	}
}
