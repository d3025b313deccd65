package market_test

import (
	"math/big"
	"strings"
	"testing"

	"nftmarket/core/state"
	"nftmarket/native/market"
	"nftmarket/storage"
)

func newTestLedger(t *testing.T) *market.Ledger {
	t.Helper()
	return market.NewLedger(state.NewManager(storage.NewMemDB()))
}

func sampleListing(tokenID int64) *market.Listing {
	return &market.Listing{
		Collection: collection,
		TokenID:    big.NewInt(tokenID),
		Seller:     seller,
		Price:      big.NewInt(100),
		ListedAt:   1_700_000_000,
	}
}

func sampleOffer(tokenID int64) *market.Offer {
	return &market.Offer{
		Collection: collection,
		TokenID:    big.NewInt(tokenID),
		Bidder:     bidder,
		Amount:     big.NewInt(50),
		CreatedAt:  1_700_000_000,
		ExpiresAt:  1_700_000_000 + 2*60*60,
	}
}

func TestLedgerAppendAssignsMonotonicIndexes(t *testing.T) {
	ledger := newTestLedger(t)
	for i := int64(1); i <= 3; i++ {
		index, err := ledger.AppendListing(sampleListing(i))
		if err != nil {
			t.Fatalf("append listing %d: %v", i, err)
		}
		if index != uint64(i) {
			t.Fatalf("expected index %d, got %d", i, index)
		}
	}
	count, err := ledger.ListingCount()
	if err != nil || count != 3 {
		t.Fatalf("expected count 3, got %d (err=%v)", count, err)
	}

	records, err := ledger.ListingsRange(2, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(records) != 2 || records[0].Index != 2 || records[1].Index != 3 {
		t.Fatalf("unexpected range result: %+v", records)
	}
}

func TestLedgerListingTransitionsAreOneWay(t *testing.T) {
	ledger := newTestLedger(t)
	index, err := ledger.AppendListing(sampleListing(1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ledger.MarkListingSold(index, 1_700_000_100); err != nil {
		t.Fatalf("mark sold: %v", err)
	}
	record, err := ledger.GetListing(index)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != market.ListingSold || record.ClosedAt != 1_700_000_100 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if err := ledger.MarkListingCancelled(index, 1_700_000_200); err == nil || !strings.Contains(err.Error(), "already closed") {
		t.Fatalf("closed record must refuse further transitions, got %v", err)
	}
}

func TestLedgerOfferTransitions(t *testing.T) {
	ledger := newTestLedger(t)
	first, err := ledger.AppendOffer(sampleOffer(1))
	if err != nil {
		t.Fatalf("append offer: %v", err)
	}
	second, err := ledger.AppendOffer(sampleOffer(2))
	if err != nil {
		t.Fatalf("append offer: %v", err)
	}
	if err := ledger.MarkOfferAccepted(first, 1_700_000_100); err != nil {
		t.Fatalf("mark accepted: %v", err)
	}
	if err := ledger.MarkOfferReclaimed(second, 1_700_000_200); err != nil {
		t.Fatalf("mark reclaimed: %v", err)
	}
	if err := ledger.MarkOfferCancelled(first, 1_700_000_300); err == nil {
		t.Fatalf("accepted offer must refuse cancellation")
	}
	records, err := ledger.OffersRange(1, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if records[0].Status != market.OfferAccepted || records[1].Status != market.OfferExpiredReclaimed {
		t.Fatalf("unexpected statuses: %d, %d", records[0].Status, records[1].Status)
	}
}

func TestLedgerSales(t *testing.T) {
	ledger := newTestLedger(t)
	sale := &market.HistoricalSale{
		Collection:   collection,
		TokenID:      big.NewInt(1),
		Seller:       seller,
		Buyer:        buyer,
		Price:        big.NewInt(1000),
		Fee:          big.NewInt(25),
		Royalty:      big.NewInt(50),
		Kind:         market.SaleRegular,
		SoldAt:       1_700_000_000,
		ListingIndex: 7,
	}
	index, err := ledger.AppendSale(sale)
	if err != nil {
		t.Fatalf("append sale: %v", err)
	}
	stored, err := ledger.GetSale(index)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.ListingIndex != 7 || stored.Kind != market.SaleRegular {
		t.Fatalf("unexpected sale: %+v", stored)
	}
	requireInt(t, stored.Price, 1000, "sale price")
	requireInt(t, stored.Fee, 25, "sale fee")

	if _, err := ledger.AppendSale(&market.HistoricalSale{Kind: market.SaleKind(9), TokenID: big.NewInt(1), SoldAt: 1}); err == nil {
		t.Fatalf("invalid sale kind must be rejected")
	}
	if _, err := ledger.GetSale(42); err == nil {
		t.Fatalf("missing sale must error")
	}
}
