package market

import (
	"encoding/hex"
	"strconv"

	"nftmarket/core/types"
)

const (
	EventTypeListingCreated      = "market.listing.created"
	EventTypeListingCancelled    = "market.listing.cancelled"
	EventTypeListingPriceUpdated = "market.listing.price_updated"
	EventTypeSold                = "market.sold"
	EventTypeOfferCreated        = "market.offer.created"
	EventTypeOfferCancelled      = "market.offer.cancelled"
	EventTypeOfferReclaimed      = "market.offer.reclaimed"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// NewListingCreatedEvent returns the canonical payload for a new listing.
func NewListingCreatedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCreated, l, nil)
}

// NewListingCancelledEvent returns the payload emitted when a listing is
// removed without a sale, including the accept-path side effect.
func NewListingCancelledEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCancelled, l, nil)
}

// NewListingPriceUpdatedEvent returns the payload for a price mutation; the
// attached listing already carries the new price.
func NewListingPriceUpdatedEvent(l *Listing) *types.Event {
	extra := map[string]string{}
	if l != nil && l.Price != nil {
		extra["newPrice"] = l.Price.String()
	}
	return newListingEvent(EventTypeListingPriceUpdated, l, extra)
}

// NewSoldEvent returns the payload describing a settled sale with its full fee
// and royalty breakdown. Offer acceptance folds into this event with
// saleType=AcceptedOffer.
func NewSoldEvent(s *HistoricalSale) *types.Event {
	attrs := make(map[string]string)
	if s == nil {
		return &types.Event{Type: EventTypeSold, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(s.Collection[:])
	attrs["tokenId"] = bigString(s.TokenID)
	attrs["seller"] = hex.EncodeToString(s.Seller[:])
	attrs["buyer"] = hex.EncodeToString(s.Buyer[:])
	attrs["price"] = bigString(s.Price)
	attrs["paymentToken"] = hex.EncodeToString(s.PayToken[:])
	attrs["fee"] = bigString(s.Fee)
	attrs["royaltyAmount"] = bigString(s.Royalty)
	attrs["royaltyRecipient"] = hex.EncodeToString(s.RoyaltyRecipient[:])
	attrs["saleType"] = s.Kind.String()
	attrs["ledgerIndex"] = strconv.FormatUint(s.Index, 10)
	attrs["soldAt"] = strconv.FormatInt(s.SoldAt, 10)
	return &types.Event{Type: EventTypeSold, Attributes: attrs}
}

// NewOfferCreatedEvent returns the canonical payload for a new offer.
func NewOfferCreatedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferCreated, o)
}

// NewOfferCancelledEvent returns the payload emitted when a bidder withdraws
// an offer and the escrow is released.
func NewOfferCancelledEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferCancelled, o)
}

// NewOfferReclaimedEvent returns the payload emitted when escrow behind an
// expired offer is returned without a sale.
func NewOfferReclaimedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferReclaimed, o)
}

func newListingEvent(eventType string, l *Listing, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(l.Collection[:])
	attrs["tokenId"] = bigString(l.TokenID)
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	attrs["price"] = bigString(l.Price)
	attrs["paymentToken"] = hex.EncodeToString(l.PayToken[:])
	attrs["expiresAt"] = strconv.FormatInt(l.ExpiresAt, 10)
	if l.PrivateBuyer != ([20]byte{}) {
		attrs["privateBuyer"] = hex.EncodeToString(l.PrivateBuyer[:])
	}
	attrs["ledgerIndex"] = strconv.FormatUint(l.LedgerIndex, 10)
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(o.Collection[:])
	attrs["tokenId"] = bigString(o.TokenID)
	attrs["bidder"] = hex.EncodeToString(o.Bidder[:])
	attrs["amount"] = bigString(o.Amount)
	attrs["paymentToken"] = hex.EncodeToString(o.PayToken[:])
	attrs["createdAt"] = strconv.FormatInt(o.CreatedAt, 10)
	attrs["expiresAt"] = strconv.FormatInt(o.ExpiresAt, 10)
	attrs["ledgerIndex"] = strconv.FormatUint(o.LedgerIndex, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func bigString(v interface{ String() string }) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
