package market

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/fees"
)

// engineState is the persistence surface the engine mutates. All writes made
// during an operation must be revertible through the snapshot methods so a
// failing operation leaves no partial state behind.
type engineState interface {
	MarketListingGet(id [32]byte) (*Listing, bool, error)
	MarketListingPut(id [32]byte, listing *Listing) error
	MarketListingDelete(id [32]byte) error

	MarketOfferGet(id [32]byte) (*Offer, bool, error)
	MarketOfferPut(id [32]byte, offer *Offer) error
	MarketOfferDelete(id [32]byte) error

	MarketEscrowBalance(addr [20]byte) (*big.Int, error)
	MarketEscrowCredit(addr [20]byte, amount *big.Int) error
	MarketEscrowDebit(addr [20]byte, amount *big.Int) error

	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error

	KVGet(key []byte) ([]byte, bool, error)
	KVPut(key, value []byte) error

	Snapshot() int
	RevertToSnapshot(revision int)
	DiscardSnapshot(revision int)
}

// OwnershipProvider resolves token ownership and executes transfers. The
// default implementation lives in native/assets; deployments bridging an
// external registry supply their own.
type OwnershipProvider interface {
	OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, error)
	IsTransferApproved(collection [20]byte, tokenID *big.Int, operator [20]byte) (bool, error)
	Transfer(collection [20]byte, tokenID *big.Int, from, to [20]byte) error
}

// FeeRates resolves the protocol fee rate for a given seller, allowing tiered
// schedules without the engine knowing about tiers.
type FeeRates interface {
	FeeBpsFor(seller [20]byte) uint32
}

// StaticFeeBps is a FeeRates returning the same rate for every seller.
type StaticFeeBps uint32

// FeeBpsFor implements FeeRates.
func (s StaticFeeBps) FeeBpsFor([20]byte) uint32 { return uint32(s) }

// Engine executes the trading state machine: listings, direct buys, escrowed
// offers and the historical ledger. Operations are serialised by an internal
// mutex and applied atomically through state snapshots.
type Engine struct {
	mu    sync.Mutex
	state engineState

	ledger *Ledger
	assets OwnershipProvider

	feeRates         FeeRates
	feeRecipient     [20]byte
	royalties        fees.RoyaltyLookup
	royaltiesEnabled bool

	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() time.Time

	pending []*types.Event
}

// NewEngine constructs an engine over the supplied state. The ledger and
// ownership provider must be attached before any operation runs.
func NewEngine(state engineState) *Engine {
	return &Engine{
		state:    state,
		feeRates: StaticFeeBps(0),
		emitter:  events.NoopEmitter{},
		nowFn:    time.Now,
	}
}

// SetLedger attaches the append-only history ledger.
func (e *Engine) SetLedger(ledger *Ledger) { e.ledger = ledger }

// Ledger exposes the history ledger for read paths.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// SetAssets attaches the token ownership provider.
func (e *Engine) SetAssets(assets OwnershipProvider) { e.assets = assets }

// SetEmitter attaches the event emitter. A nil emitter resets to the no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses attaches the pause view consulted before every operation.
func (e *Engine) SetPauses(pauses nativecommon.PauseView) { e.pauses = pauses }

// SetNowFunc overrides the clock, primarily for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// SetFeeRates attaches the protocol fee schedule.
func (e *Engine) SetFeeRates(rates FeeRates) {
	if rates == nil {
		rates = StaticFeeBps(0)
	}
	e.feeRates = rates
}

// SetFeeRecipient sets the account credited with protocol fees.
func (e *Engine) SetFeeRecipient(addr [20]byte) { e.feeRecipient = addr }

// SetRoyalties attaches the royalty lookup and toggles royalty payouts. When
// disabled the lookup is never consulted and royalties are zero.
func (e *Engine) SetRoyalties(lookup fees.RoyaltyLookup, enabled bool) {
	e.royalties = lookup
	e.royaltiesEnabled = enabled
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.assets == nil {
		return errNilAssets
	}
	return nil
}

func (e *Engine) now() int64 { return e.nowFn().Unix() }

// run wraps an operation in a state snapshot. On failure every write is
// reverted and buffered events are dropped; on success events flush to the
// emitter after the state has committed.
func (e *Engine) run(fn func() error) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	revision := e.state.Snapshot()
	e.pending = e.pending[:0]
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(revision)
		e.pending = e.pending[:0]
		return err
	}
	e.state.DiscardSnapshot(revision)
	for _, evt := range e.pending {
		e.emitter.Emit(marketEvent{evt: evt})
	}
	e.pending = e.pending[:0]
	return nil
}

func (e *Engine) emit(evt *types.Event) {
	if evt == nil {
		return
	}
	e.pending = append(e.pending, evt)
}

const moduleName = "market"

// quote resolves the fee and royalty breakdown for a sale by the given
// seller at the given price.
func (e *Engine) quote(collection [20]byte, seller [20]byte, price *big.Int) (*fees.Breakdown, error) {
	return fees.Quote(fees.QuoteInput{
		Price:            price,
		FeeBps:           e.feeRates.FeeBpsFor(seller),
		Collection:       collection,
		RoyaltiesEnabled: e.royaltiesEnabled,
		Lookup:           e.royalties,
	})
}

func (e *Engine) account(addr [20]byte) (*types.Account, error) {
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{Balance: big.NewInt(0)}
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// transferNative moves native balance between accounts, rejecting overdrafts.
func (e *Engine) transferNative(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("market: transfer amount must be positive")
	}
	if from == to {
		return nil
	}
	fromAccount, err := e.account(from)
	if err != nil {
		return err
	}
	if fromAccount.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toAccount, err := e.account(to)
	if err != nil {
		return err
	}
	fromAccount.Balance = new(big.Int).Sub(fromAccount.Balance, amount)
	toAccount.Balance = new(big.Int).Add(toAccount.Balance, amount)
	if err := e.state.PutAccount(from, fromAccount); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAccount)
}

// lockEscrow moves bidder funds into the vault and records the claim in the
// escrow book.
func (e *Engine) lockEscrow(bidder [20]byte, amount *big.Int) error {
	if err := e.transferNative(bidder, EscrowVault, amount); err != nil {
		return err
	}
	return e.state.MarketEscrowCredit(bidder, amount)
}

// releaseEscrow returns locked funds to the bidder in full.
func (e *Engine) releaseEscrow(bidder [20]byte, amount *big.Int) error {
	if err := e.state.MarketEscrowDebit(bidder, amount); err != nil {
		return err
	}
	return e.transferNative(EscrowVault, bidder, amount)
}

// settle pays out a sale from the given source of funds: protocol fee to the
// fee recipient, royalty to the collection's recipient, remainder to the
// seller. The caller has already moved or located price-worth of funds at
// source.
func (e *Engine) settle(source [20]byte, seller [20]byte, breakdown *fees.Breakdown) error {
	if breakdown.Fee.Sign() > 0 {
		if err := e.transferNative(source, e.feeRecipient, breakdown.Fee); err != nil {
			return err
		}
	}
	if breakdown.Royalty.Sign() > 0 {
		if err := e.transferNative(source, breakdown.RoyaltyRecipient, breakdown.Royalty); err != nil {
			return err
		}
	}
	if breakdown.SellerProceeds.Sign() > 0 {
		if err := e.transferNative(source, seller, breakdown.SellerProceeds); err != nil {
			return err
		}
	}
	return nil
}

// activeListing loads a listing and reports whether it exists. Expiry is the
// caller's concern: listings self-expire lazily and some paths treat an
// expired listing differently from a missing one.
func (e *Engine) activeListing(collection [20]byte, tokenID *big.Int) (*Listing, [32]byte, bool, error) {
	id := ItemKey(collection, tokenID)
	listing, ok, err := e.state.MarketListingGet(id)
	if err != nil {
		return nil, id, false, err
	}
	return listing, id, ok, nil
}

func listingExpired(listing *Listing, now int64) bool {
	return listing.ExpiresAt != 0 && now >= listing.ExpiresAt
}

func offerExpired(offer *Offer, now int64) bool {
	return now >= offer.ExpiresAt
}
