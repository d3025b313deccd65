package market_test

import (
	"math/big"
	"testing"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/core/types"
	"nftmarket/native/assets"
	"nftmarket/native/market"
	"nftmarket/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) last(t *testing.T) *types.Event {
	t.Helper()
	if len(c.events) == 0 {
		t.Fatalf("no events emitted")
	}
	return payload(t, c.events[len(c.events)-1])
}

func payload(t *testing.T, evt events.Event) *types.Event {
	t.Helper()
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		t.Fatalf("event %T does not carry a payload", evt)
	}
	return carrier.Event()
}

type fixedClock struct {
	now int64
}

func (c *fixedClock) Now() time.Time { return time.Unix(c.now, 0) }

func (c *fixedClock) Advance(seconds int64) { c.now += seconds }

type testEnv struct {
	engine   *market.Engine
	manager  *state.Manager
	registry *assets.Registry
	emitter  *capturingEmitter
	clock    *fixedClock
}

var (
	seller       = addr(0x01)
	buyer        = addr(0x02)
	bidder       = addr(0x03)
	stranger     = addr(0x04)
	feeRecipient = addr(0x0f)
	royaltyAddr  = addr(0x10)
	collection   = addr(0xc0)
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	if err := manager.EnsureSchemaVersion(); err != nil {
		t.Fatalf("ensure schema version: %v", err)
	}
	registry := assets.NewRegistry(manager)
	emitter := &capturingEmitter{}
	clock := &fixedClock{now: 1_700_000_000}

	engine := market.NewEngine(manager)
	engine.SetLedger(market.NewLedger(manager))
	engine.SetAssets(registry)
	engine.SetEmitter(emitter)
	engine.SetPauses(state.NewPauses(manager))
	engine.SetNowFunc(clock.Now)
	engine.SetFeeRates(market.StaticFeeBps(250))
	engine.SetFeeRecipient(feeRecipient)

	return &testEnv{engine: engine, manager: manager, registry: registry, emitter: emitter, clock: clock}
}

func (env *testEnv) fund(t *testing.T, addr [20]byte, amount int64) {
	t.Helper()
	if err := env.manager.PutAccount(addr, &types.Account{Balance: big.NewInt(amount)}); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func (env *testEnv) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	account, err := env.manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return account.Balance
}

func (env *testEnv) mint(t *testing.T, owner [20]byte, tokenID int64) *big.Int {
	t.Helper()
	id := big.NewInt(tokenID)
	if err := env.registry.Mint(collection, id, owner); err != nil {
		t.Fatalf("mint token %d: %v", tokenID, err)
	}
	return id
}

func (env *testEnv) approve(t *testing.T, owner [20]byte, tokenID *big.Int) {
	t.Helper()
	if err := env.registry.Approve(owner, collection, tokenID, market.ModuleAddress); err != nil {
		t.Fatalf("approve module: %v", err)
	}
}

// mintListed mints a token to the seller, approves the module and lists it.
func (env *testEnv) mintListed(t *testing.T, tokenID, price int64) *big.Int {
	t.Helper()
	id := env.mint(t, seller, tokenID)
	env.approve(t, seller, id)
	if _, err := env.engine.List(seller, collection, id, big.NewInt(price), market.NativeToken, 0, [20]byte{}); err != nil {
		t.Fatalf("list token %d: %v", tokenID, err)
	}
	return id
}

func (env *testEnv) escrow(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	balance, err := env.engine.EscrowBalance(addr)
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	return balance
}

func requireInt(t *testing.T, got *big.Int, want int64, label string) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %s, want %d", label, got, want)
	}
}
