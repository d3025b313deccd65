package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nftmarket/config"
	"nftmarket/core/state"
	"nftmarket/core/types"
	"nftmarket/native/assets"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/market"
	"nftmarket/observability/logging"
	"nftmarket/storage"
)

const testAdminSecret = "unit-test-secret"

type serverFixture struct {
	server   *Server
	manager  *state.Manager
	registry *assets.Registry
	auth     *AdminAuth
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	logger := logging.SetupWithWriter(io.Discard, "marketd", "test")

	manager := state.NewManager(storage.NewMemDB())
	require.NoError(t, manager.EnsureSchemaVersion())

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "marketd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := NewEventHub(store, logger)
	registry := assets.NewRegistry(manager)
	registry.SetPauses(state.NewPauses(manager))

	engine := market.NewEngine(manager)
	engine.SetLedger(market.NewLedger(manager))
	engine.SetAssets(registry)
	engine.SetEmitter(hub)
	engine.SetPauses(state.NewPauses(manager))
	engine.SetFeeRates(market.StaticFeeBps(250))
	engine.SetFeeRecipient(testAddr(0x0f))

	auth := NewAdminAuth(testAdminSecret)
	quota := NewOfferQuota(nativecommon.Quota{})
	limiter := NewRateLimiter(6000, 100)

	return &serverFixture{
		server:   NewServer(engine, manager, registry, store, hub, auth, quota, limiter, logger),
		manager:  manager,
		registry: registry,
		auth:     auth,
	}
}

func testAddr(last byte) [20]byte {
	var addr [20]byte
	addr[19] = last
	return addr
}

func hexAddr(last byte) string {
	return formatAddress(testAddr(last))
}

func (f *serverFixture) fund(t *testing.T, addr [20]byte, amount int64) {
	t.Helper()
	require.NoError(t, f.manager.PutAccount(addr, &types.Account{Balance: big.NewInt(amount)}))
}

func (f *serverFixture) mintApproved(t *testing.T, collection [20]byte, tokenID int64, owner [20]byte) {
	t.Helper()
	require.NoError(t, f.registry.Mint(collection, big.NewInt(tokenID), owner))
	require.NoError(t, f.registry.Approve(owner, collection, big.NewInt(tokenID), market.ModuleAddress))
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	f.server.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target))
}

func TestListAndBuyFlow(t *testing.T) {
	f := newServerFixture(t)
	seller := testAddr(0x01)
	buyer := testAddr(0x02)
	collection := testAddr(0xc0)
	f.mintApproved(t, collection, 7, seller)
	f.fund(t, buyer, 5000)

	resp := f.do(t, http.MethodPost, "/v1/market/list", listRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "7",
		Price:      "1000",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var listed struct {
		Listing listingPayload `json:"listing"`
	}
	decodeBody(t, resp, &listed)
	require.Equal(t, "1000", listed.Listing.Price)
	require.Equal(t, uint64(1), listed.Listing.LedgerIndex)

	resp = f.do(t, http.MethodGet, "/v1/market/listing?collection="+hexAddr(0xc0)+"&tokenId=7", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/market/buy", buyRequest{
		Caller:     hexAddr(0x02),
		Collection: hexAddr(0xc0),
		TokenID:    "7",
		Payment:    "999",
	}, nil)
	require.Equal(t, http.StatusPaymentRequired, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/market/buy", buyRequest{
		Caller:     hexAddr(0x02),
		Collection: hexAddr(0xc0),
		TokenID:    "7",
		Payment:    "1000",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var bought struct {
		Sale salePayload `json:"sale"`
	}
	decodeBody(t, resp, &bought)
	require.Equal(t, "25", bought.Sale.Fee)
	require.Equal(t, "regular", bought.Sale.SaleType)
	require.Equal(t, hexAddr(0x02), bought.Sale.Buyer)

	resp = f.do(t, http.MethodGet, "/v1/market/listing?collection="+hexAddr(0xc0)+"&tokenId=7", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodGet, "/v1/ledger/sales", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var sales struct {
		Sales []salePayload `json:"sales"`
	}
	decodeBody(t, resp, &sales)
	require.Len(t, sales.Sales, 1)

	owner, err := f.registry.OwnerOf(testAddr(0xc0), big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, testAddr(0x02), owner)
}

func TestValidationErrors(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/market/list", listRequest{
		Caller:     "not-hex",
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Price:      "10",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/market/buy", buyRequest{
		Caller:     hexAddr(0x02),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Payment:    "10",
	}, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/market/list", map[string]string{"unknown": "field"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIdempotentReplay(t *testing.T) {
	f := newServerFixture(t)
	seller := testAddr(0x01)
	f.mintApproved(t, testAddr(0xc0), 9, seller)

	body := listRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "9",
		Price:      "500",
	}
	headers := map[string]string{"Idempotency-Key": "list-9"}

	first := f.do(t, http.MethodPost, "/v1/market/list", body, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	replay := f.do(t, http.MethodPost, "/v1/market/list", body, headers)
	require.Equal(t, http.StatusOK, replay.Code)
	require.JSONEq(t, first.Body.String(), replay.Body.String())

	conflicting := body
	conflicting.Price = "600"
	mismatch := f.do(t, http.MethodPost, "/v1/market/list", conflicting, headers)
	require.Equal(t, http.StatusConflict, mismatch.Code)

	// Without the key the same request hits the engine and conflicts there.
	direct := f.do(t, http.MethodPost, "/v1/market/list", body, nil)
	require.Equal(t, http.StatusConflict, direct.Code)
}

func TestOfferLifecycleOverHTTP(t *testing.T) {
	f := newServerFixture(t)
	owner := testAddr(0x01)
	bidder := testAddr(0x03)
	f.mintApproved(t, testAddr(0xc0), 3, owner)
	f.fund(t, bidder, 2000)

	expiresAt := time.Now().Add(2 * time.Hour).Unix()
	resp := f.do(t, http.MethodPost, "/v1/offers/make", makeOfferRequest{
		Caller:     hexAddr(0x03),
		Collection: hexAddr(0xc0),
		TokenID:    "3",
		Amount:     "600",
		Payment:    "600",
		ExpiresAt:  expiresAt,
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodGet, "/v1/escrow/"+hexAddr(0x03), nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var escrow struct {
		Locked string `json:"locked"`
	}
	decodeBody(t, resp, &escrow)
	require.Equal(t, "600", escrow.Locked)

	resp = f.do(t, http.MethodPost, "/v1/offers/accept", offerActionRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "3",
		Bidder:     hexAddr(0x03),
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var accepted struct {
		Sale salePayload `json:"sale"`
	}
	decodeBody(t, resp, &accepted)
	require.Equal(t, "accepted_offer", accepted.Sale.SaleType)

	owner2, err := f.registry.OwnerOf(testAddr(0xc0), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, bidder, owner2)

	resp = f.do(t, http.MethodGet, "/v1/escrow/"+hexAddr(0x03), nil, nil)
	decodeBody(t, resp, &escrow)
	require.Equal(t, "0", escrow.Locked)
}

func TestAdminPause(t *testing.T) {
	f := newServerFixture(t)
	f.mintApproved(t, testAddr(0xc0), 1, testAddr(0x01))

	pauseBody := pauseRequest{Module: "market", Paused: true}

	resp := f.do(t, http.MethodPost, "/v1/admin/pause", pauseBody, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	operatorToken, err := f.auth.IssueToken(RoleOperator, time.Minute)
	require.NoError(t, err)
	resp = f.do(t, http.MethodPost, "/v1/admin/pause", pauseBody, map[string]string{
		"Authorization": "Bearer " + operatorToken,
	})
	require.Equal(t, http.StatusForbidden, resp.Code)

	adminToken, err := f.auth.IssueToken(RoleAdmin, time.Minute)
	require.NoError(t, err)
	adminHeaders := map[string]string{"Authorization": "Bearer " + adminToken}
	resp = f.do(t, http.MethodPost, "/v1/admin/pause", pauseBody, adminHeaders)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodPost, "/v1/market/list", listRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Price:      "100",
	}, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "market", Paused: false}, adminHeaders)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/market/list", listRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Price:      "100",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestAssetsPauseBlocksRegistryWrites(t *testing.T) {
	f := newServerFixture(t)
	adminToken, err := f.auth.IssueToken(RoleAdmin, time.Minute)
	require.NoError(t, err)
	adminHeaders := map[string]string{"Authorization": "Bearer " + adminToken}

	f.mintApproved(t, testAddr(0xc0), 1, testAddr(0x01))
	f.fund(t, testAddr(0x02), 5000)
	resp := f.do(t, http.MethodPost, "/v1/market/list", listRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Price:      "100",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "assets", Paused: true}, adminHeaders)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodPost, "/v1/assets/mint", mintRequest{
		Collection: hexAddr(0xc0),
		TokenID:    "2",
		Owner:      hexAddr(0x01),
	}, adminHeaders)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodPost, "/v1/assets/approve", approveRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Operator:   hexAddr(0x05),
	}, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/admin/royalty", royaltyRequest{
		Collection: hexAddr(0xc0),
		Bps:        100,
		Recipient:  hexAddr(0x10),
	}, adminHeaders)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	// A buy settles through a token transfer, so it is frozen too.
	resp = f.do(t, http.MethodPost, "/v1/market/buy", buyRequest{
		Caller:     hexAddr(0x02),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Payment:    "100",
	}, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "assets", Paused: false}, adminHeaders)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/assets/mint", mintRequest{
		Collection: hexAddr(0xc0),
		TokenID:    "2",
		Owner:      hexAddr(0x01),
	}, adminHeaders)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestAdminMintAndRoyalty(t *testing.T) {
	f := newServerFixture(t)
	adminToken, err := f.auth.IssueToken(RoleAdmin, time.Minute)
	require.NoError(t, err)
	adminHeaders := map[string]string{"Authorization": "Bearer " + adminToken}

	resp := f.do(t, http.MethodPost, "/v1/assets/mint", mintRequest{
		Collection: hexAddr(0xc0),
		TokenID:    "42",
		Owner:      hexAddr(0x01),
	}, adminHeaders)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodPost, "/v1/assets/mint", mintRequest{
		Collection: hexAddr(0xc0),
		TokenID:    "42",
		Owner:      hexAddr(0x01),
	}, adminHeaders)
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = f.do(t, http.MethodPost, "/v1/admin/royalty", royaltyRequest{
		Collection: hexAddr(0xc0),
		Bps:        500,
		Recipient:  hexAddr(0x10),
	}, adminHeaders)
	require.Equal(t, http.StatusOK, resp.Code)

	amount, recipient, err := f.registry.RoyaltyInfo(testAddr(0xc0), big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, int64(50), amount.Int64())
	require.Equal(t, testAddr(0x10), recipient)
}

func TestOfferQuotaTracksCanonicalCaller(t *testing.T) {
	f := newServerFixture(t)
	f.server.quota = NewOfferQuota(nativecommon.Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 3600})

	owner := testAddr(0x01)
	f.mintApproved(t, testAddr(0xc0), 1, owner)
	f.mintApproved(t, testAddr(0xc0), 2, owner)
	f.fund(t, testAddr(0x03), 5000)

	expiresAt := time.Now().Add(2 * time.Hour).Unix()
	resp := f.do(t, http.MethodPost, "/v1/offers/make", makeOfferRequest{
		Caller:     hexAddr(0x03),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Amount:     "100",
		Payment:    "100",
		ExpiresAt:  expiresAt,
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// A different spelling of the same address shares the bucket.
	respelled := strings.ToUpper(strings.TrimPrefix(hexAddr(0x03), "0x"))
	resp = f.do(t, http.MethodPost, "/v1/offers/make", makeOfferRequest{
		Caller:     respelled,
		Collection: hexAddr(0xc0),
		TokenID:    "2",
		Amount:     "100",
		Payment:    "100",
		ExpiresAt:  expiresAt,
	}, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Code, resp.Body.String())
}

func TestOfferQuotaSaturatesHugeAmounts(t *testing.T) {
	f := newServerFixture(t)
	f.server.quota = NewOfferQuota(nativecommon.Quota{MaxValuePerEpoch: 1_000_000, EpochSeconds: 3600})

	f.mintApproved(t, testAddr(0xc0), 1, testAddr(0x01))
	f.fund(t, testAddr(0x03), 5000)

	huge := new(big.Int).Lsh(big.NewInt(1), 64)
	huge.Add(huge, big.NewInt(5))
	resp := f.do(t, http.MethodPost, "/v1/offers/make", makeOfferRequest{
		Caller:     hexAddr(0x03),
		Collection: hexAddr(0xc0),
		TokenID:    "1",
		Amount:     huge.String(),
		Payment:    huge.String(),
		ExpiresAt:  time.Now().Add(2 * time.Hour).Unix(),
	}, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Code, resp.Body.String())
}

func TestEventStreamMirrorsEngineActivity(t *testing.T) {
	f := newServerFixture(t)
	f.mintApproved(t, testAddr(0xc0), 5, testAddr(0x01))

	resp := f.do(t, http.MethodPost, "/v1/market/list", listRequest{
		Caller:     hexAddr(0x01),
		Collection: hexAddr(0xc0),
		TokenID:    "5",
		Price:      "250",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	events, err := f.server.store.EventsSince(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, market.EventTypeListingCreated, events[0].Type)
	require.Equal(t, "250", events[0].Event.Attributes["price"])
}

func TestConfigLoadRejectsBadFeeRecipient(t *testing.T) {
	cfg := &config.Config{Fees: config.Fees{FeeBps: 100, FeeRecipient: "nope"}}
	require.Error(t, config.Validate(cfg))
}

func TestRateLimiterThrottles(t *testing.T) {
	f := newServerFixture(t)
	f.server.limiter = NewRateLimiter(60, 2)
	f.server.router = f.server.routes()

	var last int
	for i := 0; i < 5; i++ {
		resp := f.do(t, http.MethodGet, fmt.Sprintf("/healthz?i=%d", i), nil, nil)
		last = resp.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}
