package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"nftmarket/core/state"
	"nftmarket/native/assets"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/market"
	"nftmarket/observability"
)

const (
	wsWriteTimeout  = 10 * time.Second
	maxRequestBytes = 1 << 20
)

// Server exposes the trading engine over HTTP and websockets.
type Server struct {
	engine   *market.Engine
	manager  *state.Manager
	registry *assets.Registry
	store    *SQLiteStore
	hub      *EventHub
	auth     *AdminAuth
	quota    *OfferQuota
	limiter  *RateLimiter
	logger   *slog.Logger

	router chi.Router
}

func NewServer(engine *market.Engine, manager *state.Manager, registry *assets.Registry, store *SQLiteStore, hub *EventHub, auth *AdminAuth, quota *OfferQuota, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   engine,
		manager:  manager,
		registry: registry,
		store:    store,
		hub:      hub,
		auth:     auth,
		quota:    quota,
		limiter:  limiter,
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/market", func(r chi.Router) {
			r.Post("/list", s.mutating(s.handleList))
			r.Post("/cancel", s.mutating(s.handleCancelListing))
			r.Post("/update-price", s.mutating(s.handleUpdatePrice))
			r.Post("/buy", s.mutating(s.handleBuy))
			r.Post("/buy-batch", s.mutating(s.handleBuyBatch))
			r.Get("/listing", s.handleGetListing)
		})
		r.Route("/offers", func(r chi.Router) {
			r.Post("/make", s.mutating(s.handleMakeOffer))
			r.Post("/cancel", s.mutating(s.handleCancelOffer))
			r.Post("/accept", s.mutating(s.handleAcceptOffer))
			r.Post("/reclaim", s.mutating(s.handleReclaimOffer))
			r.Get("/", s.handleGetOffer)
		})
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/listings", s.handleLedgerListings)
			r.Get("/offers", s.handleLedgerOffers)
			r.Get("/sales", s.handleLedgerSales)
		})
		r.Get("/escrow/{address}", s.handleEscrowBalance)
		r.Get("/events/ws", s.handleEventsWS)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/pause", s.admin(RoleAdmin, s.handlePause))
			r.Post("/royalty", s.admin(RoleAdmin, s.handleSetRoyalty))
		})
		r.Route("/assets", func(r chi.Router) {
			r.Post("/mint", s.admin(RoleAdmin, s.handleMint))
			r.Post("/approve", s.mutating(s.handleApprove))
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mutating wraps a state-changing handler with idempotency-key replay and
// audit logging.
func (s *Server) mutating(handler func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		clientID := clientID(r)

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		requestHash := ""
		if key != "" && s.store != nil {
			sum := sha256.Sum256(body)
			requestHash = hex.EncodeToString(sum[:])
			cached, err := s.store.LookupIdempotency(r.Context(), clientID, key, requestHash)
			if err != nil {
				if errors.Is(err, ErrIdempotencyMismatch) {
					writeError(w, http.StatusConflict, err)
					return
				}
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if cached != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}
		}

		recorder := &bufferingResponseWriter{header: make(http.Header), status: http.StatusOK}
		handler(recorder, r)

		if key != "" && s.store != nil {
			if err := s.store.SaveIdempotency(r.Context(), clientID, key, requestHash, recorder.status, recorder.body.Bytes()); err != nil {
				s.logger.Error("save idempotency", "error", err)
			}
		}
		if s.store != nil {
			entry := AuditEntry{
				ClientID:       clientID,
				Method:         r.Method,
				Path:           r.URL.Path,
				RequestBody:    body,
				ResponseStatus: recorder.status,
				ResponseBody:   recorder.body.Bytes(),
			}
			if err := s.store.InsertAuditLog(r.Context(), entry); err != nil {
				s.logger.Error("insert audit log", "error", err)
			}
		}

		for name, values := range recorder.header {
			for _, value := range values {
				w.Header().Add(name, value)
			}
		}
		w.WriteHeader(recorder.status)
		_, _ = w.Write(recorder.body.Bytes())
	}
}

type bufferingResponseWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (b *bufferingResponseWriter) Header() http.Header { return b.header }

func (b *bufferingResponseWriter) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *bufferingResponseWriter) WriteHeader(status int) { b.status = status }

func (s *Server) admin(role Role, handler func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if got != role {
			writeError(w, http.StatusForbidden, errors.New("insufficient role"))
			return
		}
		handler(w, r)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokenID, err := parseAmount(req.TokenID, "tokenId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseAmount(req.Price, "price")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payToken, err := parseOptionalAddress(req.PaymentToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	privateBuyer, err := parseOptionalAddress(req.PrivateBuyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	listing, err := s.engine.List(caller, collection, tokenID, price, payToken, req.ExpiresAt, privateBuyer)
	observability.Market().RecordOperation("list", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": listingToPayload(listing)})
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	var req cancelListingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.engine.CancelListing(caller, collection, tokenID)
	observability.Market().RecordOperation("cancel_listing", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req updatePriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	newPrice, err := parseAmount(req.NewPrice, "newPrice")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	listing, err := s.engine.UpdatePrice(caller, collection, tokenID, newPrice)
	observability.Market().RecordOperation("update_price", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": listingToPayload(listing)})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(req.Payment, "payment")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := s.engine.Buy(caller, collection, tokenID, payment)
	observability.Market().RecordOperation("buy", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": saleToPayload(sale)})
}

func (s *Server) handleBuyBatch(w http.ResponseWriter, r *http.Request) {
	var req buyBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(req.Payment, "payment")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	items := make([]market.BuyItem, 0, len(req.Items))
	for _, item := range req.Items {
		collection, err := parseAddress(item.Collection)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tokenID, err := parseAmount(item.TokenID, "tokenId")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		items = append(items, market.BuyItem{Collection: collection, TokenID: tokenID})
	}
	sales, err := s.engine.BuyBatch(caller, items, payment)
	observability.Market().RecordOperation("buy_batch", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payloads := make([]*salePayload, 0, len(sales))
	for _, sale := range sales {
		payloads = append(payloads, saleToPayload(sale))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": payloads})
}

func (s *Server) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	var req makeOfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(req.Payment, "payment")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.quota != nil {
		// Amounts wider than the counter saturate so they still count
		// against the value cap. The key is the canonical address form,
		// not the caller's spelling of it.
		value := uint64(math.MaxUint64)
		if amount.IsUint64() {
			value = amount.Uint64()
		}
		if err := s.quota.Allow(formatAddress(caller), value); err != nil {
			observability.API().RecordThrottle(r.URL.Path, "quota_exceeded")
			writeError(w, http.StatusTooManyRequests, err)
			return
		}
	}
	offer, err := s.engine.MakeOffer(caller, collection, tokenID, amount, payment, req.ExpiresAt)
	observability.Market().RecordOperation("make_offer", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.refreshEscrowGauge()
	writeJSON(w, http.StatusOK, map[string]any{"offer": offerToPayload(offer)})
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	var req offerActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.engine.CancelOffer(caller, collection, tokenID)
	observability.Market().RecordOperation("cancel_offer", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.refreshEscrowGauge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req offerActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	bidder, err := parseAddress(req.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := s.engine.AcceptOffer(caller, collection, tokenID, bidder)
	observability.Market().RecordOperation("accept_offer", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.refreshEscrowGauge()
	writeJSON(w, http.StatusOK, map[string]any{"sale": saleToPayload(sale)})
}

func (s *Server) handleReclaimOffer(w http.ResponseWriter, r *http.Request) {
	var req offerActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.engine.ReclaimExpiredOfferEscrow(caller, collection, tokenID)
	observability.Market().RecordOperation("reclaim_offer", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.refreshEscrowGauge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reclaimed"})
}

// refreshEscrowGauge reports the vault balance after escrow-moving operations.
func (s *Server) refreshEscrowGauge() {
	account, err := s.manager.GetAccount(market.EscrowVault)
	if err != nil {
		s.logger.Warn("read escrow vault", "error", err)
		return
	}
	observability.Market().SetEscrowLocked(account.Balance)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress(r.URL.Query().Get("collection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokenID, err := parseAmount(r.URL.Query().Get("tokenId"), "tokenId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	listing, ok, err := s.engine.GetListing(collection, tokenID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, market.ErrListingNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": listingToPayload(listing)})
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress(r.URL.Query().Get("collection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokenID, err := parseAmount(r.URL.Query().Get("tokenId"), "tokenId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	bidder, err := parseAddress(r.URL.Query().Get("bidder"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offer, ok, err := s.engine.GetOffer(collection, tokenID, bidder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, market.ErrOfferNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offer": offerToPayload(offer)})
}

func (s *Server) handleEscrowBalance(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := s.engine.EscrowBalance(address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": formatAddress(address),
		"locked":  balance.String(),
	})
}

func rangeParams(r *http.Request) (uint64, int) {
	start := uint64(1)
	if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil && parsed > 0 {
			start = parsed
		}
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	return start, limit
}

func (s *Server) handleLedgerListings(w http.ResponseWriter, r *http.Request) {
	start, limit := rangeParams(r)
	records, err := s.engine.Ledger().ListingsRange(start, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	payloads := make([]*historicalListingPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, historicalListingToPayload(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": payloads})
}

func (s *Server) handleLedgerOffers(w http.ResponseWriter, r *http.Request) {
	start, limit := rangeParams(r)
	records, err := s.engine.Ledger().OffersRange(start, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	payloads := make([]*historicalOfferPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, historicalOfferToPayload(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": payloads})
}

func (s *Server) handleLedgerSales(w http.ResponseWriter, r *http.Request) {
	start, limit := rangeParams(r)
	records, err := s.engine.Ledger().SalesRange(start, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	payloads := make([]*salePayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, saleToPayload(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": payloads})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	module := strings.TrimSpace(req.Module)
	if module == "" {
		module = "market"
	}
	if err := s.manager.SetPaused(module, req.Paused); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("circuit breaker toggled", "module", module, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]any{"module": module, "paused": req.Paused})
}

func (s *Server) handleSetRoyalty(w http.ResponseWriter, r *http.Request) {
	var req royaltyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := parseOptionalAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.SetRoyalty(collection, assets.RoyaltyConfig{Bps: req.Bps, Recipient: recipient}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokenID, err := parseAmount(req.TokenID, "tokenId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Mint(collection, tokenID, owner); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, collection, tokenID, err := parseItemArgs(req.Caller, req.Collection, req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	operator, err := parseOptionalAddress(req.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Approve(caller, collection, tokenID, operator); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	var cursor int64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid cursor"))
			return
		}
		cursor = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor int64) error {
	updates, cancel, backlog, err := s.hub.Subscribe(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	for _, stored := range backlog {
		if err := writeStoredEvent(ctx, conn, stored); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case stored, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStoredEvent(ctx, conn, stored); err != nil {
				return err
			}
		}
	}
}

func writeStoredEvent(ctx context.Context, conn *websocket.Conn, stored StoredEvent) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseItemArgs(rawCaller, rawCollection, rawTokenID string) ([20]byte, [20]byte, *big.Int, error) {
	caller, err := parseAddress(rawCaller)
	if err != nil {
		return caller, [20]byte{}, nil, err
	}
	collection, err := parseAddress(rawCollection)
	if err != nil {
		return caller, collection, nil, err
	}
	tokenID, err := parseAmount(rawTokenID, "tokenId")
	if err != nil {
		return caller, collection, nil, err
	}
	return caller, collection, tokenID, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeEngineError maps engine sentinels onto HTTP statuses: absence is 404,
// conflicts are 409, payment mismatches are 402, the circuit breaker is 503,
// everything else caller-induced is 400.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, market.ErrListingNotFound),
		errors.Is(err, market.ErrOfferNotFound),
		errors.Is(err, assets.ErrTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrOfferAlreadyExists),
		errors.Is(err, assets.ErrTokenExists):
		status = http.StatusConflict
	case errors.Is(err, market.ErrWrongPaymentAmount),
		errors.Is(err, market.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotSeller),
		errors.Is(err, market.ErrNotApproved),
		errors.Is(err, assets.ErrNotTokenOwner):
		status = http.StatusForbidden
	}
	writeError(w, status, err)
}
