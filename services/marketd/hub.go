package main

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/native/market"
	"nftmarket/observability"
)

const (
	subscriberBuffer = 64
	backlogLimit     = 512
)

// EventHub receives engine events, mirrors them into the sqlite stream and
// fans them out to websocket subscribers. A slow subscriber loses events
// rather than stalling the engine; the cursor replay covers the gap.
type EventHub struct {
	store  *SQLiteStore
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int64]chan StoredEvent
	nextID int64
}

func NewEventHub(store *SQLiteStore, logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		store:  store,
		logger: logger,
		subs:   make(map[int64]chan StoredEvent),
	}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	h.recordMetrics(payload)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sequence, err := h.store.InsertEvent(ctx, payload)
	if err != nil {
		h.logger.Error("mirror event", "error", err, "type", payload.Type)
		return
	}
	stored := StoredEvent{Sequence: sequence, Type: payload.Type, Event: payload, CreatedAt: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- stored:
		default:
			h.logger.Warn("dropping event for slow subscriber", "subscriber", id, "sequence", sequence)
		}
	}
}

func (h *EventHub) recordMetrics(evt *types.Event) {
	if evt.Type != market.EventTypeSold {
		return
	}
	saleType := evt.Attributes["saleType"]
	price := new(big.Int)
	if raw, ok := evt.Attributes["price"]; ok {
		price.SetString(raw, 10)
	}
	observability.Market().RecordSale(saleType, price)
}

// Subscribe registers a listener. Events with sequence greater than the
// cursor are returned as backlog; live events follow on the channel.
func (h *EventHub) Subscribe(ctx context.Context, cursor int64) (<-chan StoredEvent, func(), []StoredEvent, error) {
	backlog, err := h.store.EventsSince(ctx, cursor, backlogLimit)
	if err != nil {
		return nil, nil, nil, err
	}

	ch := make(chan StoredEvent, subscriberBuffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return ch, cancel, backlog, nil
}
