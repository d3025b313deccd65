package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nhooyr.io/websocket"

	"nftmarket/core/types"
)

// StreamEvent is one mirrored engine event as published by the market daemon.
type StreamEvent struct {
	Sequence  int64        `json:"sequence"`
	Type      string       `json:"type"`
	Event     *types.Event `json:"event"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Consumer tails the market event stream and archives every event. The cursor
// persisted in the store drives replay after a disconnect, so events are never
// skipped and duplicates are dropped by the store.
type Consumer struct {
	sourceURL string
	store     *Store
	backoff   time.Duration
	logger    *slog.Logger
}

func NewConsumer(sourceURL string, store *Store, backoff time.Duration, logger *slog.Logger) *Consumer {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{sourceURL: sourceURL, store: store, backoff: backoff, logger: logger}
}

// Run consumes the stream until the context is cancelled, reconnecting with a
// fixed backoff on any failure.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream disconnected", "error", err, "retry_in", c.backoff.String())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	cursor, err := c.store.Cursor()
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	url := fmt.Sprintf("%s?cursor=%d", c.sourceURL, cursor)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.sourceURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "consumer stopped")
	c.logger.Info("stream connected", "cursor", cursor)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var evt StreamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Warn("skipping malformed event", "error", err)
			continue
		}
		if err := c.apply(evt); err != nil {
			return err
		}
	}
}

func (c *Consumer) apply(evt StreamEvent) error {
	if evt.Sequence <= 0 {
		return errors.New("event without sequence")
	}
	if err := c.store.ApplyEvent(evt); err != nil {
		return fmt.Errorf("archive event %d: %w", evt.Sequence, err)
	}
	if err := c.store.SetCursor(evt.Sequence); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}
