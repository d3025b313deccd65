package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"nftmarket/core/types"
)

// SQLiteStore manages idempotency keys, the audit log and the mirrored event
// stream persisted alongside the market state.
type SQLiteStore struct {
	db *sql.DB
}

// ErrIdempotencyMismatch is returned when a key is reused with a different payload.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            client_id TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(client_id, idempotency_key)
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            client_id TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            request_body BLOB,
            response_status INTEGER,
            response_body BLOB
        );`,
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StoredResponse represents a cached response for an idempotency key.
type StoredResponse struct {
	Status int
	Body   []byte
}

// LookupIdempotency returns the cached response for the key, if any. Reusing
// a key with a different request hash is an error rather than a replay.
func (s *SQLiteStore) LookupIdempotency(ctx context.Context, clientID, key, requestHash string) (*StoredResponse, error) {
	const query = `SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE client_id = ? AND idempotency_key = ?`
	row := s.db.QueryRowContext(ctx, query, clientID, key)
	var status int
	var body []byte
	var storedHash string
	if err := row.Scan(&status, &body, &storedHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	return &StoredResponse{Status: status, Body: body}, nil
}

func (s *SQLiteStore) SaveIdempotency(ctx context.Context, clientID, key, requestHash string, status int, body []byte) error {
	const stmt = `INSERT OR IGNORE INTO idempotency_keys (client_id, idempotency_key, request_hash, response_status, response_body) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, clientID, key, requestHash, status, body)
	return err
}

// AuditEntry captures one API interaction for the audit trail.
type AuditEntry struct {
	ClientID       string
	Method         string
	Path           string
	RequestBody    []byte
	ResponseStatus int
	ResponseBody   []byte
}

func (s *SQLiteStore) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	const stmt = `INSERT INTO audit_log (client_id, method, path, request_body, response_status, response_body) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, entry.ClientID, entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.ResponseBody)
	return err
}

// StoredEvent is one mirrored engine event with its stream sequence.
type StoredEvent struct {
	Sequence  int64        `json:"sequence"`
	Type      string       `json:"type"`
	Event     *types.Event `json:"event"`
	CreatedAt time.Time    `json:"createdAt"`
}

// InsertEvent appends the event to the mirrored stream and returns its
// sequence number.
func (s *SQLiteStore) InsertEvent(ctx context.Context, evt *types.Event) (int64, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return 0, err
	}
	const stmt = `INSERT INTO events (type, payload, created_at) VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, stmt, evt.Type, string(payload), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// EventsSince returns up to limit events with sequence strictly greater than
// the cursor, oldest first.
func (s *SQLiteStore) EventsSince(ctx context.Context, cursor int64, limit int) ([]StoredEvent, error) {
	const query = `SELECT sequence, type, payload, created_at FROM events WHERE sequence > ? ORDER BY sequence ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var stored StoredEvent
		var payload string
		if err := rows.Scan(&stored.Sequence, &stored.Type, &payload, &stored.CreatedAt); err != nil {
			return nil, err
		}
		event := &types.Event{}
		if err := json.Unmarshal([]byte(payload), event); err != nil {
			return nil, err
		}
		stored.Event = event
		out = append(out, stored)
	}
	return out, rows.Err()
}

// LastEventSequence returns the newest sequence in the mirrored stream.
func (s *SQLiteStore) LastEventSequence(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(MAX(sequence), 0) FROM events`
	var sequence int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&sequence); err != nil {
		return 0, err
	}
	return sequence, nil
}
