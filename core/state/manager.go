package state

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/core/types"
	"nftmarket/storage"
)

// Manager mediates every state read and write against the backing database
// and journals writes so an open snapshot can be reverted. Engines treat it
// as the single source of truth for accounts, market records and parameters.
type Manager struct {
	db storage.Database

	mu      sync.Mutex
	journal []journalEntry
	open    int
}

type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// NewManager constructs a manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet reads a raw value. Absence is reported through the boolean.
func (m *Manager) KVGet(key []byte) ([]byte, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, fmt.Errorf("state: manager not configured")
	}
	return m.db.Get(key)
}

// KVPut writes a raw value, journaling the previous value while a snapshot
// is open.
func (m *Manager) KVPut(key, value []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(key); err != nil {
		return err
	}
	return m.db.Put(key, value)
}

// KVDelete removes a key, journaling the previous value while a snapshot is
// open.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(key); err != nil {
		return err
	}
	return m.db.Delete(key)
}

func (m *Manager) record(key []byte) error {
	if m.open == 0 {
		return nil
	}
	prev, existed, err := m.db.Get(key)
	if err != nil {
		return err
	}
	m.journal = append(m.journal, journalEntry{key: string(key), prev: prev, existed: existed})
	return nil
}

// Snapshot opens a revision. The returned handle is passed to either
// RevertToSnapshot or DiscardSnapshot; snapshots nest.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open++
	return len(m.journal)
}

// RevertToSnapshot undoes every write journaled since the snapshot was
// opened, restoring prior values and deletions.
func (m *Manager) RevertToSnapshot(revision int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revision < 0 || revision > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= revision; i-- {
		entry := m.journal[i]
		if entry.existed {
			_ = m.db.Put([]byte(entry.key), entry.prev)
		} else {
			_ = m.db.Delete([]byte(entry.key))
		}
	}
	m.journal = m.journal[:revision]
	if m.open > 0 {
		m.open--
	}
	if m.open == 0 {
		m.journal = m.journal[:0]
	}
}

// DiscardSnapshot commits the snapshot: journaled entries are kept only while
// an enclosing snapshot remains open.
func (m *Manager) DiscardSnapshot(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open > 0 {
		m.open--
	}
	if m.open == 0 {
		m.journal = m.journal[:0]
	}
}

const accountPrefix = "accounts/"

type storedAccount struct {
	Balance *big.Int
	Nonce   uint64
}

func accountKey(addr [20]byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr[:]))
}

// GetAccount loads the native account for the address. Unknown addresses
// resolve to a zero-balance account rather than an error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, ok, err := m.KVGet(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	balance := stored.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return &types.Account{Balance: balance, Nonce: stored.Nonce}, nil
}

// PutAccount persists the native account for the address.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	raw, err := rlp.EncodeToBytes(&storedAccount{Balance: balance, Nonce: account.Nonce})
	if err != nil {
		return err
	}
	return m.KVPut(accountKey(addr), raw)
}
