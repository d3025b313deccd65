package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// SchemaVersion identifies the on-disk layout of market state. Bump on any
// incompatible key or encoding change.
const SchemaVersion uint64 = 1

const versionKey = "meta/schema-version"

// SchemaVersionOf reads the schema version recorded in the database. A fresh
// database reports zero.
func (m *Manager) SchemaVersionOf() (uint64, error) {
	raw, ok, err := m.KVGet([]byte(versionKey))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var version uint64
	if err := rlp.DecodeBytes(raw, &version); err != nil {
		return 0, fmt.Errorf("state: decode schema version: %w", err)
	}
	return version, nil
}

// EnsureSchemaVersion stamps a fresh database with the current schema version
// and rejects databases written by an incompatible layout.
func (m *Manager) EnsureSchemaVersion() error {
	version, err := m.SchemaVersionOf()
	if err != nil {
		return err
	}
	switch version {
	case 0:
		raw, err := rlp.EncodeToBytes(SchemaVersion)
		if err != nil {
			return err
		}
		return m.KVPut([]byte(versionKey), raw)
	case SchemaVersion:
		return nil
	default:
		return fmt.Errorf("state: schema version %d not supported (want %d)", version, SchemaVersion)
	}
}
