package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Validate rejects configurations the daemon cannot safely run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if cfg.Fees.FeeBps > 10_000 {
		return fmt.Errorf("config: Fees.FeeBps %d exceeds 10000", cfg.Fees.FeeBps)
	}
	if cfg.Fees.FeeBps > 0 {
		if _, err := ParseAddress(cfg.Fees.FeeRecipient); err != nil {
			return fmt.Errorf("config: Fees.FeeRecipient: %w", err)
		}
	}
	if cfg.Quota.MaxRequestsPerEpoch > 0 && cfg.Quota.EpochSeconds == 0 {
		return fmt.Errorf("config: Quota.EpochSeconds required when quota is enabled")
	}
	return nil
}

// ParseAddress decodes a 20-byte hex address, accepting an optional 0x prefix.
func ParseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("empty address")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}
