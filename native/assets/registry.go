package assets

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	nativecommon "nftmarket/native/common"
)

var (
	ErrTokenNotFound = errors.New("assets: token not found")
	ErrTokenExists   = errors.New("assets: token already minted")
	ErrNotTokenOwner = errors.New("assets: caller does not own token")
	ErrWrongFrom     = errors.New("assets: transfer from non-owner")
)

// Store is the key-value surface the registry persists through. The state
// manager satisfies it, so registry writes participate in engine snapshots.
type Store interface {
	KVGet(key []byte) ([]byte, bool, error)
	KVPut(key, value []byte) error
	KVDelete(key []byte) error
}

// Registry is the default in-state token registry: ownership, per-token
// operator approvals and per-collection royalty policy. Deployments bridging
// an external registry replace it behind the engine's provider interface.
type Registry struct {
	store  Store
	pauses nativecommon.PauseView
}

// NewRegistry constructs a registry over the supplied store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// SetPauses attaches the pause view consulted before every write. Reads stay
// available while the module is paused.
func (r *Registry) SetPauses(pauses nativecommon.PauseView) { r.pauses = pauses }

const moduleName = "assets"

const (
	ownerPrefix    = "assets/owner/"
	approvedPrefix = "assets/approved/"
	royaltyPrefix  = "assets/royalty/"
)

func tokenKey(prefix string, collection [20]byte, tokenID *big.Int) []byte {
	var word [32]byte
	if tokenID != nil {
		b := tokenID.Bytes()
		if len(b) > 32 {
			b = b[len(b)-32:]
		}
		copy(word[32-len(b):], b)
	}
	id := ethcrypto.Keccak256Hash(collection[:], word[:])
	return []byte(prefix + hex.EncodeToString(id[:]))
}

func royaltyKey(collection [20]byte) []byte {
	return []byte(royaltyPrefix + hex.EncodeToString(collection[:]))
}

func (r *Registry) ready() error {
	if r == nil || r.store == nil {
		return errors.New("assets: registry not configured")
	}
	return nil
}

// guard gates mutating operations behind the circuit breaker.
func (r *Registry) guard() error {
	if err := r.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(r.pauses, moduleName)
}

// Mint records initial ownership of a token. Minting an existing token fails.
func (r *Registry) Mint(collection [20]byte, tokenID *big.Int, owner [20]byte) error {
	if err := r.guard(); err != nil {
		return err
	}
	key := tokenKey(ownerPrefix, collection, tokenID)
	if _, ok, err := r.store.KVGet(key); err != nil {
		return err
	} else if ok {
		return ErrTokenExists
	}
	return r.store.KVPut(key, owner[:])
}

// OwnerOf resolves the current owner of a token.
func (r *Registry) OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, error) {
	var owner [20]byte
	if err := r.ready(); err != nil {
		return owner, err
	}
	raw, ok, err := r.store.KVGet(tokenKey(ownerPrefix, collection, tokenID))
	if err != nil {
		return owner, err
	}
	if !ok {
		return owner, ErrTokenNotFound
	}
	if len(raw) != len(owner) {
		return owner, fmt.Errorf("assets: malformed owner record (%d bytes)", len(raw))
	}
	copy(owner[:], raw)
	return owner, nil
}

// Approve grants or revokes transfer rights on a token to an operator. Only
// the current owner may approve; the zero operator clears the approval.
func (r *Registry) Approve(caller [20]byte, collection [20]byte, tokenID *big.Int, operator [20]byte) error {
	if err := r.guard(); err != nil {
		return err
	}
	owner, err := r.OwnerOf(collection, tokenID)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotTokenOwner
	}
	key := tokenKey(approvedPrefix, collection, tokenID)
	if operator == ([20]byte{}) {
		return r.store.KVDelete(key)
	}
	return r.store.KVPut(key, operator[:])
}

// IsTransferApproved reports whether the operator may transfer the token.
func (r *Registry) IsTransferApproved(collection [20]byte, tokenID *big.Int, operator [20]byte) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	raw, ok, err := r.store.KVGet(tokenKey(approvedPrefix, collection, tokenID))
	if err != nil {
		return false, err
	}
	if !ok || len(raw) != 20 {
		return false, nil
	}
	var approved [20]byte
	copy(approved[:], raw)
	return approved == operator, nil
}

// Transfer moves the token to a new owner and clears any standing approval.
// The from address must match the current owner.
func (r *Registry) Transfer(collection [20]byte, tokenID *big.Int, from, to [20]byte) error {
	if err := r.guard(); err != nil {
		return err
	}
	owner, err := r.OwnerOf(collection, tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrWrongFrom
	}
	if err := r.store.KVPut(tokenKey(ownerPrefix, collection, tokenID), to[:]); err != nil {
		return err
	}
	return r.store.KVDelete(tokenKey(approvedPrefix, collection, tokenID))
}

// RoyaltyConfig is the per-collection royalty policy applied to sales.
type RoyaltyConfig struct {
	Bps       uint32
	Recipient [20]byte
}

// SetRoyalty stores the royalty policy for a collection. A zero-bps config
// clears the policy.
func (r *Registry) SetRoyalty(collection [20]byte, cfg RoyaltyConfig) error {
	if err := r.guard(); err != nil {
		return err
	}
	if cfg.Bps == 0 {
		return r.store.KVDelete(royaltyKey(collection))
	}
	if cfg.Bps > 10_000 {
		return fmt.Errorf("assets: royalty bps %d exceeds 10000", cfg.Bps)
	}
	raw, err := rlp.EncodeToBytes(&cfg)
	if err != nil {
		return err
	}
	return r.store.KVPut(royaltyKey(collection), raw)
}

// RoyaltyInfo resolves the royalty owed on a sale of the given collection at
// the given price. Collections without a policy owe nothing.
func (r *Registry) RoyaltyInfo(collection [20]byte, salePrice *big.Int) (*big.Int, [20]byte, error) {
	var recipient [20]byte
	if err := r.ready(); err != nil {
		return nil, recipient, err
	}
	raw, ok, err := r.store.KVGet(royaltyKey(collection))
	if err != nil {
		return nil, recipient, err
	}
	if !ok {
		return big.NewInt(0), recipient, nil
	}
	var cfg RoyaltyConfig
	if err := rlp.DecodeBytes(raw, &cfg); err != nil {
		return nil, recipient, fmt.Errorf("assets: decode royalty config: %w", err)
	}
	if salePrice == nil || salePrice.Sign() <= 0 || cfg.Bps == 0 {
		return big.NewInt(0), cfg.Recipient, nil
	}
	amount := new(big.Int).Mul(salePrice, big.NewInt(int64(cfg.Bps)))
	amount = amount.Div(amount, big.NewInt(10_000))
	return amount, cfg.Recipient, nil
}
