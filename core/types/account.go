package types

import "math/big"

// Account holds the native-currency balance tracked for a marketplace
// participant or module vault.
type Account struct {
	Balance *big.Int
	Nonce   uint64
}

// Clone returns a deep copy so callers can mutate the result without touching
// the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}
