package bridge

import (
	"fmt"
	"sync"

	"github.com/oprelay/oprelay/crypto"
)

// Bank is the host ledger's value-transfer primitive. Transfers are assumed
// atomic and non-reentrant; the bridge never calls back into itself through
// a Bank.
type Bank interface {
	Transfer(from, to crypto.Address, amount uint64) error
}

// ErrInsufficientFunds is returned by a Bank when the source account cannot
// cover the transfer.
type ErrInsufficientFunds struct {
	From    crypto.Address
	Balance uint64
	Amount  uint64
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: account %X holds %d, needs %d", e.From, e.Balance, e.Amount)
}

// MapBank is an in-process Bank over a balance map. The node seeds it from
// the genesis allocations; tests seed it directly.
//
// Safe for concurrent use by multiple goroutines.
type MapBank struct {
	mtx      sync.RWMutex
	balances map[string]uint64
}

// NewMapBank returns an empty MapBank.
func NewMapBank() *MapBank {
	return &MapBank{balances: make(map[string]uint64)}
}

// Deposit credits amount to addr out of thin air. Used for genesis
// allocations and test setup.
func (b *MapBank) Deposit(addr crypto.Address, amount uint64) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.balances[string(addr)] += amount
}

// Balance returns the current balance of addr.
func (b *MapBank) Balance(addr crypto.Address) uint64 {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return b.balances[string(addr)]
}

// Transfer moves amount from one account to another. A transfer to the
// zero address is a burn in practice: the zero account has no key holder.
func (b *MapBank) Transfer(from, to crypto.Address, amount uint64) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	balance := b.balances[string(from)]
	if balance < amount {
		return ErrInsufficientFunds{From: from, Balance: balance, Amount: amount}
	}
	b.balances[string(from)] = balance - amount
	b.balances[string(to)] += amount
	return nil
}
