package bridge

import (
	"fmt"

	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// EscrowAddress is the module account holding escrowed bonds. It is
// derived from the module name, so every node computes the same address
// and no key can ever spend from it.
var EscrowAddress = crypto.AddressHash([]byte("bridge/escrow"))

// Escrow holds the bonds of pending submissions in a module account and
// tracks the outstanding amount per header hash. Genesis is unbonded; every
// other live submission has exactly one outstanding bond.
//
// NOTE: Not goroutine-safe. The bridge serializes all access.
type Escrow struct {
	bank          Bank
	moduleAddr    crypto.Address
	retentionAddr crypto.Address // receives the non-caller half of splits; zero address burns

	outstanding map[string]uint64
	total       uint64
}

// NewEscrow returns an escrow over the given bank. An empty retention
// address defaults to the zero address.
func NewEscrow(bank Bank, moduleAddr, retentionAddr crypto.Address) *Escrow {
	if len(retentionAddr) == 0 {
		retentionAddr = make([]byte, crypto.AddressSize)
	}
	return &Escrow{
		bank:          bank,
		moduleAddr:    moduleAddr,
		retentionAddr: retentionAddr,
		outstanding:   make(map[string]uint64),
	}
}

// Lock transfers the bond from the submitter into the module account and
// records it against headerHash.
func (e *Escrow) Lock(submitter crypto.Address, headerHash tmbytes.HexBytes, amount uint64) error {
	if _, ok := e.outstanding[string(headerHash)]; ok {
		return fmt.Errorf("bond already locked for header %X", headerHash)
	}
	if err := e.bank.Transfer(submitter, e.moduleAddr, amount); err != nil {
		return err
	}
	e.outstanding[string(headerHash)] = amount
	e.total += amount
	return nil
}

// Restore records an outstanding bond without moving value. Used to
// rebuild escrow state from the store after a restart: the module account
// already holds the funds.
func (e *Escrow) Restore(headerHash tmbytes.HexBytes, amount uint64) error {
	if _, ok := e.outstanding[string(headerHash)]; ok {
		return fmt.Errorf("bond already locked for header %X", headerHash)
	}
	e.outstanding[string(headerHash)] = amount
	e.total += amount
	return nil
}

// Release pays the full outstanding bond for headerHash to a single
// recipient and clears the entry. Returns the amount paid.
func (e *Escrow) Release(headerHash tmbytes.HexBytes, to crypto.Address) (uint64, error) {
	amounts, err := e.ReleaseAll([]tmbytes.HexBytes{headerHash}, []crypto.Address{to})
	if err != nil {
		return 0, err
	}
	return amounts[0], nil
}

// ReleaseAll pays the full outstanding bond for every hash to the matching
// recipient and clears the entries, all or nothing: if any transfer fails,
// the already-executed payouts are reversed and no entry is cleared.
// Returns the amount paid per hash.
func (e *Escrow) ReleaseAll(headerHashes []tmbytes.HexBytes, to []crypto.Address) ([]uint64, error) {
	if len(headerHashes) != len(to) {
		return nil, fmt.Errorf("got %d hashes but %d recipients", len(headerHashes), len(to))
	}

	amounts := make([]uint64, len(headerHashes))
	transfers := make([]transfer, len(headerHashes))
	seen := make(map[string]bool, len(headerHashes))
	for i, hash := range headerHashes {
		amount, err := e.lookup(hash, seen)
		if err != nil {
			return nil, err
		}
		amounts[i] = amount
		transfers[i] = transfer{from: e.moduleAddr, to: to[i], amount: amount}
	}

	if err := e.payout(transfers); err != nil {
		return nil, err
	}
	for i, hash := range headerHashes {
		delete(e.outstanding, string(hash))
		e.total -= amounts[i]
	}
	return amounts, nil
}

// Split pays half of the outstanding bond for headerHash to the caller and
// the remainder to the retention address, then clears the entry. Odd
// amounts round the retained half up. Returns the two amounts paid.
func (e *Escrow) Split(headerHash tmbytes.HexBytes, caller crypto.Address) (uint64, uint64, error) {
	callerAmounts, retainedAmounts, err := e.SplitAll([]tmbytes.HexBytes{headerHash}, caller)
	if err != nil {
		return 0, 0, err
	}
	return callerAmounts[0], retainedAmounts[0], nil
}

// SplitAll splits the outstanding bond of every hash between the caller and
// the retention address and clears the entries, all or nothing. Returns the
// caller and retained amounts per hash.
func (e *Escrow) SplitAll(headerHashes []tmbytes.HexBytes, caller crypto.Address) ([]uint64, []uint64, error) {
	toCaller := make([]uint64, len(headerHashes))
	retained := make([]uint64, len(headerHashes))
	transfers := make([]transfer, 0, 2*len(headerHashes))
	seen := make(map[string]bool, len(headerHashes))
	for i, hash := range headerHashes {
		amount, err := e.lookup(hash, seen)
		if err != nil {
			return nil, nil, err
		}
		toCaller[i] = amount / 2
		retained[i] = amount - toCaller[i]
		transfers = append(transfers,
			transfer{from: e.moduleAddr, to: caller, amount: toCaller[i]},
			transfer{from: e.moduleAddr, to: e.retentionAddr, amount: retained[i]},
		)
	}

	if err := e.payout(transfers); err != nil {
		return nil, nil, err
	}
	for i, hash := range headerHashes {
		delete(e.outstanding, string(hash))
		e.total -= toCaller[i] + retained[i]
	}
	return toCaller, retained, nil
}

func (e *Escrow) lookup(headerHash tmbytes.HexBytes, seen map[string]bool) (uint64, error) {
	key := string(headerHash)
	if seen[key] {
		return 0, fmt.Errorf("duplicate header %X in payout batch", headerHash)
	}
	seen[key] = true
	amount, ok := e.outstanding[key]
	if !ok {
		return 0, fmt.Errorf("no outstanding bond for header %X", headerHash)
	}
	return amount, nil
}

// transfer is one leg of a payout batch.
type transfer struct {
	from, to crypto.Address
	amount   uint64
}

// payout executes the legs in order. When one fails, the already-executed
// legs are reversed, last to first, before the error is returned, so a
// failed payout leaves every balance untouched. A failed reversal panics.
func (e *Escrow) payout(transfers []transfer) error {
	for i, tr := range transfers {
		if err := e.bank.Transfer(tr.from, tr.to, tr.amount); err != nil {
			for j := i - 1; j >= 0; j-- {
				rv := transfers[j]
				if cerr := e.bank.Transfer(rv.to, rv.from, rv.amount); cerr != nil {
					panic(fmt.Sprintf("escrow cannot reverse payout of %d to %X: %v", rv.amount, rv.to, cerr))
				}
			}
			return err
		}
	}
	return nil
}

// Outstanding returns the bond currently locked for headerHash, or 0.
func (e *Escrow) Outstanding(headerHash tmbytes.HexBytes) uint64 {
	return e.outstanding[string(headerHash)]
}

// TotalLocked returns the sum of all outstanding bonds.
func (e *Escrow) TotalLocked() uint64 {
	return e.total
}

// ModuleAddress returns the escrow's module account address.
func (e *Escrow) ModuleAddress() crypto.Address {
	return e.moduleAddr
}

// RetentionAddress returns the address receiving the retained half of
// splits.
func (e *Escrow) RetentionAddress() crypto.Address {
	return e.retentionAddr
}
