package bridge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// flakyBank refuses the nth transfer, counting every call including
// reversals.
type flakyBank struct {
	*MapBank
	fail  func(n int) bool
	count int
}

func (b *flakyBank) Transfer(from, to crypto.Address, amount uint64) error {
	b.count++
	if b.fail != nil && b.fail(b.count) {
		return fmt.Errorf("transfer %d refused", b.count)
	}
	return b.MapBank.Transfer(from, to, amount)
}

func TestEscrowLockRelease(t *testing.T) {
	bank := NewMapBank()
	alice, bob := testAddr("alice"), testAddr("bob")
	module, retention := testAddr("module"), testAddr("retention")
	bank.Deposit(alice, 1_000)

	escrow := NewEscrow(bank, module, retention)
	h1 := testHash("header-1")

	require.NoError(t, escrow.Lock(alice, h1, 100))
	assert.EqualValues(t, 900, bank.Balance(alice))
	assert.EqualValues(t, 100, bank.Balance(module))
	assert.EqualValues(t, 100, escrow.Outstanding(h1))
	assert.EqualValues(t, 100, escrow.TotalLocked())

	// one bond per header
	require.Error(t, escrow.Lock(alice, h1, 100))
	assert.EqualValues(t, 900, bank.Balance(alice))

	var fundsErr ErrInsufficientFunds
	err := escrow.Lock(testAddr("poor"), testHash("header-2"), 100)
	require.ErrorAs(t, err, &fundsErr)
	assert.EqualValues(t, 0, escrow.Outstanding(testHash("header-2")))

	paid, err := escrow.Release(h1, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 100, paid)
	assert.EqualValues(t, 100, bank.Balance(bob))
	assert.EqualValues(t, 0, bank.Balance(module))
	assert.EqualValues(t, 0, escrow.Outstanding(h1))
	assert.EqualValues(t, 0, escrow.TotalLocked())

	_, err = escrow.Release(h1, bob)
	require.Error(t, err)
}

func TestEscrowSplit(t *testing.T) {
	bank := NewMapBank()
	alice, challenger := testAddr("alice"), testAddr("challenger")
	module, retention := testAddr("module"), testAddr("retention")
	bank.Deposit(alice, 1_000)

	escrow := NewEscrow(bank, module, retention)
	h1 := testHash("header-1")
	require.NoError(t, escrow.Lock(alice, h1, 101))

	// odd bonds round the retained half up
	toCaller, retained, err := escrow.Split(h1, challenger)
	require.NoError(t, err)
	assert.EqualValues(t, 50, toCaller)
	assert.EqualValues(t, 51, retained)
	assert.EqualValues(t, 50, bank.Balance(challenger))
	assert.EqualValues(t, 51, bank.Balance(retention))
	assert.EqualValues(t, 0, bank.Balance(module))
	assert.EqualValues(t, 0, escrow.TotalLocked())

	_, _, err = escrow.Split(h1, challenger)
	require.Error(t, err)
}

func TestEscrowSplitBurns(t *testing.T) {
	bank := NewMapBank()
	alice := testAddr("alice")
	bank.Deposit(alice, 1_000)

	// no retention address: the retained half goes to the zero address
	escrow := NewEscrow(bank, testAddr("module"), nil)
	zero := make(crypto.Address, crypto.AddressSize)
	assert.Equal(t, zero, escrow.RetentionAddress())

	h1 := testHash("header-1")
	require.NoError(t, escrow.Lock(alice, h1, 100))
	_, retained, err := escrow.Split(h1, testAddr("challenger"))
	require.NoError(t, err)
	assert.EqualValues(t, 50, retained)
	assert.EqualValues(t, 50, bank.Balance(zero))
}

func TestEscrowReleaseAllReversal(t *testing.T) {
	bank := &flakyBank{MapBank: NewMapBank()}
	alice, r1, r2 := testAddr("alice"), testAddr("r1"), testAddr("r2")
	module, retention := testAddr("module"), testAddr("retention")
	bank.Deposit(alice, 1_000)

	escrow := NewEscrow(bank, module, retention)
	h1, h2 := testHash("header-1"), testHash("header-2")
	require.NoError(t, escrow.Lock(alice, h1, 100))
	require.NoError(t, escrow.Lock(alice, h2, 100))

	// argument and lookup failures happen before any leg executes
	_, err := escrow.ReleaseAll([]tmbytes.HexBytes{h1}, []crypto.Address{r1, r2})
	require.Error(t, err)
	_, err = escrow.ReleaseAll([]tmbytes.HexBytes{h1, h1}, []crypto.Address{r1, r2})
	require.Error(t, err)
	_, err = escrow.ReleaseAll([]tmbytes.HexBytes{h1, testHash("nothing")}, []crypto.Address{r1, r2})
	require.Error(t, err)
	assert.Equal(t, 2, bank.count)

	// the second leg fails: the first is reversed and nothing is cleared
	bank.fail = func(n int) bool { return n == 4 }
	_, err = escrow.ReleaseAll([]tmbytes.HexBytes{h1, h2}, []crypto.Address{r1, r2})
	require.Error(t, err)
	assert.EqualValues(t, 0, bank.Balance(r1))
	assert.EqualValues(t, 0, bank.Balance(r2))
	assert.EqualValues(t, 200, bank.Balance(module))
	assert.EqualValues(t, 100, escrow.Outstanding(h1))
	assert.EqualValues(t, 100, escrow.Outstanding(h2))
	assert.EqualValues(t, 200, escrow.TotalLocked())

	bank.fail = nil
	amounts, err := escrow.ReleaseAll([]tmbytes.HexBytes{h1, h2}, []crypto.Address{r1, r2})
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 100}, amounts)
	assert.EqualValues(t, 100, bank.Balance(r1))
	assert.EqualValues(t, 100, bank.Balance(r2))
	assert.EqualValues(t, 0, bank.Balance(module))
	assert.EqualValues(t, 0, escrow.TotalLocked())
}

func TestEscrowSplitAllReversal(t *testing.T) {
	bank := &flakyBank{MapBank: NewMapBank()}
	alice, challenger := testAddr("alice"), testAddr("challenger")
	module, retention := testAddr("module"), testAddr("retention")
	bank.Deposit(alice, 1_000)

	escrow := NewEscrow(bank, module, retention)
	h1, h2 := testHash("header-1"), testHash("header-2")
	require.NoError(t, escrow.Lock(alice, h1, 100))
	require.NoError(t, escrow.Lock(alice, h2, 100))

	// the last of four legs fails: the first three are reversed in order
	bank.fail = func(n int) bool { return n == 6 }
	_, _, err := escrow.SplitAll([]tmbytes.HexBytes{h1, h2}, challenger)
	require.Error(t, err)
	assert.EqualValues(t, 0, bank.Balance(challenger))
	assert.EqualValues(t, 0, bank.Balance(retention))
	assert.EqualValues(t, 200, bank.Balance(module))
	assert.EqualValues(t, 200, escrow.TotalLocked())

	// a reversal that itself fails cannot leave consistent balances
	bank.fail = func(n int) bool { return n >= 11 }
	require.Panics(t, func() {
		_, _, _ = escrow.SplitAll([]tmbytes.HexBytes{h1, h2}, challenger)
	})
}

func TestEscrowRestore(t *testing.T) {
	bank := NewMapBank()
	module, bob := testAddr("module"), testAddr("bob")
	bank.Deposit(module, 100)

	escrow := NewEscrow(bank, module, testAddr("retention"))
	h1 := testHash("header-1")

	// restore bookkeeping only: the module account already has the funds
	require.NoError(t, escrow.Restore(h1, 100))
	assert.EqualValues(t, 100, escrow.Outstanding(h1))
	assert.EqualValues(t, 100, escrow.TotalLocked())
	assert.EqualValues(t, 100, bank.Balance(module))

	require.Error(t, escrow.Restore(h1, 100))

	paid, err := escrow.Release(h1, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 100, paid)
	assert.EqualValues(t, 100, bank.Balance(bob))
	assert.EqualValues(t, 0, bank.Balance(module))
}

func TestMapBank(t *testing.T) {
	bank := NewMapBank()
	alice, bob := testAddr("alice"), testAddr("bob")

	assert.EqualValues(t, 0, bank.Balance(alice))
	bank.Deposit(alice, 500)
	assert.EqualValues(t, 500, bank.Balance(alice))

	require.NoError(t, bank.Transfer(alice, bob, 200))
	assert.EqualValues(t, 300, bank.Balance(alice))
	assert.EqualValues(t, 200, bank.Balance(bob))

	var fundsErr ErrInsufficientFunds
	err := bank.Transfer(alice, bob, 400)
	require.ErrorAs(t, err, &fundsErr)
	assert.EqualValues(t, 300, fundsErr.Balance)
	assert.EqualValues(t, 400, fundsErr.Amount)
	assert.EqualValues(t, 300, bank.Balance(alice))

	require.NoError(t, bank.Transfer(bob, alice, 0))
	assert.EqualValues(t, 200, bank.Balance(bob))
}
