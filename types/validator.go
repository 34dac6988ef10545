package types

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/oprelay/oprelay/crypto"
)

// Validator is a member of the remote validator set.
type Validator struct {
	Address     crypto.Address `json:"address"`
	PubKey      crypto.PubKey  `json:"-"`
	VotingPower int64          `json:"voting_power,string"`
}

// NewValidator returns a new validator with the given pubkey and voting power.
func NewValidator(pubKey crypto.PubKey, votingPower int64) *Validator {
	return &Validator{
		Address:     pubKey.Address(),
		PubKey:      pubKey,
		VotingPower: votingPower,
	}
}

// ValidateBasic performs basic validation.
func (v *Validator) ValidateBasic() error {
	if v == nil {
		return errors.New("nil validator")
	}
	if v.PubKey == nil {
		return errors.New("validator does not have a public key")
	}
	if v.VotingPower < 0 {
		return errors.New("validator has negative voting power")
	}
	if len(v.Address) != crypto.AddressSize {
		return fmt.Errorf("validator address is the wrong size: %X", v.Address)
	}
	if !bytes.Equal(v.Address, v.PubKey.Address()) {
		return fmt.Errorf("validator address %X does not match its pubkey", v.Address)
	}
	return nil
}

// Copy creates a new copy of the validator.
func (v *Validator) Copy() *Validator {
	vCopy := *v
	return &vCopy
}

// Bytes computes the unique encoding of a validator with a given voting
// power: the length-prefixed pubkey followed by the big-endian power. These
// are the bytes that get hashed into the validator-set hash. The address is
// excluded as it is redundant with the pubkey.
func (v *Validator) Bytes() []byte {
	pk := v.PubKey.Bytes()
	bz := make([]byte, 0, 4+len(pk)+8)
	bz = appendUint32(bz, uint32(len(pk)))
	bz = append(bz, pk...)
	bz = appendUint64(bz, uint64(v.VotingPower))
	return bz
}

// String returns a string representation of the validator.
func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{%v %v VP:%v}", v.Address, v.PubKey, v.VotingPower)
}

// ValidatorListString returns a prettified validator list for logging purposes.
func ValidatorListString(vals []*Validator) string {
	chunks := make([]string, len(vals))
	for i, val := range vals {
		chunks[i] = fmt.Sprintf("%s:%d", val.Address, val.VotingPower)
	}
	return strings.Join(chunks, ",")
}

// ValidatorsByVotingPower implements sort.Interface for []*Validator based
// on the VotingPower and Address fields.
type ValidatorsByVotingPower []*Validator

func (valz ValidatorsByVotingPower) Len() int { return len(valz) }

func (valz ValidatorsByVotingPower) Less(i, j int) bool {
	if valz[i].VotingPower == valz[j].VotingPower {
		return bytes.Compare(valz[i].Address, valz[j].Address) == -1
	}
	return valz[i].VotingPower > valz[j].VotingPower
}

func (valz ValidatorsByVotingPower) Swap(i, j int) {
	valz[i], valz[j] = valz[j], valz[i]
}
