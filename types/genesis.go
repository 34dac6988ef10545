package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/creachadair/atomicfile"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/crypto/ed25519"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

const (
	// MaxChainIDLen is a maximum length of the chain ID.
	MaxChainIDLen = 50
)

//------------------------------------------------------------
// core types for a genesis definition

// GenesisValidator is a member of the remote chain's validator set at
// genesis. The public key is a raw ed25519 key.
type GenesisValidator struct {
	Address crypto.Address   `json:"address"`
	PubKey  tmbytes.HexBytes `json:"pub_key"`
	Power   int64            `json:"power,string"`
	Name    string           `json:"name,omitempty"`
}

// GenesisAllocation seeds a host account balance.
type GenesisAllocation struct {
	Address crypto.Address `json:"address"`
	Amount  uint64         `json:"amount,string"`
}

// GenesisDoc defines the initial conditions of the bridge: the remote
// chain's identity and trusted genesis header hash, the protocol
// parameters, the remote validator set, and the host balances.
type GenesisDoc struct {
	ChainID     string              `json:"chain_id"`
	GenesisHash tmbytes.HexBytes    `json:"genesis_hash"`
	Params      Params              `json:"params"`
	Validators  []GenesisValidator  `json:"validators"`
	Allocations []GenesisAllocation `json:"allocations,omitempty"`
}

// SaveAs is a utility method for saving GenesisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := json.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(file, bytes.NewReader(genDocBytes), 0644)
	return err
}

// ValidatorSet builds the remote validator set described by the genesis
// doc.
func (genDoc *GenesisDoc) ValidatorSet() (*ValidatorSet, error) {
	vals := make([]*Validator, len(genDoc.Validators))
	for i, v := range genDoc.Validators {
		if len(v.PubKey) != ed25519.PubKeySize {
			return nil, fmt.Errorf("genesis validator %d: pubkey must be %d bytes, got %d",
				i, ed25519.PubKeySize, len(v.PubKey))
		}
		vals[i] = NewValidator(ed25519.PubKey(v.PubKey), v.Power)
	}
	return NewValidatorSet(vals), nil
}

// ValidateAndComplete checks that all necessary fields are present and
// fills in defaults for optional fields left empty.
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}

	if len(genDoc.GenesisHash) != crypto.HashSize {
		return fmt.Errorf("genesis_hash must be %d bytes, got %d",
			crypto.HashSize, len(genDoc.GenesisHash))
	}

	if err := genDoc.Params.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}

	if len(genDoc.Validators) == 0 {
		return errors.New("the genesis file must contain at least one validator")
	}
	seen := make(map[string]struct{}, len(genDoc.Validators))
	for i, v := range genDoc.Validators {
		if v.Power <= 0 {
			return fmt.Errorf("the genesis file cannot contain validators with no voting power: %v", v)
		}
		if len(v.PubKey) != ed25519.PubKeySize {
			return fmt.Errorf("genesis validator %d: pubkey must be %d bytes, got %d",
				i, ed25519.PubKeySize, len(v.PubKey))
		}
		derived := ed25519.PubKey(v.PubKey).Address()
		if len(v.Address) > 0 && !bytes.Equal(derived, v.Address) {
			return fmt.Errorf("incorrect address for validator %v in the genesis file, should be %v", v, derived)
		}
		if len(v.Address) == 0 {
			genDoc.Validators[i].Address = derived
		}
		if _, ok := seen[string(genDoc.Validators[i].Address)]; ok {
			return fmt.Errorf("duplicate validator address %v in the genesis file", genDoc.Validators[i].Address)
		}
		seen[string(genDoc.Validators[i].Address)] = struct{}{}
	}

	seenAlloc := make(map[string]struct{}, len(genDoc.Allocations))
	for i, a := range genDoc.Allocations {
		if len(a.Address) != crypto.AddressSize {
			return fmt.Errorf("genesis allocation %d: address must be %d bytes, got %d",
				i, crypto.AddressSize, len(a.Address))
		}
		if _, ok := seenAlloc[string(a.Address)]; ok {
			return fmt.Errorf("duplicate allocation address %v in the genesis file", a.Address)
		}
		seenAlloc[string(a.Address)] = struct{}{}
	}

	return nil
}

//------------------------------------------------------------
// Make genesis state from file

// GenesisDocFromJSON unmarshals JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	if err := json.Unmarshal(jsonBlob, &genDoc); err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, nil
}

// GenesisDocFromFile reads JSON data from a file and unmarshals it into a
// GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %v: %w", genDocFile, err)
	}
	return genDoc, nil
}
