package types

import "errors"

const (
	// DefaultBondAmount is the bond attached to every submission on a chain
	// whose genesis does not say otherwise.
	DefaultBondAmount uint64 = 1_000_000

	// DefaultFraudPeriod is the default fraud window in host block heights.
	DefaultFraudPeriod uint64 = 100
)

// Params are the protocol parameters fixed at genesis. The bond is a flat
// amount per submission; the fraud period is the number of host blocks that
// must elapse past the submission height before a submission may finalize.
type Params struct {
	BondAmount  uint64 `json:"bond_amount,string"`
	FraudPeriod uint64 `json:"fraud_period,string"`
}

// DefaultParams returns the default protocol parameters.
func DefaultParams() Params {
	return Params{
		BondAmount:  DefaultBondAmount,
		FraudPeriod: DefaultFraudPeriod,
	}
}

// ValidateBasic checks the parameters are usable.
func (p Params) ValidateBasic() error {
	if p.BondAmount == 0 {
		return errors.New("bond amount cannot be zero")
	}
	if p.FraudPeriod == 0 {
		return errors.New("fraud period cannot be zero")
	}
	return nil
}
