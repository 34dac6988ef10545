package light

import (
	"context"

	"github.com/oprelay/oprelay/types"
)

// ValidatorProvider serves the remote chain's validator set at a given
// height. Verification happens in the Verifier.
//
// The bridge treats every verification error as proof that the offered
// commit is invalid, so a provider must give a definite answer: one that
// can fail transiently does not belong behind this interface.
type ValidatorProvider interface {
	ValidatorSet(ctx context.Context, height uint64) (*types.ValidatorSet, error)
}

// StaticProvider serves one fixed validator set for every height. It backs
// deployments where the remote validator set is fixed at genesis; tracking
// validator set changes means implementing a ValidatorProvider that does.
type StaticProvider struct {
	vals *types.ValidatorSet
}

var _ ValidatorProvider = (*StaticProvider)(nil)

// NewStaticProvider returns a provider serving a copy of vals at every
// height.
func NewStaticProvider(vals *types.ValidatorSet) (*StaticProvider, error) {
	if err := vals.ValidateBasic(); err != nil {
		return nil, err
	}
	return &StaticProvider{vals: vals.Copy()}, nil
}

// ValidatorSet implements ValidatorProvider.
func (p *StaticProvider) ValidatorSet(_ context.Context, _ uint64) (*types.ValidatorSet, error) {
	return p.vals.Copy(), nil
}
