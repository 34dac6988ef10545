package types

import (
	"bytes"
	"fmt"
)

// LightBlock is the unit of submission: a remote header together with the
// commit for its parent. The commit proves the parent block, not the block
// itself; the newest header is exactly the part accepted optimistically.
type LightBlock struct {
	Header     *Header `json:"header"`
	LastCommit *Commit `json:"last_commit"`
}

// ValidateBasic checks that the header and commit are individually well
// formed and that the commit actually binds to the header's parent.
func (lb *LightBlock) ValidateBasic() error {
	if lb == nil {
		return fmt.Errorf("nil light block")
	}
	if lb.Header == nil {
		return fmt.Errorf("missing header")
	}
	if lb.LastCommit == nil {
		return fmt.Errorf("missing last commit")
	}
	if err := lb.Header.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}
	if err := lb.LastCommit.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid last commit: %w", err)
	}

	if lb.LastCommit.Height != lb.Header.Height-1 {
		return fmt.Errorf("last commit is for height %d, expected %d",
			lb.LastCommit.Height, lb.Header.Height-1)
	}
	if !bytes.Equal(lb.LastCommit.BlockID, lb.Header.LastHeaderHash) {
		return fmt.Errorf("last commit is for block %X, expected parent %X",
			lb.LastCommit.BlockID, lb.Header.LastHeaderHash)
	}
	return nil
}

func (lb *LightBlock) String() string {
	if lb == nil {
		return "nil-LightBlock"
	}
	return fmt.Sprintf("LightBlock{%v %v}", lb.Header, lb.LastCommit)
}
