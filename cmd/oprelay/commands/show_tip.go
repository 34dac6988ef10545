package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oprelay/oprelay/bridge"
	cfg "github.com/oprelay/oprelay/config"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

// ShowTipCmd prints the tip of the tracked chain from the local bridge
// store. It reads the database directly, so the node must not be running.
var ShowTipCmd = &cobra.Command{
	Use:   "show-tip",
	Short: "Print the tip of the tracked chain from the local store",
	RunE:  showTip,
}

func showTip(cmd *cobra.Command, args []string) error {
	db, err := cfg.DefaultDBProvider(&cfg.DBContext{ID: "bridge", Config: config})
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := bridge.NewStore(db)
	if err != nil {
		return err
	}

	tip := store.Tip()
	if len(tip) == 0 {
		return errors.New("the bridge store is empty; start the node first")
	}
	sub, err := store.Get(tip)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(struct {
		HeaderHash tmbytes.HexBytes  `json:"header_hash"`
		Submission *types.Submission `json:"submission"`
	}{tip, sub}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
