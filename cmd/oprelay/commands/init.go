package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/crypto/ed25519"
	tmos "github.com/oprelay/oprelay/libs/os"
	"github.com/oprelay/oprelay/types"
)

// InitFilesCmd initializes a fresh oprelay home directory.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an oprelay home directory",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	if err := cfg.WriteDefaultConfigFileIfNone(config.RootDir); err != nil {
		return err
	}

	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}

	// A placeholder document for local experiments: one generated remote
	// validator and a funded account. Tracking a real chain means
	// replacing this file with the bridge genesis published for that
	// chain.
	pubKey := ed25519.GenPrivKey().PubKey()

	genDoc := types.GenesisDoc{
		ChainID:     fmt.Sprintf("local-chain-%X", pubKey.Address()[:3]),
		GenesisHash: crypto.Checksum(pubKey.Bytes()),
		Params:      types.DefaultParams(),
		Validators: []types.GenesisValidator{{
			Address: pubKey.Address(),
			PubKey:  pubKey.Bytes(),
			Power:   10,
		}},
	}
	genDoc.Allocations = []types.GenesisAllocation{{
		Address: pubKey.Address(),
		Amount:  10 * genDoc.Params.BondAmount,
	}}

	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile)
	return nil
}
