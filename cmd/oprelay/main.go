package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/oprelay/oprelay/cmd/oprelay/commands"
	cfg "github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/libs/cli"
	"github.com/oprelay/oprelay/node"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.InitFilesCmd,
		commands.ShowTipCmd,
		commands.VersionCmd,
		commands.NewStartCmd(node.New),
	)

	baseCmd := cli.PrepareBaseCmd(rootCmd, "OP",
		os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultOprelayDir)))

	if err := cli.RunWithTrace(context.Background(), baseCmd); err != nil {
		os.Exit(2)
	}
}
