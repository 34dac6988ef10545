package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/libs/cli"
	tmos "github.com/oprelay/oprelay/libs/os"
)

// clearConfig clears env vars, resets viper, and restores the package
// config to its defaults.
func clearConfig(t *testing.T) {
	t.Helper()
	require.NoError(t, os.Unsetenv("OPHOME"))
	require.NoError(t, os.Unsetenv("OP_HOME"))

	viper.Reset()
	config = cfg.DefaultConfig()
}

// prepare new rootCmd
func testRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               RootCmd.Use,
		PersistentPreRunE: RootCmd.PersistentPreRunE,
		Run:               func(cmd *cobra.Command, args []string) {},
	}
	registerFlagsRootCmd(rootCmd)
	var l string
	rootCmd.PersistentFlags().String("log", l, "Log")
	return rootCmd
}

func testSetup(ctx context.Context, t *testing.T, rootDir string, args []string, env map[string]string) error {
	t.Helper()
	clearConfig(t)

	rootCmd := testRootCmd()
	cmd := cli.PrepareBaseCmd(rootCmd, "OP", rootDir)

	// run with the args and env
	args = append([]string{rootCmd.Use}, args...)
	return runWithArgs(ctx, cmd, args, env)
}

func TestRootHome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{nil, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"OPHOME": newRoot}, newRoot},
	}

	for i, tc := range cases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			err := testSetup(ctx, t, defaultRoot, tc.args, tc.env)
			require.NoError(t, err)

			assert.Equal(t, tc.root, config.RootDir)
			assert.Equal(t, tc.root, config.RPC.RootDir)
		})
	}
}

func TestRootFlagsEnv(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defaultDir := t.TempDir()
	defaultLogLvl := cfg.DefaultConfig().LogLevel

	cases := []struct {
		args     []string
		env      map[string]string
		logLevel string
	}{
		{[]string{"--log", "debug"}, nil, defaultLogLvl},           // wrong flag
		{[]string{"--log_level", "debug"}, nil, "debug"},           // right flag
		{nil, map[string]string{"OP_LOW": "debug"}, defaultLogLvl}, // wrong env name
		{nil, map[string]string{"OP_LOG_LEVEL": "debug"}, "debug"}, // right env
	}

	for i, tc := range cases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			err := testSetup(ctx, t, defaultDir, tc.args, tc.env)
			require.NoError(t, err)

			assert.Equal(t, tc.logLevel, config.LogLevel)
		})
	}
}

func TestRootConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// write non-default config
	nonDefaultLogLvl := "debug"
	cvals := map[string]string{
		"log_level": nonDefaultLogLvl,
	}

	cases := []struct {
		args   []string
		env    map[string]string
		logLvl string
	}{
		{nil, nil, nonDefaultLogLvl},                             // should load config
		{[]string{"--log_level=info"}, nil, "info"},              // flag overrides
		{nil, map[string]string{"OP_LOG_LEVEL": "info"}, "info"}, // env overrides
	}

	for i, tc := range cases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			defaultRoot := t.TempDir()
			clearConfig(t)

			// the path must match the default config layout
			configFilePath := filepath.Join(defaultRoot, "config")
			require.NoError(t, tmos.EnsureDir(configFilePath, 0700))
			require.NoError(t, writeConfigVals(configFilePath, cvals))

			rootCmd := testRootCmd()
			cmd := cli.PrepareBaseCmd(rootCmd, "OP", defaultRoot)

			args := append([]string{rootCmd.Use}, tc.args...)
			require.NoError(t, runWithArgs(ctx, cmd, args, tc.env))

			assert.Equal(t, tc.logLvl, config.LogLevel)
		})
	}
}

// writeConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func writeConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// runWithArgs executes the given command with the specified command line
// args and environment variables set. It returns any error returned from
// cmd.Execute()
func runWithArgs(ctx context.Context, cmd *cobra.Command, args []string, env map[string]string) error {
	oargs := os.Args
	oenv := map[string]string{}
	// defer returns the environment back to normal
	defer func() {
		os.Args = oargs
		for k, v := range oenv {
			os.Setenv(k, v)
		}
	}()

	// set the args and env how we want them
	os.Args = args
	for k, v := range env {
		// backup old value if there, to restore at end
		oenv[k] = os.Getenv(k)
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}

	// and finally run the command
	return cli.RunWithTrace(ctx, cmd)
}
