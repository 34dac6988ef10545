package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/rpc"
	"github.com/oprelay/oprelay/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.ResetTestRoot(t.TempDir(), strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	cfg.RPC.ListenAddress = "tcp://127.0.0.1:0"
	// the restart tests reopen the same home directory, so the stores must
	// outlive the node
	cfg.DBBackend = "goleveldb"
	return cfg
}

func startTestNode(ctx context.Context, t *testing.T, cfg *config.Config) *nodeImpl {
	t.Helper()

	ns, err := New(ctx, cfg, log.NewTestingLogger(t))
	require.NoError(t, err)

	n, ok := ns.(*nodeImpl)
	require.True(t, ok)

	require.NoError(t, n.Start(ctx))
	t.Cleanup(func() {
		if n.IsRunning() {
			require.NoError(t, n.Stop())
		}
		n.Wait()
	})
	return n
}

func nodeStatus(t *testing.T, n *nodeImpl) rpc.StatusResponse {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("http://%s/v1/status", n.rpcListener.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status rpc.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func TestNodeStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	n := startTestNode(ctx, t, cfg)
	require.True(t, n.IsRunning())

	status := nodeStatus(t, n)
	assert.Equal(t, cfg.Moniker, status.Moniker)
	assert.Equal(t, "oprelay-test", status.ChainID)
	assert.Equal(t, n.genesisDoc.GenesisHash, status.GenesisHash)
	assert.EqualValues(t, 1, status.TipHeight) // genesis residue
	assert.EqualValues(t, 0, status.HostHeight)
	assert.True(t, status.LookupEnabled) // the default config indexes into kv

	cancel()
	n.Wait()
	assert.False(t, n.IsRunning())
}

func TestNodeRestart(t *testing.T) {
	cfg := testConfig(t)

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	n1 := startTestNode(ctx1, t, cfg)
	first := nodeStatus(t, n1)
	cancel1()
	n1.Wait()

	// The same home directory boots again: the persisted genesis hash
	// matches the genesis file and the tip carries over.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	n2 := startTestNode(ctx2, t, cfg)
	second := nodeStatus(t, n2)
	assert.Equal(t, first.GenesisHash, second.GenesisHash)
	assert.Equal(t, first.TipHash, second.TipHash)
	assert.EqualValues(t, 1, second.TipHeight)
}

func TestNodeGenesisHashMismatch(t *testing.T) {
	cfg := testConfig(t)

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	n1 := startTestNode(ctx1, t, cfg)
	cancel1()
	n1.Wait()

	// Tamper with the trusted genesis hash. The persisted store must
	// refuse to reinitialize under a different remote chain.
	genDoc, err := types.GenesisDocFromFile(cfg.GenesisFile())
	require.NoError(t, err)
	genDoc.GenesisHash[0] ^= 0xff
	require.NoError(t, genDoc.SaveAs(cfg.GenesisFile()))

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	_, err = New(ctx2, cfg, log.NewTestingLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot initialize from genesis")
}

func TestNodeNewErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("MissingGenesisFile", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.Remove(cfg.GenesisFile()))

		_, err := New(ctx, cfg, log.NewTestingLogger(t))
		require.Error(t, err)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RPC.MaxBodyBytes = 0

		_, err := New(ctx, cfg, log.NewTestingLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error in config file")
	})

	t.Run("BadRetentionAddress", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.RetentionAddress = "not-hex"

		_, err := New(ctx, cfg, log.NewTestingLogger(t))
		require.Error(t, err)
	})
}
