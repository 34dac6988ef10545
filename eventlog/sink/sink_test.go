package sink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/eventlog"
	"github.com/oprelay/oprelay/eventlog/sink"
)

func testConfig(t *testing.T, sinks ...string) *config.Config {
	t.Helper()
	cfg := config.TestConfig()
	cfg.SetRoot(t.TempDir())
	cfg.EventLog.Sinks = sinks
	return cfg
}

func TestEventSinksFromConfig(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		sinks, err := sink.EventSinksFromConfig(testConfig(t), config.DefaultDBProvider, "test-relay")
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, eventlog.NULL, sinks[0].Type())
	})

	t.Run("KV", func(t *testing.T) {
		sinks, err := sink.EventSinksFromConfig(testConfig(t, "kv"), config.DefaultDBProvider, "test-relay")
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, eventlog.KV, sinks[0].Type())
		assert.True(t, eventlog.LookupEnabled(sinks))
	})

	t.Run("NullWinsOverOthers", func(t *testing.T) {
		sinks, err := sink.EventSinksFromConfig(testConfig(t, "null", "kv"), config.DefaultDBProvider, "test-relay")
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, eventlog.NULL, sinks[0].Type())
	})

	t.Run("Duplicates", func(t *testing.T) {
		_, err := sink.EventSinksFromConfig(testConfig(t, "kv", "KV"), config.DefaultDBProvider, "test-relay")
		assert.Error(t, err)
	})

	t.Run("PsqlWithoutConn", func(t *testing.T) {
		_, err := sink.EventSinksFromConfig(testConfig(t, "psql"), config.DefaultDBProvider, "test-relay")
		assert.Error(t, err)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := sink.EventSinksFromConfig(testConfig(t, "magic"), config.DefaultDBProvider, "test-relay")
		assert.Error(t, err)
	})
}
