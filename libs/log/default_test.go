package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oprelay/oprelay/libs/log"
)

func TestNewDefaultLogger(t *testing.T) {
	testCases := map[string]struct {
		format    string
		level     string
		expectErr bool
	}{
		"invalid format": {
			format:    "foo",
			level:     log.LogLevelInfo,
			expectErr: true,
		},
		"invalid level": {
			format:    log.LogFormatJSON,
			level:     "foo",
			expectErr: true,
		},
		"valid format and level": {
			format:    log.LogFormatJSON,
			level:     log.LogLevelInfo,
			expectErr: false,
		},
		"valid plain format": {
			format:    log.LogFormatPlain,
			level:     log.LogLevelDebug,
			expectErr: false,
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			logger, err := log.NewDefaultLogger(tc.format, tc.level)
			if tc.expectErr {
				require.Error(t, err)
				require.Panics(t, func() {
					_ = log.MustNewDefaultLogger(tc.format, tc.level)
				})
			} else {
				require.NoError(t, err)
				assert.NotNil(t, logger.With("module", "test"))
			}
		})
	}
}

func TestNopLogger(t *testing.T) {
	logger := log.NewNopLogger()
	require.NotNil(t, logger)

	// must not panic with odd key-value pairs either
	logger.Info("message", "key")
	logger.Debug("message", "key", "value")
	logger.Error("message")
	logger.With("a", 1).Info("chained")
}
