package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("warn", format)
		require.NoError(t, err, format)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New("loud", "json")
	assert.True(t, cacheerr.IsConfiguration(err))

	_, err = New("info", "xml")
	assert.True(t, cacheerr.IsConfiguration(err))
}
