package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level, format string
		wantErr       bool
		enabled       zapcore.Level
		disabled      zapcore.Level
	}{
		{level: "info", format: "json", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{level: "DEBUG", format: "console", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{level: "warn", format: "", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{level: "loud", format: "json", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		log, err := New(tt.level, tt.format)
		if tt.wantErr {
			assert.Error(t, err, "%s/%s", tt.level, tt.format)
			continue
		}
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(tt.enabled))
		assert.False(t, log.Core().Enabled(tt.disabled))
	}
}
