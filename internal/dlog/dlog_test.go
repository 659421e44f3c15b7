package dlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchlog/punch/internal/config"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"", LevelInfo, LevelDebug, "warn", LevelNone} {
		l, err := New(config.LogSettings{Level: level})
		require.NoError(t, err, "level %q", level)
		require.NotNil(t, l)
	}

	_, err := New(config.LogSettings{Level: "shouty"})
	assert.Error(t, err)
}

func TestNoneIsSilent(t *testing.T) {
	l, err := New(config.LogSettings{Level: LevelNone})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(0), "nop logger enables no level")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "punch.log")
	l, err := New(config.LogSettings{Level: LevelInfo, File: path})
	require.NoError(t, err)

	l.Info("hello")
	require.NoError(t, l.Sync())

	assert.FileExists(t, path)
}
