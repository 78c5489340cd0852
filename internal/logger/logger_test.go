package logger

import (
	"os"
	"path/filepath"
	"testing"

	"bizassist/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() {
		_ = Close()
		Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
}

func TestInitLoggerRejectsBadConfig(t *testing.T) {
	assert.Error(t, InitLogger(config.LogConfig{Level: "loud"}))
	assert.ErrorContains(t, InitLogger(config.LogConfig{Level: "info", Output: "file"}), "no file path")
}

func TestInitLoggerWritesJSONFile(t *testing.T) {
	resetLogger(t)

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, InitLogger(config.LogConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	}))

	Info().Str("intent", "faq").Msg("turn handled")
	turnLog := ForTurn("biz-1", "conv-1")
	turnLog.Warn().Msg("provider failed")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"service":"bizassist"`)
	assert.Contains(t, out, "turn handled")
	assert.Contains(t, out, `"business_id":"biz-1"`)
	assert.Contains(t, out, `"conversation_id":"conv-1"`)

	// nothing is written after Close
	Info().Msg("after close")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after close")
}

func TestInitLoggerLevelFiltersEntries(t *testing.T) {
	resetLogger(t)

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitLogger(config.LogConfig{Level: "warn", Output: "file", FilePath: path}))
	Info().Msg("quiet")
	Warn().Msg("loud")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}

func TestTimeFieldFormat(t *testing.T) {
	assert.Equal(t, zerolog.TimeFormatUnix, timeFieldFormat("UNIX"))
	assert.Equal(t, "2006-01-02T15:04:05.000Z07:00", timeFieldFormat("iso8601"))
	assert.Equal(t, "2006-01-02T15:04:05Z07:00", timeFieldFormat(""))
}
