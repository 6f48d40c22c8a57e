package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaguepulse/leaguepulse/internal/logging"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: "debug", Format: "json", Output: &buf})

	log.Debug().Str("source", "espn").Msg("probe")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "espn", entry["source"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: "WARN", Output: &buf})

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: "verbose", Output: &buf})

	log.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
	log.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Format: "console", Output: &buf})

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}
