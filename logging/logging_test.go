package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "json", Output: &buf})

	logger.Debug().Str("conversation_id", "a#b").Msg("fetched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "buchat", entry["service"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "a#b", entry["conversation_id"])
	assert.Contains(t, entry, "time")
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "chatty", Format: "json", Output: &buf})

	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "console", Service: "cli", Output: &buf})

	logger.Info().Msg("ready")
	line := buf.String()
	assert.Contains(t, line, "ready")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(line), "{"), "console output should not be JSON: %s", line)
}
