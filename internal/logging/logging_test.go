package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maxopoly/ExilePearl/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.Disabled, ParseLevel("disabled"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, config.LogConfig{Level: "info", Format: "json"})

	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "engine").Msg("engine: loaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine: loaded", entry["message"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "exilepearl", entry["app"])
	assert.Equal(t, "info", entry["level"])
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, config.LogConfig{Level: "debug", Format: "console"})

	logger.Debug().Msg("decay: tick")
	assert.Contains(t, buf.String(), "decay: tick")
	assert.NotContains(t, buf.String(), `"message"`)
}
