package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})

	l.Info().Str("component", "optimizer").Msg("frontier computed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "frontier computed", entry["message"])
	assert.Equal(t, "optimizer", entry["component"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "caller")
}

func TestNew_AllLogLevels(t *testing.T) {
	testCases := []struct {
		level         string
		expectedLevel zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			New(Config{Level: tc.level, Output: &bytes.Buffer{}})
			assert.Equal(t, tc.expectedLevel, zerolog.GlobalLevel())
		})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	l.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Pretty: true, Output: &buf})

	l.Info().Msg("pretty message")

	out := buf.String()
	assert.Contains(t, out, "pretty message")
	assert.NotContains(t, out, `"message"`)
}

func TestSetGlobalLogger(t *testing.T) {
	original := log.Logger
	defer func() { log.Logger = original }()

	var buf bytes.Buffer
	SetGlobalLogger(zerolog.New(&buf))
	log.Info().Msg("global")

	assert.Contains(t, buf.String(), "global")
}
