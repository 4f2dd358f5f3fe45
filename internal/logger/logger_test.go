package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New("info", "json", buf)
	require.NoError(t, err)

	log.Info().Str("file", "march.csv").Msg("Import finished")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "march.csv", line["file"])
	assert.Equal(t, "Import finished", line["message"])
	assert.Contains(t, line, "time")
}

func TestNew_Console(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New("debug", "console", buf)
	require.NoError(t, err)

	log.Debug().Msg("loaded cache")
	assert.Contains(t, buf.String(), "loaded cache")
}

func TestNew_LevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New("warn", "json", buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Errors(t *testing.T) {
	_, err := New("loud", "json", &bytes.Buffer{})
	assert.ErrorContains(t, err, `unknown log level "loud"`)

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.ErrorContains(t, err, `unknown log format "xml"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New("info", "json", buf)
	require.NoError(t, err)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")
}

func TestFromContext_Default(t *testing.T) {
	log := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, log.GetLevel())
}
