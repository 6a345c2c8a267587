package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  logger.LogLevel
		valid bool
	}{
		{"debug", logger.DebugLevel, true},
		{"info", logger.InfoLevel, true},
		{"warning", logger.WarnLevel, true},
		{"warn", logger.WarnLevel, true},
		{"error", logger.ErrorLevel, true},
		{"loud", logger.WarnLevel, false},
	}

	for _, tt := range tests {
		got, ok := logger.ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.DebugLevel, true)
	t.Cleanup(func() { logger.InitWithWriter(nil, logger.WarnLevel, true) })

	log := logger.Component("engine")
	log.Info().Int("server", 2).Msg("status changed")
	log.ErrorWithCode(errors.New().New(errors.ErrNoIncident)).Msg("toggle ignored")

	out := buf.String()
	assert.Contains(t, out, "status changed")
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "error_code=no_incident")
}

func TestNopLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.DebugLevel, true)
	t.Cleanup(func() { logger.InitWithWriter(nil, logger.WarnLevel, true) })

	logger.Nop().Error().Msg("dropped")
	assert.Empty(t, buf.String())
}
