package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	New(&buf, "info", "json").Info("tick", "enrollment_id", "e1")

	assert.Contains(t, buf.String(), `"enrollment_id":"e1"`)
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer

	New(&buf, "error", "text").Info("hidden")

	assert.Empty(t, buf.String())
}
