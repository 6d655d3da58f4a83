package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_Defaults(t *testing.T) {
	l := New(nil)
	require.NotNil(t, l)
	require.NotNil(t, l.Logger)
}

func TestNew_FormatAndLevel(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		log      func(*Logger)
		wantJSON bool
		wantLine bool
	}{
		{"json info", Config{Level: "info", Format: "json"}, func(l *Logger) { l.Info("HTTP Request") }, true, true},
		{"text info", Config{Level: "info", Format: "text"}, func(l *Logger) { l.Info("HTTP Request") }, false, true},
		{"debug suppressed at info", Config{Level: "info", Format: "json"}, func(l *Logger) { l.Debug("HTTP Request") }, true, false},
		{"warn passes at warn", Config{Level: "warning", Format: "json"}, func(l *Logger) { l.Warn("HTTP Request") }, true, true},
		{"info suppressed at error", Config{Level: "ERROR", Format: "json"}, func(l *Logger) { l.Info("HTTP Request") }, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cfg := tt.cfg
			cfg.Output = buf
			tt.log(New(&cfg))

			if !tt.wantLine {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), "HTTP Request")
			assert.Equal(t, tt.wantJSON, bytes.HasPrefix(buf.Bytes(), []byte("{")))
		})
	}
}

func TestLogger_WithAndErr(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	l.With("request_id", "req-1").Error("HTTP Request", "status", 500, Err(assert.AnError))

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.EqualValues(t, 500, entry["status"])
	assert.Contains(t, entry["error"], "assert.AnError")
}

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]string{
		"debug":   "DEBUG",
		"DEBUG":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"verbose": "INFO",
		"":        "INFO",
	} {
		assert.Equal(t, want, parseLevel(input).String(), input)
	}
}

func TestNewZapLogger(t *testing.T) {
	t.Run("json output carries structured fields", func(t *testing.T) {
		buf := &bytes.Buffer{}
		zl, err := NewZapLogger(&Config{Level: "info", Format: "json", Output: buf})
		require.NoError(t, err)

		zl.Named("webhook").Info("event accepted", zap.String("provider", "click"))
		require.NoError(t, zl.Sync())

		entry := decodeLine(t, buf)
		assert.Equal(t, "event accepted", entry["msg"])
		assert.Equal(t, "click", entry["provider"])
		assert.Equal(t, "webhook", entry["logger"])
	})

	t.Run("respects level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		zl, err := NewZapLogger(&Config{Level: "warn", Format: "json", Output: buf})
		require.NoError(t, err)

		zl.Info("dropped")
		assert.Empty(t, buf.String())

		zl.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("console format is not json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		zl, err := NewZapLogger(&Config{Level: "info", Format: "text", Output: buf})
		require.NoError(t, err)

		zl.Info("plain")
		assert.False(t, bytes.HasPrefix(buf.Bytes(), []byte("{")))
	})
}
