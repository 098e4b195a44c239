package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	bytes.Buffer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewZerologLogger(t *testing.T) {
	t.Run("adds service and fields to entries", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "linechat", zerolog.DebugLevel)

		l.Info("session started", Field{Key: "key", Value: "a->b"})

		entry := decodeLine(t, &buf)
		assert.Equal(t, "linechat", entry["service"])
		assert.Equal(t, "session started", entry["message"])
		assert.Equal(t, "a->b", entry["key"])
		assert.Equal(t, "info", entry["level"])
		assert.Contains(t, entry, "time")
	})

	t.Run("filters entries below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "linechat", zerolog.WarnLevel)

		l.Debug("hidden")
		l.Info("hidden")
		assert.Zero(t, buf.Len())

		l.Warn("shown")
		assert.NotZero(t, buf.Len())
	})
}

func TestZerologLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewZerologLogger(zerolog.New(&buf), "linechat", zerolog.DebugLevel)

	derived := base.With(Field{Key: "role", Value: "server"})
	derived.Error("boom")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "server", entry["role"])
	assert.Equal(t, "error", entry["level"])

	buf.Reset()
	base.Error("plain")
	entry = decodeLine(t, &buf)
	assert.NotContains(t, entry, "role")
}

func TestNewWriterLogger_Close(t *testing.T) {
	rec := &closeRecorder{}
	l := NewWriterLogger(rec, "linechat", zerolog.InfoLevel)

	l.Info("hello")
	assert.Contains(t, rec.String(), "hello")

	t.Run("derived logger does not close the writer", func(t *testing.T) {
		require.NoError(t, l.With(Field{Key: "k", Value: 1}).Close())
		assert.Equal(t, 0, rec.closed)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())
		assert.Equal(t, 1, rec.closed)
	})
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, "linechat", zerolog.InfoLevel)

	l.Info("listening", Field{Key: "addr", Value: ":9999"})

	out := buf.String()
	assert.Contains(t, out, "listening")
	assert.Contains(t, out, ":9999")
}

func TestNewNopLogger(t *testing.T) {
	l := NewNopLogger()
	require.NotNil(t, l)

	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
		l.With(Field{Key: "a", Value: 1}).Info("x")
	})
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("unknown level is an error", func(t *testing.T) {
		_, err := ParseLevel("verbose")
		assert.Error(t, err)
	})
}
