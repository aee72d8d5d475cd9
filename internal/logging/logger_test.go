package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := NewLogger(level, FormatJSON)
	l.SetOutput(buf)
	return l, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerFields(t *testing.T) {
	l, buf := newBufferedLogger(LevelInfo)

	l.WithField("source", "exchange").
		WithFields(map[string]interface{}{"user_id": "u1"}).
		WithError(errors.New("boom")).
		Warn("source unavailable")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "source unavailable", entries[0]["message"])
	assert.Equal(t, "exchange", entries[0]["source"])
	assert.Equal(t, "u1", entries[0]["user_id"])
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	l, buf := newBufferedLogger(LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Errorf("shown %d", 2)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "shown 2", entries[1]["message"])
}

func TestDerivedLoggerDoesNotLeakFields(t *testing.T) {
	l, buf := newBufferedLogger(LevelInfo)

	_ = l.WithField("request_id", "abc")
	l.Info("plain")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	_, ok := entries[0]["request_id"]
	assert.False(t, ok)
}

func TestFromContext(t *testing.T) {
	l, buf := newBufferedLogger(LevelInfo)
	ctx := WithLogger(context.Background(), l.WithField("request_id", "abc"))

	FromContext(ctx).Info("from context")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0]["request_id"])

	assert.Same(t, GetGlobalLogger(), FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("loud"))
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseLogFormat("console"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
