package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(level)
	l.SetOutput(&buf)
	return l, &buf
}

func decodeLine(t *testing.T, line string) entry {
	t.Helper()
	var e entry
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	return e
}

func TestLevelThreshold(t *testing.T) {
	l, buf := capture(LevelWarn)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", decodeLine(t, lines[0]).Level)
	assert.Equal(t, "error", decodeLine(t, lines[1]).Level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestFieldsMergeAndOverride(t *testing.T) {
	l, buf := capture(LevelInfo)

	derived := l.WithFields(map[string]any{"store_kind": "indicators", "version": "i-1"})
	derived.Info("committed", map[string]any{"version": "i-2"})

	e := decodeLine(t, strings.TrimSpace(buf.String()))
	assert.Equal(t, "committed", e.Message)
	assert.Equal(t, "indicators", e.Fields["store_kind"])
	assert.Equal(t, "i-2", e.Fields["version"], "call fields override bound fields")
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	l, buf := capture(LevelInfo)

	_ = l.WithFields(map[string]any{"attempt_id": "abc"})
	l.Info("plain")

	e := decodeLine(t, strings.TrimSpace(buf.String()))
	assert.Nil(t, e.Fields)
}

func TestErrorErrBindsError(t *testing.T) {
	l, buf := capture(LevelInfo)

	l.ErrorErr("swap failed", assert.AnError, map[string]any{"store_kind": "rules"})

	e := decodeLine(t, strings.TrimSpace(buf.String()))
	assert.Equal(t, "error", e.Level)
	assert.Equal(t, assert.AnError.Error(), e.Fields["error"])
	assert.Equal(t, "rules", e.Fields["store_kind"])
}

func TestTextFormatSortsFields(t *testing.T) {
	l, buf := capture(LevelInfo)
	l.SetFormat(FormatText)

	l.Info("gc done", map[string]any{"reclaimed": 42, "deleted": 3})

	line := buf.String()
	assert.Contains(t, line, "info")
	assert.Contains(t, line, "gc done")
	assert.Less(t, strings.Index(line, "deleted=3"), strings.Index(line, "reclaimed=42"))
	assert.False(t, strings.HasPrefix(line, "{"))
}

func TestUnknownFormatFallsBackToJSON(t *testing.T) {
	l, buf := capture(LevelInfo)
	l.SetFormat(Format("xml"))

	l.Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestGlobalConfigure(t *testing.T) {
	prev := global
	t.Cleanup(func() { global = prev })

	var buf bytes.Buffer
	SetGlobal(NewLogger(LevelInfo))
	global.SetOutput(&buf)
	Configure("error", "json")

	Info("dropped")
	Error("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", decodeLine(t, lines[0]).Message)
}
