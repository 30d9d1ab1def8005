package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackRendersBar(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("Analyze", 100, true)
	term.writer = &buf

	cb := term.Callback()
	cb("Analyze", 50, 100, "halfway")

	out := buf.String()
	assert.Contains(t, out, "Analyze")
	assert.Contains(t, out, "50/100")
	assert.Contains(t, out, "(50%)")
	assert.Contains(t, out, "halfway")
}

func TestDoneFillsBarAndEndsLine(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("Analyze", 10, true)
	term.writer = &buf

	term.Done("Analyzed 10 records")

	out := buf.String()
	assert.Contains(t, out, "10/10")
	assert.Contains(t, out, "(100%)")
	assert.Contains(t, out, strings.Repeat("=", barWidth))
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestDisabledTerminalWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("Analyze", 10, false)
	term.writer = &buf

	term.Callback()("Analyze", 5, 10, "")
	term.Done("")

	assert.Empty(t, buf.String())
	assert.False(t, term.IsEnabled())

	term.SetEnabled(true)
	term.Callback()("Analyze", 5, 10, "")
	assert.NotEmpty(t, buf.String())
}

func TestZeroTotalDoesNotDivideByZero(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("Analyze", 0, true)
	term.writer = &buf

	term.Callback()("Analyze", 0, 0, "")
	assert.Contains(t, buf.String(), "0/1")
}

func TestRerenderClearsPreviousLine(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal("Analyze", 100, true)
	term.writer = &buf

	cb := term.Callback()
	cb("Analyze", 10, 100, "a very long chunk message")
	cb("Analyze", 20, 100, "")

	// Second render starts by blanking the longer first line.
	assert.GreaterOrEqual(t, strings.Count(buf.String(), "\r"), 3)
}

func TestNoopIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { Noop("op", 1, 2, "msg") })
}
