// Package progress renders a terminal progress bar for long batch
// operations, chiefly analyzing large record files.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// Callback receives progress updates as a batch advances.
type Callback func(op string, current, total int, message string)

// Noop discards progress updates.
func Noop(op string, current, total int, message string) {}

const barWidth = 30

// Terminal draws a single-line progress bar on stderr. All methods are
// safe for concurrent use; disabled terminals are free.
type Terminal struct {
	writer      io.Writer
	op          string
	total       int
	current     atomic.Int64
	lastLineLen atomic.Int64
	enabled     atomic.Bool
}

// NewTerminal creates a progress bar for an operation over total items.
func NewTerminal(op string, total int, enabled bool) *Terminal {
	t := &Terminal{writer: os.Stderr, op: op, total: total}
	t.enabled.Store(enabled)
	return t
}

// Callback returns a Callback that drives this bar.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, message string) {
		if !t.enabled.Load() {
			return
		}
		t.current.Store(int64(current))
		t.render(message)
	}
}

func (t *Terminal) render(message string) {
	current := t.current.Load()
	total := int64(t.total)
	if total <= 0 {
		total = 1
	}

	filled := int(int64(barWidth) * current / total)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	// Overwrite whatever the previous render left behind.
	clear := "\r"
	if lastLen := t.lastLineLen.Load(); lastLen > 0 {
		clear = "\r" + strings.Repeat(" ", int(lastLen)) + "\r"
	}

	line := fmt.Sprintf("%s [%s] %d/%d (%.0f%%)",
		t.op, bar, current, total, float64(current)/float64(total)*100)
	if message != "" {
		line += " " + message
	}

	fmt.Fprint(t.writer, clear+line)
	t.lastLineLen.Store(int64(len(line)))
}

// Done completes the bar and prints a final newline.
func (t *Terminal) Done(message string) {
	if !t.enabled.Load() {
		return
	}
	t.current.Store(int64(t.total))
	t.render(message)
	fmt.Fprintln(t.writer)
}

// SetEnabled toggles rendering, e.g. when output is not a tty.
func (t *Terminal) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// IsEnabled reports whether the bar renders.
func (t *Terminal) IsEnabled() bool {
	return t.enabled.Load()
}
