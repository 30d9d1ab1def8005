package template

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		vars  map[string]string
		check func(t *testing.T, out string)
	}{
		{
			name:  "date placeholder",
			input: "updates-{date}.qup",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "updates-"+time.Now().Format("2006"))
				assert.NotContains(t, out, "{date}")
			},
		},
		{
			name:  "unix placeholder is numeric",
			input: "{unix}",
			check: func(t *testing.T, out string) {
				_, err := strconv.ParseInt(out, 10, 64)
				assert.NoError(t, err)
			},
		},
		{
			name:  "custom var",
			input: "pkg-{version}.qup",
			vars:  map[string]string{"version": "2026.08.1"},
			check: func(t *testing.T, out string) {
				assert.Equal(t, "pkg-2026.08.1.qup", out)
			},
		},
		{
			name:  "custom var overrides built-in",
			input: "Date {date}",
			vars:  map[string]string{"date": "2024-01-01"},
			check: func(t *testing.T, out string) {
				assert.Equal(t, "Date 2024-01-01", out)
			},
		},
		{
			name:  "no placeholders passes through",
			input: "Simple text",
			check: func(t *testing.T, out string) {
				assert.Equal(t, "Simple text", out)
			},
		},
		{
			name:  "unknown placeholder stays literal",
			input: "{nope}",
			check: func(t *testing.T, out string) {
				assert.Equal(t, "{nope}", out)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Expand(tt.input, tt.vars))
		})
	}
}

func TestExpandActor(t *testing.T) {
	actor := ExpandActor("{user}@{hostname}")
	assert.NotContains(t, actor, "{user}")
	assert.NotContains(t, actor, "{hostname}")
	assert.Contains(t, actor, "@")
}
