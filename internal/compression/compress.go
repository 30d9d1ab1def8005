// Package compression encodes and decodes update package payload blobs.
// It supports gzip at configurable levels; the payload encoding travels in
// the package manifest so readers never guess.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/quorum-project/quorum/pkg/errclass"
	"github.com/quorum-project/quorum/pkg/model"
)

// CompressionLevel represents the compression level.
type CompressionLevel int

const (
	// LevelNone disables compression.
	LevelNone CompressionLevel = 0
	// LevelFast uses fastest compression (gzip level 1).
	LevelFast CompressionLevel = 1
	// LevelDefault uses default compression (gzip level 6).
	LevelDefault CompressionLevel = 6
	// LevelMax uses maximum compression (gzip level 9).
	LevelMax CompressionLevel = 9
)

// Compressor handles payload encoding operations.
type Compressor struct {
	Encoding model.PayloadEncoding
	Level    CompressionLevel
}

// NewCompressor creates a new compressor with the specified level.
// Level 0 means no compression.
func NewCompressor(level CompressionLevel) *Compressor {
	if level <= LevelNone {
		return &Compressor{Encoding: model.EncodingNone, Level: LevelNone}
	}
	return &Compressor{Encoding: model.EncodingGzip, Level: level}
}

// NewCompressorFromString creates a compressor from a string level.
// Valid values: "none", "fast", "default", "max"
func NewCompressorFromString(level string) (*Compressor, error) {
	switch strings.ToLower(level) {
	case "none", "0":
		return NewCompressor(LevelNone), nil
	case "fast", "1":
		return NewCompressor(LevelFast), nil
	case "default", "6":
		return NewCompressor(LevelDefault), nil
	case "max", "9":
		return NewCompressor(LevelMax), nil
	default:
		return nil, fmt.Errorf("invalid compression level: %s (must be none, fast, default, or max)", level)
	}
}

// IsEnabled returns true if compression is enabled.
func (c *Compressor) IsEnabled() bool {
	return c.Encoding != model.EncodingNone
}

// String returns the string representation of the compressor.
func (c *Compressor) String() string {
	switch c.Level {
	case LevelNone:
		return "none"
	case LevelFast:
		return "fast"
	case LevelDefault:
		return "default"
	case LevelMax:
		return "max"
	default:
		return fmt.Sprintf("level-%d", c.Level)
	}
}

// Encode returns data in the compressor's payload encoding.
func (c *Compressor) Encode(data []byte) ([]byte, error) {
	if !c.IsEnabled() {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, int(c.Level))
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses a payload encoding. maxBytes bounds the decoded size;
// a blob that inflates past it fails with E_PAYLOAD_TOO_LARGE before the
// decoder allocates further. maxBytes <= 0 means unbounded.
func Decode(data []byte, enc model.PayloadEncoding, maxBytes int64) ([]byte, error) {
	switch enc {
	case model.EncodingNone, "":
		if maxBytes > 0 && int64(len(data)) > maxBytes {
			return nil, errclass.ErrPayloadTooLarge.WithMessagef(
				"payload is %d bytes, limit %d", len(data), maxBytes)
		}
		return data, nil
	case model.EncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("gzip header: %v", err)
		}
		defer r.Close()

		limit := maxBytes
		if limit <= 0 {
			limit = int64(^uint64(0) >> 2)
		}
		var buf bytes.Buffer
		n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
		if err != nil {
			return nil, errclass.ErrPayloadInvalid.WithMessagef("gzip decode: %v", err)
		}
		if n > limit {
			return nil, errclass.ErrPayloadTooLarge.WithMessagef(
				"payload inflates past %d bytes", limit)
		}
		return buf.Bytes(), nil
	}
	return nil, errclass.ErrFormatUnsupported.WithMessagef("unknown payload encoding %q", enc)
}
