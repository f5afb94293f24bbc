package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Limits bounds the declared size of an image.
type Limits struct {
	MaxPixels    int64
	MaxDimension int
}

// DefaultLimits matches the CDN's largest sensible originals.
var DefaultLimits = Limits{MaxPixels: 24_000_000, MaxDimension: 12_000}

// Oversized reports whether w x h breaks either limit. Unknown (non-positive)
// dimensions are never oversized.
func (l Limits) Oversized(w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	if l.MaxDimension > 0 && (w > l.MaxDimension || h > l.MaxDimension) {
		return true
	}
	return l.MaxPixels > 0 && int64(w)*int64(h) > l.MaxPixels
}

// ErrNeedMoreData means the header did not fit in the bytes seen so far.
var ErrNeedMoreData = errors.New("image header incomplete")

// Dimensions is a decoded image header.
type Dimensions struct {
	Width, Height int
	Format        string
}

// Probe decodes the image header in head. It returns ErrNeedMoreData when
// head is a truncated but otherwise recognisable header.
func Probe(head []byte) (Dimensions, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(head))
	if err == nil {
		return Dimensions{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
	}
	if errors.Is(err, image.ErrFormat) {
		return Dimensions{}, fmt.Errorf("probing image: %w", err)
	}
	return Dimensions{}, ErrNeedMoreData
}
