package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/Brownie44l1/flood-api/internal/imageutil"
	"github.com/Brownie44l1/flood-api/internal/mask"
)

var ErrInvalidAlpha = errors.New("alpha must be within [0,1]")

// Style is the tint applied to mask-positive pixels.
type Style struct {
	Color color.RGBA
	Alpha float64
}

// Composite blends style.Color into base wherever m is set. The base is
// resized to the mask dimensions first when they differ.
func Composite(base image.Image, m *mask.Binary, style Style) (*image.RGBA, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil mask", mask.ErrShapeMismatch)
	}
	if style.Alpha < 0 || style.Alpha > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAlpha, style.Alpha)
	}
	if len(m.Pix) != m.Width*m.Height {
		return nil, fmt.Errorf("%w: %d cells for %dx%d", mask.ErrShapeMismatch, len(m.Pix), m.Width, m.Height)
	}

	out := imageutil.Resize(base, m.Width, m.Height)
	tint := [3]float64{float64(style.Color.R), float64(style.Color.G), float64(style.Color.B)}
	keep := 1 - style.Alpha

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			i := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				out.Pix[i+c] = clamp(keep*float64(out.Pix[i+c]) + style.Alpha*tint[c])
			}
		}
	}
	return out, nil
}

// clamp truncates toward zero after bounding to the channel range.
func clamp(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
