package mask

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// Size is the fixed working resolution of both models.
const Size = 256

// TotalPixels is Size*Size.
const TotalPixels = Size * Size

var ErrShapeMismatch = errors.New("mask shape mismatch")

// Binary is a row-major grid of 0/1 cells.
type Binary struct {
	Width  int
	Height int
	Pix    []uint8
}

func New(width, height int) *Binary {
	return &Binary{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// FromLogits thresholds raw model outputs. sigmoid(v) > threshold is evaluated
// on the logit directly so that no probability buffer is allocated.
func FromLogits(logits []float32, width, height int, threshold float64) (*Binary, error) {
	if len(logits) != width*height {
		return nil, fmt.Errorf("%w: got %d logits for %dx%d", ErrShapeMismatch, len(logits), width, height)
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0,1), got %v", threshold)
	}

	cut := math.Log(threshold / (1 - threshold))
	m := New(width, height)
	for i, v := range logits {
		if float64(v) > cut {
			m.Pix[i] = 1
		}
	}
	return m, nil
}

func (m *Binary) At(x, y int) bool {
	return m.Pix[y*m.Width+x] != 0
}

func (m *Binary) Set(x, y int, on bool) {
	if on {
		m.Pix[y*m.Width+x] = 1
	} else {
		m.Pix[y*m.Width+x] = 0
	}
}

// Fill sets every cell to on.
func (m *Binary) Fill(on bool) {
	var v uint8
	if on {
		v = 1
	}
	for i := range m.Pix {
		m.Pix[i] = v
	}
}

func (m *Binary) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

func (m *Binary) checkShape() error {
	if m == nil {
		return fmt.Errorf("%w: nil mask", ErrShapeMismatch)
	}
	if m.Width != Size || m.Height != Size || len(m.Pix) != TotalPixels {
		return fmt.Errorf("%w: mask must be %dx%d, got %dx%d", ErrShapeMismatch, Size, Size, m.Width, m.Height)
	}
	return nil
}

// roundPercent rounds to two decimals, ties to even.
func roundPercent(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// Image renders the mask as 8-bit grayscale, 255 where set.
func (m *Binary) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v != 0 {
			img.Pix[i] = 0xff
		}
	}
	return img
}
