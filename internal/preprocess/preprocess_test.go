package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/flood-api/internal/mask"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestTensorLayout(t *testing.T) {
	tensor, err := Tensor(solid(mask.Size, mask.Size, color.RGBA{R: 255, G: 0, B: 128, A: 255}))
	require.NoError(t, err)
	require.Len(t, tensor, TensorLen)

	plane := mask.Size * mask.Size
	wantR := (1 - Mean[0]) / Std[0]
	wantG := (0 - Mean[1]) / Std[1]
	wantB := (float32(128)/255 - Mean[2]) / Std[2]

	for _, idx := range []int{0, plane / 2, plane - 1} {
		assert.InDelta(t, wantR, tensor[idx], 1e-5)
		assert.InDelta(t, wantG, tensor[plane+idx], 1e-5)
		assert.InDelta(t, wantB, tensor[2*plane+idx], 1e-5)
	}
}

func TestTensorResizesAnySize(t *testing.T) {
	tensor, err := Tensor(solid(1000, 37, color.Gray{Y: 200}))
	require.NoError(t, err)
	require.Len(t, tensor, TensorLen)

	want := (float32(200)/255 - Mean[1]) / Std[1]
	assert.InDelta(t, want, tensor[TensorLen/3+100], 0.02)
}

func TestTensorDropsAlpha(t *testing.T) {
	translucent := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(translucent.Pix); i += 4 {
		translucent.Pix[i], translucent.Pix[i+1], translucent.Pix[i+2], translucent.Pix[i+3] = 255, 255, 255, 10
	}
	tensor, err := Tensor(translucent)
	require.NoError(t, err)
	assert.InDelta(t, (1-Mean[0])/Std[0], tensor[0], 1e-5)
}

func TestTensorIntoRejectsBadBuffer(t *testing.T) {
	err := TensorInto(make([]float32, 10), solid(4, 4, color.White))
	require.Error(t, err)

	err = TensorInto(make([]float32, TensorLen), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
}
