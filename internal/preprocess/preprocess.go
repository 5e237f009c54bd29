package preprocess

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/flood-api/internal/imageutil"
	"github.com/Brownie44l1/flood-api/internal/mask"
)

// ImageNet statistics the models were trained with.
var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

// TensorLen is the element count of a [1,3,Size,Size] input.
const TensorLen = 3 * mask.Size * mask.Size

// Tensor converts an image to the normalized CHW layout the models expect:
// RGB, bilinear resize to Size x Size, scale to [0,1], subtract mean, divide by std.
func Tensor(img image.Image) ([]float32, error) {
	out := make([]float32, TensorLen)
	if err := TensorInto(out, img); err != nil {
		return nil, err
	}
	return out, nil
}

// TensorInto writes the normalized tensor into dst, which must hold TensorLen values.
func TensorInto(dst []float32, img image.Image) error {
	if len(dst) != TensorLen {
		return fmt.Errorf("tensor buffer holds %d values, need %d", len(dst), TensorLen)
	}
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("empty image")
	}

	resized := imageutil.Resize(img, mask.Size, mask.Size)

	width, height := mask.Size, mask.Size
	plane := width * height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := resized.PixOffset(x, y)
			pixelIndex := y*width + x
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[i+c]) / 255.0
				dst[c*plane+pixelIndex] = (v - Mean[c]) / Std[c]
			}
		}
	}
	return nil
}
