// Package imageutil holds the small raster helpers shared by preprocessing
// and overlay rendering.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// RGB returns an opaque copy of img anchored at the origin. Alpha is dropped
// rather than composited so colors match what was stored in the file.
func RGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			out := dst.Pix[dst.PixOffset(0, y):]
			for i := 0; i < 4*b.Dx(); i += 4 {
				out[i], out[i+1], out[i+2], out[i+3] = row[i], row[i+1], row[i+2], 0xff
			}
		}
		return dst
	case *image.RGBA:
		if src.Opaque() {
			for y := 0; y < b.Dy(); y++ {
				copy(dst.Pix[dst.PixOffset(0, y):dst.PixOffset(0, y)+4*b.Dx()],
					src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
			}
			return dst
		}
	case *image.YCbCr, *image.Gray:
		draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// Resize scales img to width x height with bilinear interpolation. Model
// input and display images both go through here so they stay pixel-identical.
func Resize(img image.Image, width, height int) *image.RGBA {
	src := RGB(img)
	if src.Rect.Dx() == width && src.Rect.Dy() == height {
		return src
	}
	return RGB(resize.Resize(uint(width), uint(height), src, resize.Bilinear))
}

// DataURI encodes img as PNG and wraps it in a data URI.
func DataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
