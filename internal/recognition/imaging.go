package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned when image bytes cannot be decoded.
var ErrInvalidImage = errors.New("invalid image")

// Decode decodes JPEG, PNG, GIF, BMP or WebP bytes into a normalized RGBA image.
func Decode(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return Normalize(img), nil
}

// Normalize converts img into an RGBA image anchored at (0,0). Every image
// entering the pipeline goes through here so downstream code sees one color order.
func Normalize(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

// ExpandBox grows box by margin*min(w,h) on every side and clamps it to bounds.
// The result is empty when box lies outside bounds.
func ExpandBox(box Box, margin float64, bounds image.Rectangle) image.Rectangle {
	m := int(float64(min(box.W, box.H)) * margin)
	if m < 0 {
		m = 0
	}
	r := image.Rect(box.X-m, box.Y-m, box.X+box.W+m, box.Y+box.H+m)
	return r.Intersect(bounds)
}

// CropResize cuts rect out of img and scales it to size x size.
func CropResize(img image.Image, rect image.Rectangle, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)
	return dst
}

// Downscale shrinks img so its longer side is at most maxDim. Images already
// small enough, and maxDim <= 0, are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || max(w, h) <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(max(w, h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
