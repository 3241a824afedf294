// Package frame decodes camera frame payloads into RGB rasters.
package frame

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/examwatch/examwatch/internal/errors"
)

// Channels is the number of color channels in every Raster, in R, G, B order.
const Channels = 3

// Raster is a decoded frame: Height rows of Width pixels, each pixel Channels
// bytes. A Raster is never modified after decode, so it may be shared between
// goroutines.
type Raster struct {
	Height   int
	Width    int
	Channels int
	Pix      []uint8 // row-major RGB, len = Height*Width*Channels
}

// Shape returns (rows, cols, channels).
func (r *Raster) Shape() [3]int {
	return [3]int{r.Height, r.Width, r.Channels}
}

// RGB returns the color at column x, row y. Out of range coordinates panic.
func (r *Raster) RGB(x, y int) (red, green, blue uint8) {
	i := (y*r.Width + x) * r.Channels
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Image returns the raster as an image.Image, for example to re-encode an
// evidence snapshot. The returned image owns a copy of the pixels.
func (r *Raster) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := range r.Height {
		for x := range r.Width {
			red, green, blue := r.RGB(x, y)
			o := img.PixOffset(x, y)
			img.Pix[o] = red
			img.Pix[o+1] = green
			img.Pix[o+2] = blue
			img.Pix[o+3] = 0xff
		}
	}
	return img
}

// FromImage converts any image.Image into a Raster. An image with no pixels
// is a decode error.
func FromImage(img image.Image) (*Raster, error) {
	if img == nil {
		return nil, decodeError(errors.NewStd("image decoded to nothing"))
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, decodeError(fmt.Errorf("image decoded to an empty %dx%d raster", w, h))
	}

	r := &Raster{
		Height:   h,
		Width:    w,
		Channels: Channels,
		Pix:      make([]uint8, w*h*Channels),
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		// YCbCr, paletted, gray and NRGBA all go through one conversion
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		b = rgba.Bounds()
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
		for x := range w {
			r.Pix[i] = row[x*4]
			r.Pix[i+1] = row[x*4+1]
			r.Pix[i+2] = row[x*4+2]
			i += Channels
		}
	}

	return r, nil
}

// Filled returns a w x h raster of a single color. Used by tests and by
// synthetic camera probes.
func Filled(w, h int, c color.RGBA) *Raster {
	r := &Raster{Height: h, Width: w, Channels: Channels, Pix: make([]uint8, w*h*Channels)}
	for i := 0; i < len(r.Pix); i += Channels {
		r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c.R, c.G, c.B
	}
	return r
}
