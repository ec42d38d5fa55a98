package utils

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Raster is an interleaved 8-bit pixel buffer addressed by scanline.
// Components is 1 (gray), 3 (RGB) or 4 (CMYK).
type Raster struct {
	Width      int
	Height     int
	Components int
	Pix        []byte
}

// NewRaster allocates a zeroed raster.
func NewRaster(width, height, components int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", width, height)
	}
	switch components {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("raster: unsupported component count %d", components)
	}
	return &Raster{
		Width:      width,
		Height:     height,
		Components: components,
		Pix:        make([]byte, width*height*components),
	}, nil
}

// Stride is the byte length of one row.
func (r *Raster) Stride() int { return r.Width * r.Components }

// Row returns row y as a slice aliasing Pix.
func (r *Raster) Row(y int) []byte {
	s := r.Stride()
	return r.Pix[y*s : (y+1)*s]
}

// RasterFromImage flattens img into a raster with the requested component
// count, converting colour models as needed.
func RasterFromImage(img image.Image, components int) (*Raster, error) {
	b := img.Bounds()
	r, err := NewRaster(b.Dx(), b.Dy(), components)
	if err != nil {
		return nil, err
	}
	dstRect := image.Rect(0, 0, b.Dx(), b.Dy())

	switch components {
	case 1:
		src, ok := img.(*image.Gray)
		if !ok {
			src = image.NewGray(dstRect)
			xdraw.Draw(src, dstRect, img, b.Min, xdraw.Src)
		}
		copyRows(r, src.Pix, src.Stride, src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y))

	case 3:
		rgba := image.NewRGBA(dstRect)
		xdraw.Draw(rgba, dstRect, img, b.Min, xdraw.Src)
		for y := 0; y < r.Height; y++ {
			srow := rgba.Pix[y*rgba.Stride : y*rgba.Stride+r.Width*4]
			drow := r.Row(y)
			for x := 0; x < r.Width; x++ {
				drow[x*3+0] = srow[x*4+0]
				drow[x*3+1] = srow[x*4+1]
				drow[x*3+2] = srow[x*4+2]
			}
		}

	case 4:
		src, ok := img.(*image.CMYK)
		if !ok {
			src = image.NewCMYK(dstRect)
			xdraw.Draw(src, dstRect, img, b.Min, xdraw.Src)
		}
		copyRows(r, src.Pix, src.Stride, src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y))
	}
	return r, nil
}

func copyRows(r *Raster, pix []byte, stride, offset int) {
	n := r.Stride()
	for y := 0; y < r.Height; y++ {
		start := offset + y*stride
		copy(r.Row(y), pix[start:start+n])
	}
}

// Image exposes the raster as an image.Image the stdlib encoders understand:
// *image.Gray, *image.RGBA or *image.CMYK.
func (r *Raster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.Components {
	case 1:
		return &image.Gray{Pix: r.Pix, Stride: r.Stride(), Rect: rect}
	case 4:
		return &image.CMYK{Pix: r.Pix, Stride: r.Stride(), Rect: rect}
	}
	rgba := image.NewRGBA(rect)
	for y := 0; y < r.Height; y++ {
		srow := r.Row(y)
		drow := rgba.Pix[y*rgba.Stride : y*rgba.Stride+r.Width*4]
		for x := 0; x < r.Width; x++ {
			drow[x*4+0] = srow[x*3+0]
			drow[x*4+1] = srow[x*3+1]
			drow[x*4+2] = srow[x*3+2]
			drow[x*4+3] = 0xFF
		}
	}
	return rgba
}
