package decoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"testing"

	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
)

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func solidRGB(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func noisyRGB(w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

// cmykJPEG is a 16x8 baseline JPEG with four components and an Adobe APP14
// segment (transform 0).  Every block holds a zero DC and an immediate EOB,
// coded with one-symbol Huffman tables, so each block is the bits "00".
func cmykJPEG() []byte {
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8})
	b.Write([]byte{0xFF, 0xEE, 0x00, 0x0E, 'A', 'd', 'o', 'b', 'e', 0x00, 0x64, 0x00, 0x00, 0x00, 0x00, 0x00})
	b.Write([]byte{0xFF, 0xDB, 0x00, 0x43, 0x00})
	b.Write(bytes.Repeat([]byte{0x01}, 64))
	b.Write([]byte{0xFF, 0xC0, 0x00, 0x14, 0x08, 0x00, 0x08, 0x00, 0x10, 0x04,
		0x01, 0x11, 0x00, 0x02, 0x11, 0x00, 0x03, 0x11, 0x00, 0x04, 0x11, 0x00})
	for _, class := range []byte{0x00, 0x10} {
		b.Write([]byte{0xFF, 0xC4, 0x00, 0x14, class, 0x01})
		b.Write(make([]byte, 15))
		b.WriteByte(0x00)
	}
	b.Write([]byte{0xFF, 0xDA, 0x00, 0x0E, 0x04, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x3F, 0x00})
	b.Write([]byte{0x00, 0x00})
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

func newSession(t *testing.T, data []byte) core.DecodeSession {
	t.Helper()
	s, err := NewJPEG(0).NewSession(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_RGB(t *testing.T) {
	s := newSession(t, encode(t, solidRGB(10, 6, color.RGBA{R: 250, G: 10, B: 10, A: 255})))

	header, err := s.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	want := core.Layout{Width: 10, Height: 6, Components: 3, ColorSpace: core.ColorSpaceRGB}
	if header != want {
		t.Fatalf("header: got %+v, want %+v", header, want)
	}
	layout, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if layout != want {
		t.Fatalf("layout: got %+v, want %+v", layout, want)
	}

	row := make([]byte, layout.RowStride())
	for s.Scanline() < layout.Height {
		if err := s.ReadRow(row); err != nil {
			t.Fatalf("ReadRow %d: %v", s.Scanline(), err)
		}
	}
	if row[0] < 230 || row[1] > 30 || row[2] > 30 {
		t.Errorf("last row first pixel: got %v, want roughly red", row[:3])
	}
	if err := s.ReadRow(row); !errors.Is(err, apperrors.ErrScanlineOverflow) {
		t.Errorf("extra ReadRow: got %v, want ErrScanlineOverflow", err)
	}
	if err := s.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestSession_GrayToGray(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 8, 8))
	s := newSession(t, encode(t, gray))

	header, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if header.ColorSpace != core.ColorSpaceGray || header.Components != 1 {
		t.Fatalf("header: %+v", header)
	}
	if err := s.SetOutColorSpace(core.ColorSpaceRGB); !errors.Is(err, apperrors.ErrIncompatibleLayout) {
		t.Errorf("gray to rgb: got %v, want ErrIncompatibleLayout", err)
	}
}

func TestSession_RGBToGray(t *testing.T) {
	s := newSession(t, encode(t, solidRGB(4, 4, color.RGBA{R: 128, G: 128, B: 128, A: 255})))
	if _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOutColorSpace(core.ColorSpaceGray); err != nil {
		t.Fatalf("SetOutColorSpace: %v", err)
	}
	layout, err := s.Start()
	if err != nil {
		t.Fatal(err)
	}
	if layout.Components != 1 || layout.RowStride() != 4 {
		t.Errorf("layout: %+v", layout)
	}
}

func TestSession_OrderAndErrors(t *testing.T) {
	valid := encode(t, solidRGB(4, 4, color.RGBA{A: 255}))

	t.Run("start before header", func(t *testing.T) {
		if _, err := newSession(t, valid).Start(); !errors.Is(err, apperrors.ErrSessionState) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("read before start", func(t *testing.T) {
		s := newSession(t, valid)
		s.ReadHeader()
		if err := s.ReadRow(make([]byte, 12)); !errors.Is(err, apperrors.ErrSessionState) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("wrong row size", func(t *testing.T) {
		s := newSession(t, valid)
		s.ReadHeader()
		s.Start()
		if err := s.ReadRow(make([]byte, 11)); !errors.Is(err, apperrors.ErrRowSize) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("header twice", func(t *testing.T) {
		s := newSession(t, valid)
		s.ReadHeader()
		if _, err := s.ReadHeader(); !errors.Is(err, apperrors.ErrSessionState) {
			t.Errorf("got %v", err)
		}
	})

	bad := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, apperrors.ErrEmptyInput},
		{"png signature", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, apperrors.ErrUnsupportedFormat},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newSession(t, tc.data).ReadHeader()
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
			if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
				t.Errorf("category: %v", err)
			}
		})
	}
}

func TestSession_TruncatedBody(t *testing.T) {
	data := encode(t, noisyRGB(64, 64))
	cut := len(data) - 64
	if sos := bytes.Index(data, []byte{0xFF, 0xDA}); sos < 0 || sos+16 > cut {
		t.Fatalf("cut at %d does not land inside the scan (SOS at %d)", cut, sos)
	}
	s := newSession(t, data[:cut])
	if _, err := s.ReadHeader(); err != nil {
		t.Fatalf("header of truncated file should still parse: %v", err)
	}
	_, err := s.Start()
	if err == nil {
		t.Fatal("expected decode error for truncated body")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("category: %v", err)
	}
}

func TestSession_CMYKToRGB(t *testing.T) {
	s := newSession(t, cmykJPEG())

	header, err := s.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	want := core.Layout{Width: 16, Height: 8, Components: 4, ColorSpace: core.ColorSpaceCMYK}
	if header != want {
		t.Fatalf("header: got %+v, want %+v", header, want)
	}
	if err := s.SetOutColorSpace(core.ColorSpaceRGB); err != nil {
		t.Fatalf("SetOutColorSpace: %v", err)
	}
	layout, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if layout.ColorSpace != core.ColorSpaceRGB || layout.Components != 3 {
		t.Fatalf("layout: %+v", layout)
	}
	row := make([]byte, layout.RowStride())
	for y := 0; y < layout.Height; y++ {
		if err := s.ReadRow(row); err != nil {
			t.Fatalf("row %d: %v", y, err)
		}
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestColorSpace(t *testing.T) {
	tests := []struct {
		model color.Model
		want  core.ColorSpace
	}{
		{color.GrayModel, core.ColorSpaceGray},
		{color.CMYKModel, core.ColorSpaceCMYK},
		{color.YCbCrModel, core.ColorSpaceRGB},
		{color.RGBAModel, core.ColorSpaceRGB},
	}
	for _, tc := range tests {
		if got := colorSpace(tc.model); got != tc.want {
			t.Errorf("colorSpace(%T) = %s, want %s", tc.model, got, tc.want)
		}
	}
}
