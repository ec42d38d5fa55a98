package encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
)

var rgbLayout = core.Layout{Width: 16, Height: 8, Components: 3, ColorSpace: core.ColorSpaceRGB}

// writeGradient feeds layout.Height rows into s.
func writeGradient(t *testing.T, s core.EncodeSession, layout core.Layout) {
	t.Helper()
	row := make([]byte, layout.RowStride())
	for y := 0; y < layout.Height; y++ {
		for i := range row {
			row[i] = byte(y * 16)
		}
		if err := s.WriteRow(row); err != nil {
			t.Fatalf("WriteRow %d: %v", y, err)
		}
	}
}

func TestEncoders(t *testing.T) {
	jpegli, err := NewJpegli("444")
	if err != nil {
		t.Fatal(err)
	}
	gray := core.Layout{Width: 9, Height: 5, Components: 1, ColorSpace: core.ColorSpaceGray}

	tests := []struct {
		name      string
		enc       core.Encoder
		layout    core.Layout
		wantModel color.Model
	}{
		{"stdlib rgb", NewJPEG(), rgbLayout, color.YCbCrModel},
		{"stdlib gray", NewJPEG(), gray, color.GrayModel},
		{"jpegli rgb", jpegli, rgbLayout, color.YCbCrModel},
		{"jpegli gray", jpegli, gray, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			s, err := tc.enc.NewSession(context.Background(), &buf)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if err := s.Configure(tc.layout, 80); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			if err := s.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			writeGradient(t, s, tc.layout)
			if err := s.Finish(); err != nil {
				t.Fatalf("Finish: %v", err)
			}

			cfg, err := jpeg.DecodeConfig(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("output not a JPEG: %v", err)
			}
			if cfg.Width != tc.layout.Width || cfg.Height != tc.layout.Height {
				t.Errorf("size: got %dx%d", cfg.Width, cfg.Height)
			}
			if tc.wantModel != nil && cfg.ColorModel != tc.wantModel {
				t.Errorf("colour model: got %v", cfg.ColorModel)
			}
		})
	}
}

func TestFrameSession_Errors(t *testing.T) {
	newStarted := func(t *testing.T) core.EncodeSession {
		t.Helper()
		s, err := NewJPEG().NewSession(context.Background(), &bytes.Buffer{})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Configure(rgbLayout, 90); err != nil {
			t.Fatal(err)
		}
		if err := s.Start(); err != nil {
			t.Fatal(err)
		}
		return s
	}

	t.Run("cmyk rejected", func(t *testing.T) {
		s, _ := NewJPEG().NewSession(context.Background(), &bytes.Buffer{})
		err := s.Configure(core.Layout{Width: 2, Height: 2, Components: 4, ColorSpace: core.ColorSpaceCMYK}, 90)
		if !errors.Is(err, apperrors.ErrIncompatibleLayout) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("invalid layout", func(t *testing.T) {
		s, _ := NewJPEG().NewSession(context.Background(), &bytes.Buffer{})
		err := s.Configure(core.Layout{Width: 2, Height: 0, Components: 3, ColorSpace: core.ColorSpaceRGB}, 90)
		if !errors.Is(err, apperrors.ErrInvalidDimensions) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("start before configure", func(t *testing.T) {
		s, _ := NewJPEG().NewSession(context.Background(), &bytes.Buffer{})
		if err := s.Start(); !errors.Is(err, apperrors.ErrSessionState) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("row size", func(t *testing.T) {
		if err := newStarted(t).WriteRow(make([]byte, 47)); !errors.Is(err, apperrors.ErrRowSize) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("too many rows", func(t *testing.T) {
		s := newStarted(t)
		writeGradient(t, s, rgbLayout)
		if err := s.WriteRow(make([]byte, rgbLayout.RowStride())); !errors.Is(err, apperrors.ErrScanlineOverflow) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("finish early", func(t *testing.T) {
		s := newStarted(t)
		s.WriteRow(make([]byte, rgbLayout.RowStride()))
		if err := s.Finish(); !errors.Is(err, apperrors.ErrIncompleteImage) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("configure after start", func(t *testing.T) {
		if err := newStarted(t).Configure(rgbLayout, 50); !errors.Is(err, apperrors.ErrSessionState) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("nil writer", func(t *testing.T) {
		if _, err := NewJPEG().NewSession(context.Background(), nil); err == nil {
			t.Error("expected error for nil writer")
		}
	})
}

func TestFrameSession_PassesFrameAndQuality(t *testing.T) {
	var (
		gotQuality int
		gotImage   image.Image
	)
	s, err := NewFrameSession(context.Background(), &bytes.Buffer{}, "probe",
		func(core.ColorSpace) bool { return true },
		func(_ io.Writer, img image.Image, quality int) error {
			gotImage, gotQuality = img, quality
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Configure(rgbLayout, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	writeGradient(t, s, rgbLayout)
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}

	if gotQuality != 0 {
		t.Errorf("quality: got %d, want 0 passed through unchanged", gotQuality)
	}
	rgba, ok := gotImage.(*image.RGBA)
	if !ok {
		t.Fatalf("frame type: %T", gotImage)
	}
	if c := rgba.RGBAAt(3, 7); c != (color.RGBA{R: 112, G: 112, B: 112, A: 255}) {
		t.Errorf("pixel (3,7): got %v", c)
	}
}

func TestClampQuality(t *testing.T) {
	for in, want := range map[int]int{-5: 1, 0: 1, 1: 1, 75: 75, 100: 100, 250: 100} {
		if got := ClampQuality(in); got != want {
			t.Errorf("ClampQuality(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestParseChroma(t *testing.T) {
	tests := []struct {
		in   string
		want image.YCbCrSubsampleRatio
		ok   bool
	}{
		{"", image.YCbCrSubsampleRatio420, true},
		{"420", image.YCbCrSubsampleRatio420, true},
		{"422", image.YCbCrSubsampleRatio422, true},
		{"444", image.YCbCrSubsampleRatio444, true},
		{"411", 0, false},
	}
	for _, tc := range tests {
		got, err := ParseChroma(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseChroma(%q) = %v, %v", tc.in, got, err)
		}
	}
}
