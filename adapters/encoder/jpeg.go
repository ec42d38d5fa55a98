// Package encoder provides scanline encoding sessions.
package encoder

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/utils"
)

// JPEG encodes images to JPEG format with the standard library.
type JPEG struct{}

func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) Name() string { return "stdlib" }

// Accepts reports gray and RGB.  image/jpeg writes CMYK input as YCbCr, which
// would silently change the component count.
func (j *JPEG) Accepts(cs core.ColorSpace) bool {
	return cs == core.ColorSpaceGray || cs == core.ColorSpaceRGB
}

func (j *JPEG) NewSession(ctx context.Context, w io.Writer) (core.EncodeSession, error) {
	return NewFrameSession(ctx, w, "jpeg", j.Accepts, func(w io.Writer, img image.Image, quality int) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	})
}

// EncodeFunc writes a complete frame at the given quality.
type EncodeFunc func(w io.Writer, img image.Image, quality int) error

// frameSession accumulates scanlines into a raster and hands the finished
// frame to an EncodeFunc.  Backends whose libraries only encode whole images
// share it.
type frameSession struct {
	ctx     context.Context
	w       io.Writer
	op      string
	accepts func(core.ColorSpace) bool
	encode  EncodeFunc

	configured bool
	started    bool
	finished   bool
	layout     core.Layout
	quality    int
	raster     *utils.Raster
	line       int
}

// NewFrameSession returns an EncodeSession that buffers rows and calls encode
// from Finish.  accepts decides which colour spaces Configure allows.
func NewFrameSession(ctx context.Context, w io.Writer, op string, accepts func(core.ColorSpace) bool, encode EncodeFunc) (core.EncodeSession, error) {
	if w == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op+".encode", apperrors.ErrEmptyInput)
	}
	return &frameSession{ctx: ctx, w: w, op: op, accepts: accepts, encode: encode}, nil
}

func (s *frameSession) Configure(layout core.Layout, quality int) error {
	if s.started {
		return apperrors.New(apperrors.CategoryEncode, s.op+".configure", apperrors.ErrSessionState)
	}
	if !layout.Valid() {
		return apperrors.New(apperrors.CategoryEncode, s.op+".configure",
			fmt.Errorf("%w: %+v", apperrors.ErrInvalidDimensions, layout))
	}
	if !s.accepts(layout.ColorSpace) {
		return apperrors.New(apperrors.CategoryEncode, s.op+".configure",
			fmt.Errorf("%w: %s", apperrors.ErrIncompatibleLayout, layout.ColorSpace))
	}
	s.layout = layout
	s.quality = quality
	s.configured = true
	return nil
}

func (s *frameSession) Start() error {
	if !s.configured || s.started {
		return apperrors.New(apperrors.CategoryEncode, s.op+".start", apperrors.ErrSessionState)
	}
	raster, err := utils.NewRaster(s.layout.Width, s.layout.Height, s.layout.Components)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, s.op+".start", err)
	}
	s.raster = raster
	s.started = true
	return nil
}

func (s *frameSession) WriteRow(row []byte) error {
	if !s.started || s.finished {
		return apperrors.New(apperrors.CategoryEncode, s.op+".write_row", apperrors.ErrSessionState)
	}
	if s.line >= s.layout.Height {
		return apperrors.New(apperrors.CategoryEncode, s.op+".write_row", apperrors.ErrScanlineOverflow)
	}
	if len(row) != s.layout.RowStride() {
		return apperrors.New(apperrors.CategoryEncode, s.op+".write_row",
			fmt.Errorf("%w: got %d, want %d", apperrors.ErrRowSize, len(row), s.layout.RowStride()))
	}
	copy(s.raster.Row(s.line), row)
	s.line++
	return nil
}

func (s *frameSession) Finish() error {
	if !s.started || s.finished {
		return apperrors.New(apperrors.CategoryEncode, s.op+".finish", apperrors.ErrSessionState)
	}
	if s.line != s.layout.Height {
		return apperrors.New(apperrors.CategoryEncode, s.op+".finish",
			fmt.Errorf("%w: %d of %d", apperrors.ErrIncompleteImage, s.line, s.layout.Height))
	}
	if err := s.ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, s.op+".finish", err)
	}
	s.finished = true
	if err := s.encode(s.w, s.raster.Image(), s.quality); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, s.op+".finish", err)
	}
	return nil
}

func (s *frameSession) Close() error {
	s.raster = nil
	return nil
}

var _ core.Encoder = (*JPEG)(nil)
