// Package decoder provides scanline decoding sessions.
package decoder

import (
	"context"
	"fmt"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/utils"
)

// JPEG decodes JPEG images using the standard library.  image/jpeg has no
// incremental API, so Start decodes the whole frame and ReadRow serves rows
// from the flattened raster.
type JPEG struct {
	ChunkSize int
}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG(chunkSize int) *JPEG { return &JPEG{ChunkSize: chunkSize} }

func (j *JPEG) Name() string { return "stdlib" }

func (j *JPEG) NewSession(ctx context.Context, r io.Reader) (core.DecodeSession, error) {
	if r == nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "jpeg.decode", apperrors.ErrEmptyInput)
	}
	return &jpegSession{ctx: ctx, r: r, chunkSize: j.ChunkSize}, nil
}

type sessionState int

const (
	stateNew sessionState = iota
	stateHeader
	stateStarted
	stateFinished
	stateClosed
)

type jpegSession struct {
	ctx       context.Context
	r         io.Reader
	chunkSize int

	state  sessionState
	data   []byte
	header core.Layout
	outCS  core.ColorSpace
	raster *utils.Raster
	line   int
}

func (s *jpegSession) ReadHeader() (core.Layout, error) {
	if s.state != stateNew {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "jpeg.read_header", apperrors.ErrSessionState)
	}

	buf, err := utils.DrainReader(s.ctx, s.r, s.chunkSize)
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.read_header", err)
	}
	s.data = utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	if len(s.data) == 0 {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "jpeg.read_header", apperrors.ErrEmptyInput)
	}
	if !utils.IsJPEG(s.data) {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "jpeg.read_header",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, utils.DetectFormat(s.data)))
	}

	cfg, err := jpeg.DecodeConfig(utils.BytesReader(s.data))
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.read_header", err)
	}
	cs := colorSpace(cfg.ColorModel)
	layout := core.Layout{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Components: cs.Components(),
		ColorSpace: cs,
	}
	if !layout.Valid() {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "jpeg.read_header",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, cfg.Width, cfg.Height))
	}

	s.header = layout
	s.outCS = cs
	s.state = stateHeader
	return layout, nil
}

// SetOutColorSpace accepts the header colour space itself, CMYK to RGB and
// anything to gray.
func (s *jpegSession) SetOutColorSpace(cs core.ColorSpace) error {
	if s.state != stateHeader {
		return apperrors.New(apperrors.CategoryDecode, "jpeg.set_out_color_space", apperrors.ErrSessionState)
	}
	switch {
	case cs == s.header.ColorSpace, cs == core.ColorSpaceGray,
		cs == core.ColorSpaceRGB && s.header.ColorSpace == core.ColorSpaceCMYK:
		s.outCS = cs
		return nil
	}
	return apperrors.New(apperrors.CategoryDecode, "jpeg.set_out_color_space",
		fmt.Errorf("%w: %s to %s", apperrors.ErrIncompatibleLayout, s.header.ColorSpace, cs))
}

func (s *jpegSession) Start() (core.Layout, error) {
	if s.state != stateHeader {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "jpeg.start", apperrors.ErrSessionState)
	}
	if err := s.ctx.Err(); err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryPipeline, "jpeg.start", err)
	}

	img, err := jpeg.Decode(utils.BytesReader(s.data))
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.start", err)
	}
	raster, err := utils.RasterFromImage(img, s.outCS.Components())
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.start", err)
	}
	s.data = nil
	s.raster = raster
	s.state = stateStarted
	return core.Layout{
		Width:      raster.Width,
		Height:     raster.Height,
		Components: raster.Components,
		ColorSpace: s.outCS,
	}, nil
}

func (s *jpegSession) ReadRow(dst []byte) error {
	if s.state != stateStarted {
		return apperrors.New(apperrors.CategoryDecode, "jpeg.read_row", apperrors.ErrSessionState)
	}
	if s.line >= s.raster.Height {
		return apperrors.New(apperrors.CategoryDecode, "jpeg.read_row", apperrors.ErrScanlineOverflow)
	}
	if len(dst) != s.raster.Stride() {
		return apperrors.New(apperrors.CategoryDecode, "jpeg.read_row",
			fmt.Errorf("%w: got %d, want %d", apperrors.ErrRowSize, len(dst), s.raster.Stride()))
	}
	copy(dst, s.raster.Row(s.line))
	s.line++
	return nil
}

func (s *jpegSession) Scanline() int { return s.line }

func (s *jpegSession) Finish() error {
	if s.state != stateStarted {
		return apperrors.New(apperrors.CategoryDecode, "jpeg.finish", apperrors.ErrSessionState)
	}
	s.state = stateFinished
	return nil
}

func (s *jpegSession) Close() error {
	s.data = nil
	s.raster = nil
	s.state = stateClosed
	return nil
}

// colorSpace maps the header colour model onto a scanline layout.
func colorSpace(m color.Model) core.ColorSpace {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return core.ColorSpaceGray
	case color.CMYKModel:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

// compile-time interface checks
var _ core.Decoder = (*JPEG)(nil)
