//go:build vips

// Package vips provides libvips-backed decoding and encoding sessions.
// It needs cgo and libvips, so it is only compiled with -tags vips.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/jpeg-recompressor/adapters/encoder"
	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	ChunkSize    int
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a unified libvips-powered Decoder and Encoder.
// Safe for concurrent use across goroutines; each session owns its own
// ImageRef.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

func (b *Backend) Name() string { return "vips" }

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) NewSession(ctx context.Context, r io.Reader) (core.DecodeSession, error) {
	if r == nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode", apperrors.ErrEmptyInput)
	}
	return &decodeSession{ctx: ctx, r: r, chunkSize: b.cfg.ChunkSize}, nil
}

type decodeSession struct {
	ctx       context.Context
	r         io.Reader
	chunkSize int

	ref     *govips.ImageRef
	header  core.Layout
	outCS   core.ColorSpace
	raster  *utils.Raster
	line    int
	started bool
}

func (s *decodeSession) ReadHeader() (core.Layout, error) {
	if s.ref != nil {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "vips.read_header", apperrors.ErrSessionState)
	}
	buf, err := utils.DrainReader(s.ctx, s.r, s.chunkSize)
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.read_header", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	if !utils.IsJPEG(raw) {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "vips.read_header", apperrors.ErrUnsupportedFormat)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.read_header", err)
	}
	s.ref = ref

	cs := interpretationToColorSpace(ref.Interpretation())
	s.header = core.Layout{
		Width:      ref.Width(),
		Height:     ref.Height(),
		Components: cs.Components(),
		ColorSpace: cs,
	}
	if ref.Bands() != s.header.Components {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "vips.read_header",
			fmt.Errorf("%w: %d bands for %s", apperrors.ErrIncompatibleLayout, ref.Bands(), cs))
	}
	s.outCS = cs
	return s.header, nil
}

func (s *decodeSession) SetOutColorSpace(cs core.ColorSpace) error {
	if s.ref == nil || s.started {
		return apperrors.New(apperrors.CategoryDecode, "vips.set_out_color_space", apperrors.ErrSessionState)
	}
	if cs == s.header.ColorSpace || cs == core.ColorSpaceRGB || cs == core.ColorSpaceGray {
		s.outCS = cs
		return nil
	}
	return apperrors.New(apperrors.CategoryDecode, "vips.set_out_color_space",
		fmt.Errorf("%w: %s to %s", apperrors.ErrIncompatibleLayout, s.header.ColorSpace, cs))
}

// Start renders the frame through a lossless PNG export, which also makes
// libvips convert CMYK to sRGB.
func (s *decodeSession) Start() (core.Layout, error) {
	if s.ref == nil || s.started {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "vips.start", apperrors.ErrSessionState)
	}
	if s.outCS == core.ColorSpaceCMYK {
		return core.Layout{}, apperrors.New(apperrors.CategoryDecode, "vips.start",
			fmt.Errorf("%w: cmyk rows", apperrors.ErrIncompatibleLayout))
	}
	ep := govips.NewPngExportParams()
	ep.StripMetadata = true
	encoded, _, err := s.ref.ExportPng(ep)
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.start", err)
	}
	img, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.start", err)
	}
	raster, err := utils.RasterFromImage(img, s.outCS.Components())
	if err != nil {
		return core.Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.start", err)
	}
	s.raster = raster
	s.started = true
	return core.Layout{
		Width:      raster.Width,
		Height:     raster.Height,
		Components: raster.Components,
		ColorSpace: s.outCS,
	}, nil
}

func (s *decodeSession) ReadRow(dst []byte) error {
	if !s.started {
		return apperrors.New(apperrors.CategoryDecode, "vips.read_row", apperrors.ErrSessionState)
	}
	if s.line >= s.raster.Height {
		return apperrors.New(apperrors.CategoryDecode, "vips.read_row", apperrors.ErrScanlineOverflow)
	}
	if len(dst) != s.raster.Stride() {
		return apperrors.New(apperrors.CategoryDecode, "vips.read_row", apperrors.ErrRowSize)
	}
	copy(dst, s.raster.Row(s.line))
	s.line++
	return nil
}

func (s *decodeSession) Scanline() int { return s.line }

func (s *decodeSession) Finish() error {
	if !s.started {
		return apperrors.New(apperrors.CategoryDecode, "vips.finish", apperrors.ErrSessionState)
	}
	return nil
}

func (s *decodeSession) Close() error {
	if s.ref != nil {
		s.ref.Close()
		s.ref = nil
	}
	s.raster = nil
	return nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

// Encoder is the libvips JPEG encoder.  It is a separate type from Backend
// because core.Decoder and core.Encoder both define NewSession.
type Encoder struct{}

func (Encoder) Name() string { return "vips" }

func (Encoder) Accepts(cs core.ColorSpace) bool {
	return cs == core.ColorSpaceGray || cs == core.ColorSpaceRGB
}

// NewSession buffers rows, hands libvips a PNG of the frame and exports it
// as JPEG.
func (e Encoder) NewSession(ctx context.Context, w io.Writer) (core.EncodeSession, error) {
	return encoder.NewFrameSession(ctx, w, "vips", e.Accepts, func(w io.Writer, img image.Image, quality int) error {
		var lossless bytes.Buffer
		if err := png.Encode(&lossless, img); err != nil {
			return err
		}
		ref, err := govips.NewImageFromBuffer(lossless.Bytes())
		if err != nil {
			return err
		}
		defer ref.Close()

		ep := govips.NewJpegExportParams()
		ep.Quality = encoder.ClampQuality(quality)
		ep.StripMetadata = true
		out, _, err := ref.ExportJpeg(ep)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	})
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend makes libvips available under the "vips" name.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	reg.RegisterDecoder(b.Name(), b)
	reg.RegisterEncoder(Encoder{}.Name(), Encoder{})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func interpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationBW, govips.InterpretationGrey16:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.Encoder = Encoder{}
