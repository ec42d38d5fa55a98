package core

import (
	"context"
	"fmt"

	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
)

// Negotiate reads the header from dec, picks an output colour space enc can
// accept and starts decompression.  It returns the header layout and the
// layout rows will be delivered in.
func Negotiate(dec DecodeSession, enc Encoder) (header, layout Layout, err error) {
	header, err = dec.ReadHeader()
	if err != nil {
		return Layout{}, Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "negotiate.read_header", err)
	}
	if !header.Valid() {
		return header, Layout{}, apperrors.New(apperrors.CategoryDecode, "negotiate.read_header",
			fmt.Errorf("%w: %+v", apperrors.ErrInvalidDimensions, header))
	}

	if !enc.Accepts(header.ColorSpace) {
		if !enc.Accepts(ColorSpaceRGB) {
			return header, Layout{}, apperrors.New(apperrors.CategoryEncode, "negotiate",
				fmt.Errorf("%w: %s encoder takes neither %s nor rgb", apperrors.ErrIncompatibleLayout, enc.Name(), header.ColorSpace))
		}
		if err := dec.SetOutColorSpace(ColorSpaceRGB); err != nil {
			return header, Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "negotiate.out_color_space", err)
		}
	}

	layout, err = dec.Start()
	if err != nil {
		return header, Layout{}, apperrors.Wrap(apperrors.CategoryDecode, "negotiate.start", err)
	}
	if !layout.Valid() || layout.Width != header.Width || layout.Height != header.Height {
		return header, Layout{}, apperrors.New(apperrors.CategoryDecode, "negotiate.start",
			fmt.Errorf("%w: header %dx%d, output %+v", apperrors.ErrInvalidDimensions, header.Width, header.Height, layout))
	}
	if !enc.Accepts(layout.ColorSpace) {
		return header, Layout{}, apperrors.New(apperrors.CategoryEncode, "negotiate",
			fmt.Errorf("%w: %s", apperrors.ErrIncompatibleLayout, layout.ColorSpace))
	}
	return header, layout, nil
}

// Transfer moves exactly one row per iteration from dec to enc until the
// decoder's scanline index reaches height.  row must be layout.RowStride()
// bytes and is reused for every row.
func Transfer(ctx context.Context, dec DecodeSession, enc EncodeSession, height int, row []byte) (int, error) {
	for dec.Scanline() < height {
		if err := ctx.Err(); err != nil {
			return dec.Scanline(), apperrors.Wrap(apperrors.CategoryPipeline, "transfer", err)
		}
		if err := dec.ReadRow(row); err != nil {
			return dec.Scanline(), apperrors.Wrap(apperrors.CategoryDecode, "transfer.read_row", err)
		}
		if err := enc.WriteRow(row); err != nil {
			return dec.Scanline(), apperrors.Wrap(apperrors.CategoryEncode, "transfer.write_row", err)
		}
	}
	return dec.Scanline(), nil
}
