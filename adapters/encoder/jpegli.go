package encoder

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/gen2brain/jpegli"

	"github.com/Skryldev/jpeg-recompressor/core"
)

// Jpegli encodes with libjpegli (hosted in-process through wazero, no cgo).
// It usually produces smaller files than image/jpeg at the same quality.
type Jpegli struct {
	ChromaSubsampling image.YCbCrSubsampleRatio
}

// NewJpegli parses a chroma subsampling name ("444", "422", "420"); an
// empty name selects 4:2:0.
func NewJpegli(chroma string) (*Jpegli, error) {
	ratio, err := ParseChroma(chroma)
	if err != nil {
		return nil, err
	}
	return &Jpegli{ChromaSubsampling: ratio}, nil
}

// ParseChroma maps the usual shorthand onto a subsample ratio.
func ParseChroma(name string) (image.YCbCrSubsampleRatio, error) {
	switch name {
	case "", "420":
		return image.YCbCrSubsampleRatio420, nil
	case "422":
		return image.YCbCrSubsampleRatio422, nil
	case "444":
		return image.YCbCrSubsampleRatio444, nil
	}
	return 0, fmt.Errorf("chroma subsampling %q (use 444, 422 or 420)", name)
}

func (j *Jpegli) Name() string { return "jpegli" }

func (j *Jpegli) Accepts(cs core.ColorSpace) bool {
	return cs == core.ColorSpaceGray || cs == core.ColorSpaceRGB
}

func (j *Jpegli) NewSession(ctx context.Context, w io.Writer) (core.EncodeSession, error) {
	ratio := j.ChromaSubsampling
	return NewFrameSession(ctx, w, "jpegli", j.Accepts, func(w io.Writer, img image.Image, quality int) error {
		return jpegli.Encode(w, img, &jpegli.EncodingOptions{
			Quality:           ClampQuality(quality),
			ChromaSubsampling: ratio,
		})
	})
}

// ClampQuality mirrors image/jpeg's handling of out-of-range values.
func ClampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

var _ core.Encoder = (*Jpegli)(nil)
