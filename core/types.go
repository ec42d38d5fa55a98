package core

import (
	"context"
	"time"
)

// ColorSpace represents the sample layout of a scanline.
type ColorSpace string

const (
	ColorSpaceGray ColorSpace = "gray"
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceCMYK ColorSpace = "cmyk"
)

// Components returns the number of 8-bit samples per pixel for cs, or 0 when
// cs is not a known layout.
func (cs ColorSpace) Components() int {
	switch cs {
	case ColorSpaceGray:
		return 1
	case ColorSpaceRGB:
		return 3
	case ColorSpaceCMYK:
		return 4
	}
	return 0
}

// Layout describes the geometry shared by a decoding session's output and
// the encoding session fed from it.
type Layout struct {
	Width      int
	Height     int
	Components int
	ColorSpace ColorSpace
}

// RowStride is the byte length of one scanline.
func (l Layout) RowStride() int { return l.Width * l.Components }

// Valid reports whether the layout has positive dimensions and a component
// count that matches its colour space.
func (l Layout) Valid() bool {
	return l.Width > 0 && l.Height > 0 && l.Components > 0 && l.Components == l.ColorSpace.Components()
}

// Request names one recompression.
type Request struct {
	InputPath  string
	OutputPath string
	// Quality is handed to the encoder untouched; encoders clamp on their own.
	Quality int
}

// Result is returned to the caller after a recompression completes.
type Result struct {
	Input   string
	Output  string
	Decoder string
	Encoder string
	Quality int

	// Source is the layout reported by the header; Layout is what was
	// actually transferred after colour-space negotiation.
	Source Layout
	Layout Layout
	Rows   int

	InputBytes  int64
	OutputBytes int64

	// Observability.
	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Job encapsulates a single unit of work for the worker pool.
type Job struct {
	ID      string
	Ctx     context.Context //nolint:containedctx // intentional for async jobs
	Request Request
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- JobResult
}

// JobResult wraps the outcome of an async job.
type JobResult struct {
	JobID  string
	Result *Result
	Err    error
}

// Stage names reported to hooks.
const (
	StageOpenInput  = "open_input"
	StageReadHeader = "read_header"
	StageOpenOutput = "open_output"
	StageTransfer   = "transfer"
	StageFinish     = "finish"
)

// Hook is an optional observer invoked around recompression stages.  res is
// the partially filled result of the call in progress.
type Hook interface {
	BeforeStep(ctx context.Context, stage string, req Request)
	AfterStep(ctx context.Context, stage string, res *Result, d time.Duration, err error)
}
