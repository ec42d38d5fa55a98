package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and status mapping.
type Category string

const (
	CategoryInput     Category = "input"
	CategoryOutput    Category = "output"
	CategoryDecode    Category = "decode"
	CategoryEncode    Category = "encode"
	CategoryPipeline  Category = "pipeline"
	CategoryConfig    Category = "config"
	CategoryTransient Category = "transient"
)

// Status codes returned by the package-level Recompress call.
const (
	StatusOK         = 0
	StatusInputOpen  = -1
	StatusOutputOpen = -2
	StatusCodec      = -3
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Path      string // file the operation was acting on, if any
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s %s: %v", e.Category, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// WithPath creates a non-retryable ProcessingError that names the file involved.
func WithPath(category Category, op, path string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Path: path, Err: err}
}

// Transient creates a retryable ProcessingError.  The original category is
// kept so status mapping still distinguishes input from output failures.
func Transient(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.  Errors that already carry a
// category are returned unchanged so the innermost classification wins.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// Status maps err onto the integer status contract: input-open and
// output-open failures get their own codes, everything else is a codec
// failure.
func Status(err error) int {
	if err == nil {
		return StatusOK
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		switch pe.Category {
		case CategoryInput:
			return StatusInputOpen
		case CategoryOutput:
			return StatusOutputOpen
		}
	}
	return StatusCodec
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrIncompatibleLayout = errors.New("encoder cannot accept decoder colour layout")
	ErrScanlineOverflow   = errors.New("all scanlines already consumed")
	ErrIncompleteImage    = errors.New("fewer scanlines written than image height")
	ErrRowSize            = errors.New("row length does not match row stride")
	ErrSessionState       = errors.New("codec session used out of order")
	ErrWorkerPoolFull     = errors.New("worker pool queue full")
	ErrOutputLocked       = errors.New("output is locked by another writer")
	ErrUnknownBackend     = errors.New("unknown codec backend")
	ErrInputTooLarge      = errors.New("input exceeds size limit")
	ErrProcessorStopped   = errors.New("processor stopped")
)
