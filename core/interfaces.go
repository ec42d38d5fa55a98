package core

import (
	"context"
	"io"
)

// DecodeSession is the transient state of a codec while reading one image.
// Methods must be called in order: ReadHeader, optionally SetOutColorSpace,
// Start, ReadRow until Scanline reaches the height, Finish.  Close releases
// everything and is safe to call at any point, more than once.
type DecodeSession interface {
	// ReadHeader parses image metadata without decoding pixels.
	ReadHeader() (Layout, error)
	// SetOutColorSpace requests conversion of decoded rows into cs.
	SetOutColorSpace(cs ColorSpace) error
	// Start begins decompression and fixes the output layout.
	Start() (Layout, error)
	// ReadRow fills dst with the next scanline.
	ReadRow(dst []byte) error
	// Scanline is the number of rows read so far.
	Scanline() int
	Finish() error
	Close() error
}

// EncodeSession is the transient state of a codec while writing one image.
// Methods must be called in order: Configure, Start, WriteRow once per row,
// Finish.  Close is always safe.
type EncodeSession interface {
	Configure(layout Layout, quality int) error
	Start() error
	WriteRow(row []byte) error
	Finish() error
	Close() error
}

// Decoder creates decoding sessions.
// Implementations live in adapters/decoder/.
type Decoder interface {
	Name() string
	NewSession(ctx context.Context, r io.Reader) (DecodeSession, error)
}

// Encoder creates encoding sessions.
// Implementations live in adapters/encoder/.
type Encoder interface {
	Name() string
	// Accepts reports whether sessions can be configured with cs.
	Accepts(cs ColorSpace) bool
	NewSession(ctx context.Context, w io.Writer) (EncodeSession, error)
}

// OutputStream is a destination that either becomes the final file on
// Commit or is abandoned on Discard.  After either call further calls are
// no-ops.
type OutputStream interface {
	io.Writer
	Commit() error
	Discard() error
}

// Storage opens input streams and creates output streams.
// Implementations live in adapters/storage/.
type Storage interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Create(ctx context.Context, path string) (OutputStream, error)
}

// MetricsCollector receives performance observations from the processor.
type MetricsCollector interface {
	RecordProcessingTime(stage string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stage string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps backend names to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(name string) (Decoder, bool)
	EncoderFor(name string) (Encoder, bool)
	RegisterDecoder(name string, d Decoder)
	RegisterEncoder(name string, e Encoder)
}
