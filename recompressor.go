// Package recompressor re-encodes JPEG files at a chosen quality by streaming
// decoded scanlines from a decoding session into an encoding session.
package recompressor

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/Skryldev/jpeg-recompressor/adapters/decoder"
	"github.com/Skryldev/jpeg-recompressor/adapters/encoder"
	"github.com/Skryldev/jpeg-recompressor/adapters/storage"
	"github.com/Skryldev/jpeg-recompressor/config"
	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/hooks"
)

// Re-export status codes for convenience.
const (
	StatusOK         = apperrors.StatusOK
	StatusInputOpen  = apperrors.StatusInputOpen
	StatusOutputOpen = apperrors.StatusOutputOpen
	StatusCodec      = apperrors.StatusCodec
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Processor is the primary entry point.
type Processor struct {
	inner *core.Processor
	reg   *core.DefaultRegistry
}

// New creates a fully wired Processor with the stdlib and jpegli codecs
// registered and local-filesystem storage.
func New(cfg config.Config) (*Processor, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "new", err)
	}
	jpegliEnc, err := encoder.NewJpegli(cfg.Jpegli.ChromaSubsampling)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "new", err)
	}

	reg := core.NewRegistry()
	// Register built-in codecs.
	reg.RegisterDecoder(config.BackendStdlib, decoder.NewJPEG(cfg.ChunkSize))
	reg.RegisterEncoder(config.BackendStdlib, encoder.NewJPEG())
	reg.RegisterEncoder(config.BackendJpegli, jpegliEnc)

	store := storage.NewLocal(storage.LocalOptions{
		Atomic:        cfg.Output.Atomic,
		CreateDirs:    cfg.Output.CreateDirs,
		Lock:          cfg.Output.Lock,
		Permissions:   os.FileMode(cfg.Output.Permissions),
		MaxInputBytes: cfg.MaxImageBytes,
	})

	inner := core.New(cfg, reg, store)
	inner.SetLogger(hooks.NewSlogLogger(slog.Default()))
	return &Processor{inner: inner, reg: reg}, nil
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l core.Logger) { p.inner.SetLogger(l) }

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m core.MetricsCollector) { p.inner.SetMetrics(m) }

// AddHook registers an observer for stage events.
func (p *Processor) AddHook(h core.Hook) { p.inner.AddHook(h) }

// RegisterDecoder registers a custom decoder under name.
func (p *Processor) RegisterDecoder(name string, d core.Decoder) { p.reg.RegisterDecoder(name, d) }

// RegisterEncoder registers a custom encoder under name.
func (p *Processor) RegisterEncoder(name string, e core.Encoder) { p.reg.RegisterEncoder(name, e) }

// Registry exposes the codec registry.
func (p *Processor) Registry() *core.DefaultRegistry { return p.reg }

// Start starts the background worker pool.
func (p *Processor) Start() { p.inner.Start() }

// Stop shuts down the worker pool.
func (p *Processor) Stop() { p.inner.Stop() }

// Recompress re-encodes one file synchronously.
func (p *Processor) Recompress(ctx context.Context, req core.Request) (*core.Result, error) {
	return p.inner.Recompress(ctx, req)
}

// RecompressToSize picks the highest quality that fits targetBytes.
func (p *Processor) RecompressToSize(ctx context.Context, req core.Request, targetBytes int64) (*core.Result, error) {
	return p.inner.RecompressToSize(ctx, req, targetBytes)
}

// Batch re-encodes many files concurrently.
func (p *Processor) Batch(ctx context.Context, reqs []core.Request) ([]*core.Result, []error) {
	return p.inner.Batch(ctx, reqs)
}

// Submit enqueues an async job for the worker pool and returns its ID.
func (p *Processor) Submit(job core.Job) (string, error) { return p.inner.Submit(job) }

// Stats returns lightweight processing statistics.
func (p *Processor) Stats() (processed, errors int64) {
	return p.inner.ProcessedCount(), p.inner.ErrorCount()
}

// Inner exposes the underlying core.Processor for advanced use.
func (p *Processor) Inner() *core.Processor { return p.inner }

// ── Package-level convenience ─────────────────────────────────────────────────

var (
	defaultOnce sync.Once
	defaultProc *Processor
	defaultErr  error
)

func defaultProcessor() (*Processor, error) {
	defaultOnce.Do(func() {
		defaultProc, defaultErr = New(DefaultConfig())
	})
	return defaultProc, defaultErr
}

// Recompress decodes the JPEG at inputPath and writes it re-encoded at
// quality to outputPath.  It returns StatusOK, StatusInputOpen when the input
// cannot be opened, StatusOutputOpen when the output cannot be created, or
// StatusCodec for any decode/encode failure.  quality is passed to the
// encoder as is.
func Recompress(inputPath, outputPath string, quality int) int {
	_, err := RecompressContext(context.Background(), inputPath, outputPath, quality)
	return apperrors.Status(err)
}

// RecompressContext is Recompress with cancellation and a detailed result.
func RecompressContext(ctx context.Context, inputPath, outputPath string, quality int) (*core.Result, error) {
	p, err := defaultProcessor()
	if err != nil {
		return nil, err
	}
	return p.Recompress(ctx, core.Request{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Quality:    quality,
	})
}
