package core

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/jpeg-recompressor/config"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/utils"
)

// Processor is the central orchestrator.  It is safe for concurrent use;
// every call owns its own streams and codec sessions.
type Processor struct {
	cfg      config.Config
	registry Registry
	storage  Storage
	hooks    []Hook
	logger   Logger
	metrics  MetricsCollector

	// Worker pool.
	jobQueue chan Job
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}
	mu       sync.RWMutex
	stopped  bool

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// New creates a Processor with the given config.  Call Start() before
// submitting jobs; call Stop() when done.
func New(cfg config.Config, reg Registry, store Storage) *Processor {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Processor{
		cfg:      cfg,
		registry: reg,
		storage:  store,
		logger:   nopLogger{},
		metrics:  nopMetrics{},
		jobQueue: make(chan Job, queueSize),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	p.logger = l
}

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m MetricsCollector) {
	if m == nil {
		m = nopMetrics{}
	}
	p.metrics = m
}

// AddHook registers a stage hook.
func (p *Processor) AddHook(h Hook) { p.hooks = append(p.hooks, h) }

// Registry returns the underlying registry so callers can register
// encoders/decoders after construction.
func (p *Processor) Registry() Registry { return p.registry }

// Config returns the configuration the processor was built with.
func (p *Processor) Config() config.Config { return p.cfg }

// Start launches the worker pool.  It is idempotent.
func (p *Processor) Start() {
	p.once.Do(func() {
		workerCount := p.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down all workers.  Jobs still queued are answered with
// ErrProcessorStopped and later submits are rejected.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.shutdown)
		p.mu.Unlock()
	})
	p.wg.Wait()
	p.drain()
}

func (p *Processor) drain() {
	for {
		select {
		case job := <-p.jobQueue:
			if job.ResultCh != nil {
				job.ResultCh <- JobResult{
					JobID: job.ID,
					Err:   apperrors.New(apperrors.CategoryPipeline, "stop", apperrors.ErrProcessorStopped),
				}
			}
		default:
			return
		}
	}
}

// Recompress decodes req.InputPath and re-encodes it at req.Quality into
// req.OutputPath, streaming one scanline at a time.
func (p *Processor) Recompress(ctx context.Context, req Request) (*Result, error) {
	decoder, encoder, err := p.backends()
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return nil, err
	}

	start := time.Now()
	var res *Result
	err = p.runWithRetry(ctx, func() error {
		res = newResult(req, decoder, encoder)
		return p.recompressOnce(ctx, req, decoder, encoder, res)
	})
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return nil, err
	}
	res.ProcessingTime = time.Since(start)
	atomic.AddInt64(&p.processedCount, 1)
	p.logger.Debug("recompressed",
		"input", req.InputPath,
		"output", req.OutputPath,
		"quality", req.Quality,
		"width", res.Layout.Width,
		"height", res.Layout.Height,
		"in_bytes", res.InputBytes,
		"out_bytes", res.OutputBytes,
		"duration_ms", res.ProcessingTime.Milliseconds(),
	)
	return res, nil
}

func newResult(req Request, decoder Decoder, encoder Encoder) *Result {
	return &Result{
		Input:       req.InputPath,
		Output:      req.OutputPath,
		Decoder:     decoder.Name(),
		Encoder:     encoder.Name(),
		Quality:     req.Quality,
		StepTimings: make(map[string]time.Duration, 5),
	}
}

// recompressOnce runs the fixed acquisition order: input, decoder, output,
// encoder.  Deferred releases run in reverse on every exit path.
func (p *Processor) recompressOnce(ctx context.Context, req Request, decoder Decoder, encoder Encoder, res *Result) error {
	var in io.ReadCloser
	err := p.stage(ctx, StageOpenInput, req, res, func() error {
		var e error
		in, e = p.storage.Open(ctx, req.InputPath)
		return e
	})
	if err != nil {
		p.logger.Error("cannot open input file", "path", req.InputPath, "error", err.Error())
		return apperrors.Wrap(apperrors.CategoryInput, "recompress.open_input", err)
	}
	defer in.Close()
	counted := &utils.CountingReader{R: in}

	dec, err := decoder.NewSession(ctx, counted)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryDecode, "recompress.decoder", err)
	}
	defer dec.Close()

	var layout Layout
	err = p.stage(ctx, StageReadHeader, req, res, func() error {
		var e error
		res.Source, layout, e = Negotiate(dec, encoder)
		return e
	})
	if err != nil {
		p.logger.Error("cannot decode input file", "path", req.InputPath, "error", err.Error())
		return err
	}
	res.Layout = layout
	row := make([]byte, layout.RowStride())
	p.metrics.RecordMemory(int64(len(row)))

	var out OutputStream
	err = p.stage(ctx, StageOpenOutput, req, res, func() error {
		var e error
		out, e = p.storage.Create(ctx, req.OutputPath)
		return e
	})
	if err != nil {
		p.logger.Error("cannot create output file", "path", req.OutputPath, "error", err.Error())
		return apperrors.Wrap(apperrors.CategoryOutput, "recompress.open_output", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Discard()
		}
	}()
	written := &utils.CountingWriter{W: out}

	enc, err := encoder.NewSession(ctx, written)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "recompress.encoder", err)
	}
	defer enc.Close()

	err = p.stage(ctx, StageTransfer, req, res, func() error {
		if e := enc.Configure(layout, req.Quality); e != nil {
			return e
		}
		if e := enc.Start(); e != nil {
			return e
		}
		var e error
		res.Rows, e = Transfer(ctx, dec, enc, layout.Height, row)
		return e
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, StageFinish, req, res, func() error {
		if e := enc.Finish(); e != nil {
			return e
		}
		if e := dec.Finish(); e != nil {
			return e
		}
		if e := out.Commit(); e != nil {
			return apperrors.Wrap(apperrors.CategoryEncode, "recompress.commit", e)
		}
		committed = true
		res.InputBytes = counted.N
		res.OutputBytes = written.N
		return nil
	})
	if err != nil {
		return err
	}
	p.metrics.RecordThroughput(res.OutputBytes)
	return nil
}

// stage times fn, records the timing on res and notifies hooks.
func (p *Processor) stage(ctx context.Context, name string, req Request, res *Result, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, name, err)
	}
	p.notifyBefore(ctx, name, req)
	t := time.Now()
	err := fn()
	elapsed := time.Since(t)
	res.StepTimings[name] += elapsed
	p.notifyAfter(ctx, name, res, elapsed, err)
	p.metrics.RecordProcessingTime(name, elapsed)
	if err != nil {
		p.metrics.RecordError(name, string(categoryOf(err)))
	}
	return err
}

func (p *Processor) backends() (Decoder, Encoder, error) {
	decoder, ok := p.registry.DecoderFor(p.cfg.Decoder)
	if !ok {
		return nil, nil, apperrors.New(apperrors.CategoryConfig, "backends",
			fmt.Errorf("%w: decoder %q", apperrors.ErrUnknownBackend, p.cfg.Decoder))
	}
	encoder, ok := p.registry.EncoderFor(p.cfg.Encoder)
	if !ok {
		return nil, nil, apperrors.New(apperrors.CategoryConfig, "backends",
			fmt.Errorf("%w: encoder %q", apperrors.ErrUnknownBackend, p.cfg.Encoder))
	}
	return decoder, encoder, nil
}

// Submit enqueues an async job.  Returns ErrWorkerPoolFull if the queue is
// full and ErrProcessorStopped after Stop.  Jobs without an ID get a random one.
func (p *Processor) Submit(job Job) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return "", apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrProcessorStopped)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	select {
	case p.jobQueue <- job:
		return job.ID, nil
	default:
		return "", apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrWorkerPoolFull)
	}
}

// Batch recompresses many requests concurrently (fan-out / fan-in), at most
// WorkerCount at a time.
func (p *Processor) Batch(ctx context.Context, reqs []Request) ([]*Result, []error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	limit := p.cfg.WorkerCount
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, r Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx], errs[idx] = p.Recompress(ctx, r)
		}(i, req)
	}
	wg.Wait()
	return results, errs
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.processJob(job)
		}
	}
}

func (p *Processor) processJob(job Job) {
	ctx := job.Ctx
	timeout := p.cfg.JobTimeout.Std()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := p.Recompress(ctx, job.Request)
	if err != nil {
		p.logger.Warn("job failed", "job_id", job.ID, "error", err.Error())
	}
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Result: result, Err: err}
	}
}

func (p *Processor) runWithRetry(ctx context.Context, fn func() error) error {
	maxRetries := p.cfg.MaxRetries
	delay := p.cfg.RetryDelay.Std()

	var err error
	for i := 0; i <= maxRetries; i++ {
		err = fn()
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
		if i < maxRetries {
			p.logger.Warn("retrying transient failure", "attempt", i+1, "error", err.Error())
			select {
			case <-ctx.Done():
				return apperrors.Wrap(apperrors.CategoryPipeline, "retry", ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return err
}

func (p *Processor) notifyBefore(ctx context.Context, stage string, req Request) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, stage, req)
	}
}

func (p *Processor) notifyAfter(ctx context.Context, stage string, res *Result, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, stage, res, d, err)
	}
}

func categoryOf(err error) apperrors.Category {
	for _, c := range []apperrors.Category{
		apperrors.CategoryInput, apperrors.CategoryOutput, apperrors.CategoryDecode,
		apperrors.CategoryEncode, apperrors.CategoryConfig, apperrors.CategoryTransient,
	} {
		if apperrors.IsCategory(err, c) {
			return c
		}
	}
	return apperrors.CategoryPipeline
}

// ProcessedCount returns the total number of successful recompressions.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of failed recompressions.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }
