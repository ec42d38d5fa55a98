package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/utils"
)

// RecompressToSize searches [Adaptive.MinQuality, Adaptive.MaxQuality] for
// the highest quality whose output is at most targetBytes and writes that
// encoding to req.OutputPath.  req.Quality is ignored.  When nothing fits,
// the MinQuality encoding is written.  The search assumes file size grows
// with quality, which holds for typical photographs but is not guaranteed.
func (p *Processor) RecompressToSize(ctx context.Context, req Request, targetBytes int64) (*Result, error) {
	if targetBytes <= 0 {
		return nil, apperrors.New(apperrors.CategoryConfig, "adaptive",
			fmt.Errorf("target size must be positive, got %d", targetBytes))
	}
	decoder, encoder, err := p.backends()
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return nil, err
	}

	start := time.Now()
	res := newResult(req, decoder, encoder)
	if err := p.recompressToSize(ctx, req, targetBytes, decoder, encoder, res); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return nil, err
	}
	res.ProcessingTime = time.Since(start)
	atomic.AddInt64(&p.processedCount, 1)
	p.logger.Debug("recompressed to size",
		"input", req.InputPath,
		"output", req.OutputPath,
		"target_bytes", targetBytes,
		"quality", res.Quality,
		"out_bytes", res.OutputBytes,
	)
	return res, nil
}

func (p *Processor) recompressToSize(ctx context.Context, req Request, targetBytes int64, decoder Decoder, encoder Encoder, res *Result) error {
	var data []byte
	err := p.stage(ctx, StageOpenInput, req, res, func() error {
		in, e := p.storage.Open(ctx, req.InputPath)
		if e != nil {
			return e
		}
		defer in.Close()
		buf, e := utils.DrainReader(ctx, in, p.cfg.ChunkSize)
		if e != nil {
			if errors.Is(e, utils.ErrLimitExceeded) {
				return apperrors.WithPath(apperrors.CategoryInput, "adaptive.read", req.InputPath, apperrors.ErrInputTooLarge)
			}
			return apperrors.WithPath(apperrors.CategoryInput, "adaptive.read", req.InputPath, e)
		}
		data = utils.CloneBytes(buf.Bytes())
		utils.ReleaseBuffer(buf)
		return nil
	})
	if err != nil {
		p.logger.Error("cannot open input file", "path", req.InputPath, "error", err.Error())
		return apperrors.Wrap(apperrors.CategoryInput, "adaptive.open_input", err)
	}
	res.InputBytes = int64(len(data))

	minQ, maxQ := p.cfg.Adaptive.MinQuality, p.cfg.Adaptive.MaxQuality
	if minQ <= 0 {
		minQ = 1
	}
	if maxQ <= 0 || maxQ > 100 {
		maxQ = 100
	}

	var (
		best  []byte
		bestQ int
	)
	err = p.stage(ctx, StageTransfer, req, res, func() error {
		lo, hi := minQ, maxQ
		for lo <= hi {
			q := (lo + hi) / 2
			out, e := p.transcodeBytes(ctx, data, q, decoder, encoder, res)
			if e != nil {
				return e
			}
			p.logger.Debug("adaptive.probe", "quality", q, "bytes", len(out), "target", targetBytes)
			if int64(len(out)) <= targetBytes {
				best, bestQ = out, q
				lo = q + 1
			} else {
				hi = q - 1
			}
		}
		if best == nil {
			out, e := p.transcodeBytes(ctx, data, minQ, decoder, encoder, res)
			if e != nil {
				return e
			}
			best, bestQ = out, minQ
			p.logger.Warn("target size unreachable, using minimum quality",
				"path", req.InputPath, "quality", minQ, "bytes", len(out), "target", targetBytes)
		}
		return nil
	})
	if err != nil {
		return err
	}
	res.Quality = bestQ

	var out OutputStream
	err = p.stage(ctx, StageOpenOutput, req, res, func() error {
		var e error
		out, e = p.storage.Create(ctx, req.OutputPath)
		return e
	})
	if err != nil {
		p.logger.Error("cannot create output file", "path", req.OutputPath, "error", err.Error())
		return apperrors.Wrap(apperrors.CategoryOutput, "adaptive.open_output", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Discard()
		}
	}()

	return p.stage(ctx, StageFinish, req, res, func() error {
		n, e := io.Copy(out, bytes.NewReader(best))
		if e != nil {
			return apperrors.WithPath(apperrors.CategoryEncode, "adaptive.write", req.OutputPath, e)
		}
		if e := out.Commit(); e != nil {
			return apperrors.Wrap(apperrors.CategoryEncode, "adaptive.commit", e)
		}
		committed = true
		res.OutputBytes = n
		p.metrics.RecordThroughput(n)
		return nil
	})
}

// transcodeBytes runs one full decode→encode pass in memory.
func (p *Processor) transcodeBytes(ctx context.Context, data []byte, quality int, decoder Decoder, encoder Encoder, res *Result) ([]byte, error) {
	dec, err := decoder.NewSession(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "adaptive.decoder", err)
	}
	defer dec.Close()

	header, layout, err := Negotiate(dec, encoder)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc, err := encoder.NewSession(ctx, &buf)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "adaptive.encoder", err)
	}
	defer enc.Close()

	if err := enc.Configure(layout, quality); err != nil {
		return nil, err
	}
	if err := enc.Start(); err != nil {
		return nil, err
	}
	rows, err := Transfer(ctx, dec, enc, layout.Height, make([]byte, layout.RowStride()))
	if err != nil {
		return nil, err
	}
	if err := enc.Finish(); err != nil {
		return nil, err
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}

	res.Source, res.Layout, res.Rows = header, layout, rows
	return buf.Bytes(), nil
}
