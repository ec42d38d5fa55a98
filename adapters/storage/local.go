// Package storage provides core.Storage implementations.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/utils"
)

// LocalOptions configures the filesystem adapter.
type LocalOptions struct {
	Atomic        bool
	CreateDirs    bool
	Lock          bool
	Permissions   os.FileMode // default 0644
	MaxInputBytes int64       // 0 = no limit
}

// Local reads and writes files on the local filesystem.
type Local struct {
	opts LocalOptions
}

// NewLocal creates a Local storage adapter.
func NewLocal(opts LocalOptions) *Local {
	if opts.Permissions == 0 {
		opts.Permissions = 0o644
	}
	return &Local{opts: opts}
}

// Open opens path for reading.  Directories are rejected up front so they
// surface as input failures rather than decode failures.
func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "local.open", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(apperrors.CategoryInput, "local.open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, classify(apperrors.CategoryInput, "local.open.stat", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, apperrors.WithPath(apperrors.CategoryInput, "local.open", path, errors.New("is a directory"))
	}
	if l.opts.MaxInputBytes > 0 && info.Size() > l.opts.MaxInputBytes {
		f.Close()
		return nil, apperrors.WithPath(apperrors.CategoryInput, "local.open", path,
			fmt.Errorf("%w: %d > %d bytes", apperrors.ErrInputTooLarge, info.Size(), l.opts.MaxInputBytes))
	}

	var r io.Reader = f
	if l.opts.MaxInputBytes > 0 {
		r = &utils.LimitedReader{R: f, Max: l.opts.MaxInputBytes}
	}
	return &inputFile{Reader: r, f: f}, nil
}

// Create opens a destination for path.  In atomic mode the bytes go to a
// hidden temp file in the same directory and only replace path on Commit.
func (l *Local) Create(ctx context.Context, path string) (core.OutputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "local.create", err)
	}

	dir := filepath.Dir(path)
	if l.opts.CreateDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, classify(apperrors.CategoryOutput, "local.create.mkdir", dir, err)
		}
	}

	target, perm := l.destination(path)

	var lock *flock.Flock
	if l.opts.Lock {
		lock = flock.New(target + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return nil, classify(apperrors.CategoryOutput, "local.create.lock", path, err)
		}
		if !ok {
			return nil, apperrors.WithPath(apperrors.CategoryOutput, "local.create.lock", path, apperrors.ErrOutputLocked)
		}
	}

	var (
		f   *os.File
		err error
	)
	if l.opts.Atomic {
		f, err = os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	} else {
		f, err = os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	}
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, classify(apperrors.CategoryOutput, "local.create", path, err)
	}

	return &outputFile{
		f:      f,
		w:      bufio.NewWriterSize(f, 64*1024),
		path:   target,
		atomic: l.opts.Atomic,
		perm:   perm,
		lock:   lock,
	}, nil
}

// destination follows symlinks so the rename in Commit replaces the file the
// link points at, and keeps the mode of a destination that already exists.
func (l *Local) destination(path string) (string, os.FileMode) {
	target := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		target = resolved
	}
	perm := l.opts.Permissions
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		perm = info.Mode().Perm()
	}
	return target, perm
}

// classify maps filesystem errors onto categories; timeouts are retryable.
func classify(cat apperrors.Category, op, path string, err error) error {
	if os.IsTimeout(err) {
		pe := apperrors.Transient(cat, op, err)
		pe.Path = path
		return pe
	}
	return apperrors.WithPath(cat, op, path, err)
}

type inputFile struct {
	io.Reader
	f *os.File
}

func (i *inputFile) Close() error { return i.f.Close() }

type outputFile struct {
	f      *os.File
	w      *bufio.Writer
	path   string
	atomic bool
	perm   os.FileMode
	lock   *flock.Flock
	done   bool
}

func (o *outputFile) Write(p []byte) (int, error) {
	if o.done {
		return 0, os.ErrClosed
	}
	return o.w.Write(p)
}

func (o *outputFile) Commit() error {
	if o.done {
		return nil
	}
	o.done = true
	defer o.unlock()

	if err := o.w.Flush(); err != nil {
		o.abandon()
		return classify(apperrors.CategoryEncode, "local.commit.flush", o.path, err)
	}
	if o.atomic {
		if err := o.f.Chmod(o.perm); err != nil {
			o.abandon()
			return classify(apperrors.CategoryEncode, "local.commit.chmod", o.path, err)
		}
	}
	if err := o.f.Close(); err != nil {
		if o.atomic {
			_ = os.Remove(o.f.Name())
		}
		return classify(apperrors.CategoryEncode, "local.commit.close", o.path, err)
	}
	if o.atomic {
		if err := os.Rename(o.f.Name(), o.path); err != nil {
			_ = os.Remove(o.f.Name())
			return classify(apperrors.CategoryEncode, "local.commit.rename", o.path, err)
		}
	}
	return nil
}

// Discard drops buffered bytes.  A non-atomic destination keeps whatever
// already reached the disk.
func (o *outputFile) Discard() error {
	if o.done {
		return nil
	}
	o.done = true
	defer o.unlock()
	o.abandon()
	return nil
}

func (o *outputFile) abandon() {
	_ = o.f.Close()
	if o.atomic {
		_ = os.Remove(o.f.Name())
	}
}

func (o *outputFile) unlock() {
	if o.lock != nil {
		_ = o.lock.Unlock()
	}
}

var _ core.Storage = (*Local)(nil)
