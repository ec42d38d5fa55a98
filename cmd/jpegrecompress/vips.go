//go:build vips

package main

import (
	recompressor "github.com/Skryldev/jpeg-recompressor"
	"github.com/Skryldev/jpeg-recompressor/adapters/vips"
	"github.com/Skryldev/jpeg-recompressor/config"
)

// registerOptionalBackends starts libvips and registers the vips decoder and
// encoder.  The returned func shuts libvips down.
func registerOptionalBackends(proc *recompressor.Processor, cfg config.Config) (func(), error) {
	b := vips.NewBackend(vips.BackendConfig{
		ChunkSize:  cfg.ChunkSize,
		MaxWorkers: cfg.WorkerCount,
	})
	vips.RegisterVipsBackend(proc.Registry(), b)
	return b.Shutdown, nil
}
