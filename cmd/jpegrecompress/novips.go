//go:build !vips

package main

import (
	recompressor "github.com/Skryldev/jpeg-recompressor"
	"github.com/Skryldev/jpeg-recompressor/config"
)

func registerOptionalBackends(_ *recompressor.Processor, _ config.Config) (func(), error) {
	return func() {}, nil
}
