package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	recompressor "github.com/Skryldev/jpeg-recompressor"
	"github.com/Skryldev/jpeg-recompressor/config"
	"github.com/Skryldev/jpeg-recompressor/hooks"
)

// commandContext holds flag values shared by every command.
type commandContext struct {
	configPath  string
	logLevel    string
	jsonLogs    bool
	decoder     string
	encoder     string
	journalPath string
}

func (c *commandContext) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.decoder != "" {
		cfg.Decoder = c.decoder
	}
	if c.encoder != "" {
		cfg.Encoder = c.encoder
	}
	if c.journalPath != "" {
		cfg.Journal.Path = c.journalPath
	}
	return cfg, config.Validate(cfg)
}

// newProcessor builds a processor with zap logging and any optional backends
// compiled in.  The returned cleanup must be called before exit.
func (c *commandContext) newProcessor(cfg config.Config) (*recompressor.Processor, func(), error) {
	json := c.jsonLogs || !isatty.IsTerminal(os.Stderr.Fd())
	zl, err := hooks.BuildZap(cfg.LogLevel, json)
	if err != nil {
		return nil, nil, err
	}
	logger := hooks.NewZapLogger(zl)

	proc, err := recompressor.New(cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	proc.SetLogger(logger)
	proc.AddHook(hooks.NewLoggingHook(logger))

	shutdown, err := registerOptionalBackends(proc, cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("register backends: %w", err)
	}
	cleanup := func() {
		shutdown()
		_ = logger.Sync()
	}
	return proc, cleanup, nil
}
