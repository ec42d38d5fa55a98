package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Backend names understood by the processor's registry.
const (
	BackendStdlib = "stdlib"
	BackendJpegli = "jpegli"
	BackendVips   = "vips"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int      `toml:"worker_count"` // default: runtime.NumCPU()
	QueueSize   int      `toml:"queue_size"`   // max queued jobs before backpressure; default: 256
	JobTimeout  Duration `toml:"job_timeout"`

	// Retry.
	MaxRetries int      `toml:"max_retries"`
	RetryDelay Duration `toml:"retry_delay"`

	// DefaultQuality is used by callers that do not pick a quality themselves
	// (CLI, batch).  The Recompress call itself never validates quality.
	DefaultQuality int `toml:"default_quality"`

	// Codec backends.
	Decoder string `toml:"decoder"`
	Encoder string `toml:"encoder"`

	// Streaming / memory limits.
	MaxImageBytes int64 `toml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `toml:"chunk_size"`      // read chunk size in bytes; default 32 KiB

	Output   OutputConfig   `toml:"output"`
	Adaptive AdaptiveConfig `toml:"adaptive"`
	Jpegli   JpegliConfig   `toml:"jpegli"`
	Journal  JournalConfig  `toml:"journal"`

	// Logging.
	LogLevel string `toml:"log_level"` // "debug", "info", "warn", "error"
}

// OutputConfig configures how output files are created.
type OutputConfig struct {
	// Atomic writes into a temp file next to the destination and renames it
	// into place on success.  Without it a failed call may leave a partial file.
	Atomic      bool   `toml:"atomic"`
	CreateDirs  bool   `toml:"create_dirs"`
	Lock        bool   `toml:"lock"` // hold an advisory <output>.lock while writing
	Permissions uint32 `toml:"permissions"` // default 0644
}

// AdaptiveConfig controls the target-size quality search.
type AdaptiveConfig struct {
	TargetSizeBytes int64 `toml:"target_size_bytes"` // 0 = disabled
	MinQuality      int   `toml:"min_quality"`       // default 30
	MaxQuality      int   `toml:"max_quality"`       // default 95
}

// JpegliConfig tunes the jpegli encoder backend.
type JpegliConfig struct {
	ChromaSubsampling string `toml:"chroma_subsampling"` // "444", "422", "420"
}

// JournalConfig points at the SQLite journal of processed inputs.
type JournalConfig struct {
	Path string `toml:"path"` // empty = disabled
}

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:    0, // resolved at runtime to NumCPU
		QueueSize:      256,
		JobTimeout:     Duration(30 * time.Second),
		MaxRetries:     2,
		RetryDelay:     Duration(200 * time.Millisecond),
		DefaultQuality: 85,
		Decoder:        BackendStdlib,
		Encoder:        BackendStdlib,
		ChunkSize:      32 * 1024,
		Output: OutputConfig{
			Atomic:      true,
			Permissions: 0o644,
		},
		Adaptive: AdaptiveConfig{
			MinQuality: 30,
			MaxQuality: 95,
		},
		Jpegli:   JpegliConfig{ChromaSubsampling: "420"},
		LogLevel: "info",
	}
}

// Load reads a TOML file over Default().  An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.MaxImageBytes < 0 {
		return errors.New("config: MaxImageBytes must not be negative")
	}
	if c.Decoder == "" || c.Encoder == "" {
		return errors.New("config: Decoder and Encoder must name a backend")
	}
	a := c.Adaptive
	if a.MinQuality < 1 || a.MaxQuality > 100 || a.MinQuality >= a.MaxQuality {
		return errors.New("config: Adaptive quality bounds must satisfy 1 <= MinQuality < MaxQuality <= 100")
	}
	if a.TargetSizeBytes < 0 {
		return errors.New("config: Adaptive.TargetSizeBytes must not be negative")
	}
	switch c.Jpegli.ChromaSubsampling {
	case "", "444", "422", "420":
	default:
		return fmt.Errorf("config: unknown Jpegli.ChromaSubsampling %q", c.Jpegli.ChromaSubsampling)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	return nil
}
