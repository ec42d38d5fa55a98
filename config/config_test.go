package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recompress.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultQuality != 85 || !cfg.Output.Atomic {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
default_quality = 70
encoder = "jpegli"
job_timeout = "5s"
max_image_bytes = 1048576

[output]
atomic = false
create_dirs = true
lock = true

[adaptive]
target_size_bytes = 200000
min_quality = 40

[jpegli]
chroma_subsampling = "444"

[journal]
path = "/var/lib/recompress/journal.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultQuality != 70 {
		t.Errorf("DefaultQuality: got %d", cfg.DefaultQuality)
	}
	if cfg.Encoder != BackendJpegli || cfg.Decoder != BackendStdlib {
		t.Errorf("backends: got %q/%q", cfg.Decoder, cfg.Encoder)
	}
	if cfg.JobTimeout.Std() != 5*time.Second {
		t.Errorf("JobTimeout: got %v", cfg.JobTimeout.Std())
	}
	if cfg.MaxImageBytes != 1<<20 {
		t.Errorf("MaxImageBytes: got %d", cfg.MaxImageBytes)
	}
	if cfg.Output.Atomic || !cfg.Output.CreateDirs || !cfg.Output.Lock {
		t.Errorf("Output: got %+v", cfg.Output)
	}
	if cfg.Output.Permissions != 0o644 {
		t.Errorf("Permissions default lost: %o", cfg.Output.Permissions)
	}
	if cfg.Adaptive.TargetSizeBytes != 200000 || cfg.Adaptive.MinQuality != 40 || cfg.Adaptive.MaxQuality != 95 {
		t.Errorf("Adaptive: got %+v", cfg.Adaptive)
	}
	if cfg.Jpegli.ChromaSubsampling != "444" {
		t.Errorf("Jpegli: got %+v", cfg.Jpegli)
	}
	if cfg.Journal.Path != "/var/lib/recompress/journal.db" {
		t.Errorf("Journal: got %+v", cfg.Journal)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown field", "qualty = 80\n", "parse config"},
		{"bad duration", "retry_delay = \"soon\"\n", "parse config"},
		{"quality out of range", "default_quality = 101\n", "DefaultQuality"},
		{"inverted adaptive bounds", "[adaptive]\nmin_quality = 90\nmax_quality = 50\n", "Adaptive"},
		{"bad chroma", "[jpegli]\nchroma_subsampling = \"411\"\n", "ChromaSubsampling"},
		{"bad log level", "log_level = \"trace\"\n", "LogLevel"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero quality", func(c *Config) { c.DefaultQuality = 0 }},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }},
		{"negative max bytes", func(c *Config) { c.MaxImageBytes = -1 }},
		{"empty decoder", func(c *Config) { c.Decoder = "" }},
		{"negative target", func(c *Config) { c.Adaptive.TargetSizeBytes = -5 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
