package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Compression.ReductionThreshold != 0.75 {
		t.Errorf("expected default threshold 0.75, got %v", cfg.Compression.ReductionThreshold)
	}
	if cfg.Bot.HistoryLimit != 50 {
		t.Errorf("expected history limit 50, got %d", cfg.Bot.HistoryLimit)
	}
	if len(cfg.Announcements.Pages) != 3 {
		t.Errorf("expected 3 announcement pages, got %d", len(cfg.Announcements.Pages))
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero budget", func(c *Config) { c.Compression.MaxSizeKB = 0 }},
		{"quality too high", func(c *Config) { c.Compression.Quality = 101 }},
		{"floor above quality", func(c *Config) { c.Compression.QualityFloor = 99; c.Compression.Quality = 90 }},
		{"threshold zero", func(c *Config) { c.Compression.ReductionThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.Compression.ReductionThreshold = 1.2 }},
		{"image quality zero", func(c *Config) { c.Compression.ImageQuality = 0 }},
		{"page without selector", func(c *Config) {
			c.Announcements.Pages = []AnnouncementPage{{Title: "x", URL: "https://example.com"}}
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression.QualityStep = 0
	cfg.Compression.DPI = 0
	cfg.Bot.HistoryLimit = -1
	cfg.Performance.JobTimeout = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Compression.QualityStep != 5 {
		t.Errorf("quality step = %d, want 5", cfg.Compression.QualityStep)
	}
	if cfg.Compression.DPI != 300 {
		t.Errorf("dpi = %d, want 300", cfg.Compression.DPI)
	}
	if cfg.Bot.HistoryLimit != 50 {
		t.Errorf("history limit = %d, want 50", cfg.Bot.HistoryLimit)
	}
	if cfg.Performance.JobTimeout != 2*time.Minute {
		t.Errorf("job timeout = %v, want 2m", cfg.Performance.JobTimeout)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	keyring.MockInit()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
compression:
  max_size_kb: 200
  quality: 90
  quality_floor: 10
  reduction_threshold: 0.8
  image_quality: 60
  work_dir: ` + dir + `
performance:
  job_timeout: 30s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Compression.MaxSizeKB != 200 {
		t.Errorf("max_size_kb = %d, want 200", cfg.Compression.MaxSizeKB)
	}
	if cfg.Compression.ReductionThreshold != 0.8 {
		t.Errorf("threshold = %v, want 0.8", cfg.Compression.ReductionThreshold)
	}
	if cfg.Performance.JobTimeout != 30*time.Second {
		t.Errorf("job timeout = %v, want 30s", cfg.Performance.JobTimeout)
	}
	if cfg.OutputDir() != filepath.Join(dir, "output") {
		t.Errorf("output dir = %s", cfg.OutputDir())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	keyring.MockInit()
	t.Setenv("DESK_ASSISTANT_COMPRESSION_REDUCTION_THRESHOLD", "0.6")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("compression:\n  reduction_threshold: 0.9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Compression.ReductionThreshold != 0.6 {
		t.Errorf("threshold = %v, want env value 0.6", cfg.Compression.ReductionThreshold)
	}
}

func TestResolveSecretsPrefersKeyring(t *testing.T) {
	keyring.MockInit()
	if err := StoreSecret(KeyringAIKey, "from-keyring"); err != nil {
		t.Fatal(err)
	}
	defer DeleteSecret(KeyringAIKey)

	cfg := DefaultConfig()
	cfg.AI.APIKey = "from-config"
	cfg.Bot.Token = "token-from-config"
	ResolveSecrets(cfg)

	if cfg.AI.APIKey != "from-keyring" {
		t.Errorf("api key = %q, want keyring value", cfg.AI.APIKey)
	}
	if cfg.Bot.Token != "token-from-config" {
		t.Errorf("bot token should be untouched, got %q", cfg.Bot.Token)
	}
}
