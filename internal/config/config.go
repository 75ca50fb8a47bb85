package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Compression   CompressionConfig   `mapstructure:"compression"`
	Bot           BotConfig           `mapstructure:"bot"`
	AI            AIConfig            `mapstructure:"ai"`
	Google        GoogleConfig        `mapstructure:"google"`
	Announcements AnnouncementsConfig `mapstructure:"announcements"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Performance   PerformanceConfig   `mapstructure:"performance"`
	Web           WebConfig           `mapstructure:"web"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// CompressionConfig contains image and PDF compression settings
type CompressionConfig struct {
	MaxSizeKB          int     `mapstructure:"max_size_kb"`
	Quality            int     `mapstructure:"quality"`
	QualityStep        int     `mapstructure:"quality_step"`
	QualityFloor       int     `mapstructure:"quality_floor"`
	ReductionThreshold float64 `mapstructure:"reduction_threshold"`
	ImageQuality       int     `mapstructure:"image_quality"` // PDF embedded image re-encode
	DPI                int     `mapstructure:"dpi"`
	WorkDir            string  `mapstructure:"work_dir"`
	PreserveMetadata   bool    `mapstructure:"preserve_metadata"`
}

// BotConfig contains messaging bot settings
type BotConfig struct {
	Token        string `mapstructure:"token"`
	HistoryLimit int    `mapstructure:"history_limit"`
	MaxSessions  int    `mapstructure:"max_sessions"`
	DownloadDir  string `mapstructure:"download_dir"`
	// AnnounceChatID receives scheduled announcement updates; 0 disables them.
	AnnounceChatID int64 `mapstructure:"announce_chat_id"`
}

// AIConfig contains generative model settings
type AIConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	SystemInstruction string `mapstructure:"system_instruction"`
}

// GoogleConfig points at the OAuth client and token files
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

// AnnouncementPage is one page scraped for announcement links
type AnnouncementPage struct {
	Title    string `mapstructure:"title"`
	URL      string `mapstructure:"url"`
	Selector string `mapstructure:"selector"`
}

// AnnouncementsConfig contains scraper and watcher settings
type AnnouncementsConfig struct {
	Schedule string             `mapstructure:"schedule"`
	Limit    int                `mapstructure:"limit"`
	Pages    []AnnouncementPage `mapstructure:"pages"`
}

// StorageConfig contains persistence settings
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// PerformanceConfig contains worker settings
type PerformanceConfig struct {
	WorkerThreads int           `mapstructure:"worker_threads"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
}

// WebConfig contains HTTP API settings
type WebConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultAnnouncementPages returns the university pages watched out of the box.
func DefaultAnnouncementPages() []AnnouncementPage {
	return []AnnouncementPage{
		{
			Title:    "Conference & Events",
			URL:      "https://hbtu.ac.in/conference-events/",
			Selector: ".entry-content",
		},
		{
			Title:    "Academic Circulars",
			URL:      "https://hbtu.ac.in/academic-circular/",
			Selector: ".entry-content",
		},
		{
			Title:    "Examination Circulars",
			URL:      "https://hbtu.ac.in/examinations/",
			Selector: "#e-n-tab-content-9783400146",
		},
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			MaxSizeKB:          500,
			Quality:            95,
			QualityStep:        5,
			QualityFloor:       10,
			ReductionThreshold: 0.75,
			ImageQuality:       75,
			DPI:                300,
			WorkDir:            "Temp",
			PreserveMetadata:   false,
		},
		Bot: BotConfig{
			HistoryLimit: 50,
			MaxSessions:  1000,
			DownloadDir:  "Temp/Cache_Downloaded",
		},
		AI: AIConfig{
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:             "gemini-2.0-flash",
			SystemInstruction: "You are a concise personal assistant.",
		},
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
		},
		Announcements: AnnouncementsConfig{
			Schedule: "@every 6h",
			Limit:    5,
			Pages:    DefaultAnnouncementPages(),
		},
		Storage: StorageConfig{
			DatabasePath: "desk-assistant.db",
		},
		Performance: PerformanceConfig{
			WorkerThreads: 4,
			JobTimeout:    2 * time.Minute,
		},
		Web: WebConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "logs/desk-assistant.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from .env, the config file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is fine, variables may be set by the environment.
	_ = godotenv.Load()

	config := DefaultConfig()
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.desk-assistant")
		v.AddConfigPath("/etc/desk-assistant")
	}

	v.SetEnvPrefix("DESK_ASSISTANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	ResolveSecrets(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers the keys viper cannot discover through AutomaticEnv alone
// (Unmarshal only sees keys it already knows about).
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"bot.token",
		"bot.announce_chat_id",
		"ai.api_key",
		"ai.base_url",
		"ai.model",
		"storage.database_path",
		"compression.reduction_threshold",
		"compression.max_size_kb",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	comp := &c.Compression
	if comp.MaxSizeKB <= 0 {
		return fmt.Errorf("compression.max_size_kb must be positive, got %d", comp.MaxSizeKB)
	}
	if comp.Quality < 1 || comp.Quality > 100 {
		return fmt.Errorf("compression.quality must be in 1..100, got %d", comp.Quality)
	}
	if comp.QualityStep <= 0 {
		comp.QualityStep = 5
	}
	if comp.QualityFloor < 1 || comp.QualityFloor > comp.Quality {
		return fmt.Errorf("compression.quality_floor must be in 1..quality, got %d", comp.QualityFloor)
	}
	if comp.ReductionThreshold <= 0 || comp.ReductionThreshold > 1 {
		return fmt.Errorf("compression.reduction_threshold must be in (0,1], got %v", comp.ReductionThreshold)
	}
	if comp.ImageQuality < 1 || comp.ImageQuality > 100 {
		return fmt.Errorf("compression.image_quality must be in 1..100, got %d", comp.ImageQuality)
	}
	if comp.DPI <= 0 {
		comp.DPI = 300
	}
	if comp.WorkDir == "" {
		comp.WorkDir = "Temp"
	}
	comp.WorkDir = expandPath(comp.WorkDir)

	if c.Bot.HistoryLimit <= 0 {
		c.Bot.HistoryLimit = 50
	}
	if c.Bot.MaxSessions <= 0 {
		c.Bot.MaxSessions = 1000
	}
	if c.Bot.DownloadDir == "" {
		c.Bot.DownloadDir = filepath.Join(comp.WorkDir, "Cache_Downloaded")
	}

	if c.Announcements.Limit <= 0 {
		c.Announcements.Limit = 5
	}
	for i, p := range c.Announcements.Pages {
		if p.URL == "" || p.Selector == "" {
			return fmt.Errorf("announcements.pages[%d] needs url and selector", i)
		}
	}

	if c.Performance.WorkerThreads <= 0 {
		c.Performance.WorkerThreads = 4
	}
	if c.Performance.JobTimeout <= 0 {
		c.Performance.JobTimeout = 2 * time.Minute
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// OutputDir returns the directory compression artifacts are written to.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Compression.WorkDir, "output")
}

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}
