package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrMissingCredentials    = errors.New("missing platform credentials")
	ErrInvalidSchedule       = errors.New("invalid schedule configuration")
	ErrInvalidReplyLimits    = errors.New("invalid reply limit configuration")
)

// CurrentVersion is the config file version this binary understands.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version  int      `koanf:"version"`
	Logging  Logging  `koanf:"logging"`
	State    State    `koanf:"state"`
	Threads  Threads  `koanf:"threads"`
	Schedule Schedule `koanf:"schedule"`
	Reply    Reply    `koanf:"reply"`
	Gemini   Gemini   `koanf:"gemini"`
	Images   Images   `koanf:"images"`
	Retry    Retry    `koanf:"retry"`
}

// Logging contains log output configuration.
type Logging struct {
	// Logging level (debug, info, warn, error).
	Level string `koanf:"level"`
	// Base directory for session log files.
	Dir string `koanf:"dir"`
	// Maximum number of log sessions to retain.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// State contains durable state storage configuration.
type State struct {
	// Path to the JSON state document.
	Path string `koanf:"path"`
}

// Threads contains platform API configuration.
type Threads struct {
	// Long-lived access token for the Graph API.
	AccessToken string `koanf:"access_token"`
	// Numeric account ID the bot posts as.
	UserID string `koanf:"user_id"`
	// API base URL, overridable for testing.
	BaseURL string `koanf:"base_url"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
}

// Schedule contains daily post scheduling configuration.
type Schedule struct {
	// Number of text posts to schedule per day.
	TextPostsPerDay int `koanf:"text_posts_per_day"`
	// Number of image posts to schedule per day.
	ImagePostsPerDay int `koanf:"image_posts_per_day"`
	// Start hour of the window where no posts are scheduled (inclusive).
	AvoidStartHour int `koanf:"avoid_start_hour"`
	// End hour of the avoided window (exclusive).
	AvoidEndHour int `koanf:"avoid_end_hour"`
	// Hours that receive the high sampling weight.
	HighActivityHours []int `koanf:"high_activity_hours"`
	// Sampling weight for high activity hours.
	HighWeight int `koanf:"high_weight"`
	// Sampling weight for all remaining hours.
	BaseWeight int `koanf:"base_weight"`
}

// Reply contains auto-reply configuration.
type Reply struct {
	// Whether the reply orchestrator runs at all.
	Enabled bool `koanf:"enabled"`
	// Maximum replies per calendar day.
	DailyCap int `koanf:"daily_cap"`
	// Maximum replies on a single thread.
	PerThreadCap int `koanf:"per_thread_cap"`
	// Maximum replies to a single user within one thread.
	PerUserCap int `koanf:"per_user_cap"`
	// Minimum delay between consecutive replies in seconds.
	MinDelaySeconds int `koanf:"min_delay_seconds"`
	// Maximum delay between consecutive replies in seconds.
	MaxDelaySeconds int `koanf:"max_delay_seconds"`
	// Orchestrator polling interval in minutes.
	PollIntervalMinutes int `koanf:"poll_interval_minutes"`
	// Number of recent own threads to scan per cycle.
	ThreadLimit int `koanf:"thread_limit"`
	// Number of recent comments to scan per thread.
	CommentLimit int `koanf:"comment_limit"`
	// Phrases rejected as low value, checked against normalized text.
	LowValuePhrases []string `koanf:"low_value_phrases"`
}

// Gemini contains content generation configuration.
type Gemini struct {
	// API key for the Gemini API.
	APIKey string `koanf:"api_key"`
	// Model name used for all generation.
	Model string `koanf:"model"`
	// Sampling temperature.
	Temperature float32 `koanf:"temperature"`
	// Maximum concurrent generation requests.
	MaxConcurrent int64 `koanf:"max_concurrent"`
	// File containing the system instruction for post generation.
	PostPromptFile string `koanf:"post_prompt_file"`
	// File containing the system instruction for reply generation.
	ReplyPromptFile string `koanf:"reply_prompt_file"`
}

// Images contains image sourcing and hosting configuration.
type Images struct {
	// Local folder scanned for candidate images.
	Folder string `koanf:"folder"`
	// Accepted file extensions.
	Extensions []string `koanf:"extensions"`
	// Upload endpoint of the image host.
	UploadURL string `koanf:"upload_url"`
	// API key for the image host.
	UploadKey string `koanf:"upload_key"`
}

// Retry contains backoff configuration for platform calls.
type Retry struct {
	// Maximum retry attempts after the first failure.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial backoff interval in milliseconds.
	InitialInterval int `koanf:"initial_interval"`
	// Maximum backoff interval in milliseconds.
	MaxInterval int `koanf:"max_interval"`
	// Maximum total elapsed retry time in milliseconds.
	MaxElapsedTime int `koanf:"max_elapsed_time"`
}

// LoadConfig loads the configuration file from the known search paths.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".plume",
		homeDir + "/.plume/config",
		"/etc/plume/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/plume.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: plume.toml", ErrConfigFileNotFound)
	}

	config := Default()
	if err := k.Unmarshal("", config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, "", err
	}

	return config, usedConfigPath, nil
}

// Default returns the configuration defaults applied before the file is read.
func Default() *Config {
	return &Config{
		Logging: Logging{
			Level:         "info",
			Dir:           "logs",
			MaxLogsToKeep: 10,
		},
		State: State{
			Path: "data/state.json",
		},
		Threads: Threads{
			BaseURL:        "https://graph.threads.net/v1.0",
			RequestTimeout: 30000,
		},
		Schedule: Schedule{
			TextPostsPerDay:   10,
			ImagePostsPerDay:  5,
			AvoidStartHour:    2,
			AvoidEndHour:      7,
			HighActivityHours: []int{9, 10, 11, 12, 13, 14, 17, 18, 19, 20, 21},
			HighWeight:        3,
			BaseWeight:        1,
		},
		Reply: Reply{
			DailyCap:            20,
			PerThreadCap:        3,
			PerUserCap:          3,
			MinDelaySeconds:     120,
			MaxDelaySeconds:     900,
			PollIntervalMinutes: 15,
			ThreadLimit:         10,
			CommentLimit:        25,
			LowValuePhrases:     []string{"lol", "yes", "yesss", "no", "ok", "okay"},
		},
		Gemini: Gemini{
			Model:         "gemini-1.5-flash",
			Temperature:   0.7,
			MaxConcurrent: 1,
		},
		Images: Images{
			Folder:     "images",
			Extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
		},
		Retry: Retry{
			MaxRetries:      1,
			InitialInterval: 2000,
			MaxInterval:     10000,
			MaxElapsedTime:  30000,
		},
	}
}

// Validate checks the loaded configuration for fatal problems.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return fmt.Errorf("%w: add 'version = %d' to plume.toml", ErrConfigVersionMissing, CurrentVersion)
	}

	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: found version %d, expected %d",
			ErrConfigVersionMismatch, c.Version, CurrentVersion)
	}

	if c.Threads.AccessToken == "" || c.Threads.UserID == "" {
		return fmt.Errorf("%w: threads.access_token and threads.user_id are required", ErrMissingCredentials)
	}

	if c.Schedule.TextPostsPerDay < 0 || c.Schedule.ImagePostsPerDay < 0 {
		return fmt.Errorf("%w: daily quotas must not be negative", ErrInvalidSchedule)
	}

	if c.Schedule.AvoidStartHour < 0 || c.Schedule.AvoidEndHour > 24 ||
		c.Schedule.AvoidStartHour > c.Schedule.AvoidEndHour {
		return fmt.Errorf("%w: avoided window must satisfy 0 <= start <= end <= 24", ErrInvalidSchedule)
	}

	if c.Reply.Enabled {
		if c.Reply.DailyCap <= 0 || c.Reply.PerThreadCap <= 0 || c.Reply.PerUserCap <= 0 {
			return fmt.Errorf("%w: caps must be positive when replies are enabled", ErrInvalidReplyLimits)
		}

		if c.Reply.MinDelaySeconds < 0 || c.Reply.MaxDelaySeconds < c.Reply.MinDelaySeconds {
			return fmt.Errorf("%w: delay window must satisfy 0 <= min <= max", ErrInvalidReplyLimits)
		}
	}

	return nil
}
