package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// MinFlushDelay is the smallest pause allowed between two tracker updates during a flush
const MinFlushDelay = 500 * time.Millisecond

// Config holds all application configuration
type Config struct {
	// AniList
	AniListAPIURL   string
	AutoSyncTracker bool          // Push completion/progress status to AniList
	MediaListTTL    time.Duration // How long the cached media list stays valid

	// Remote mirror
	MirrorURL string // Empty disables mirroring

	// Sync
	FlushDelay           time.Duration // Pause between queued tracker updates
	FlushSchedule        string        // Cron spec for opportunistic flushes
	IdentityPollSchedule string        // Cron spec for identity change detection

	// Server
	ServerPort string

	// Paths
	DatabaseFile       string // $CONFIG_DIR/watchsync.db
	TrackerTokenFile   string // $CONFIG_DIR/anilist_token.json
	MirrorIdentityFile string // $CONFIG_DIR/mirror_identity.json

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("ANILIST_API_URL", "https://graphql.anilist.co")
	viper.SetDefault("AUTO_SYNC_TRACKER", true)
	viper.SetDefault("MEDIA_LIST_TTL_MINUTES", 30)
	viper.SetDefault("FLUSH_DELAY_MS", 500)
	viper.SetDefault("FLUSH_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("IDENTITY_POLL_SCHEDULE", "@every 1m")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "watchsync")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	flushDelay := time.Duration(viper.GetInt("FLUSH_DELAY_MS")) * time.Millisecond
	if flushDelay < MinFlushDelay {
		flushDelay = MinFlushDelay
	}

	config := &Config{
		AniListAPIURL:   viper.GetString("ANILIST_API_URL"),
		AutoSyncTracker: viper.GetBool("AUTO_SYNC_TRACKER"),
		MediaListTTL:    time.Duration(viper.GetInt("MEDIA_LIST_TTL_MINUTES")) * time.Minute,

		MirrorURL: viper.GetString("MIRROR_URL"),

		FlushDelay:           flushDelay,
		FlushSchedule:        viper.GetString("FLUSH_SCHEDULE"),
		IdentityPollSchedule: viper.GetString("IDENTITY_POLL_SCHEDULE"),

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile:       filepath.Join(configDir, "watchsync.db"),
		TrackerTokenFile:   filepath.Join(configDir, "anilist_token.json"),
		MirrorIdentityFile: filepath.Join(configDir, "mirror_identity.json"),

		LogLevel:  viper.GetString("LOG_LEVEL"),
		LogFormat: viper.GetString("LOG_FORMAT"),
	}

	if config.AniListAPIURL == "" {
		return nil, fmt.Errorf("ANILIST_API_URL is required")
	}
	if config.MediaListTTL <= 0 {
		return nil, fmt.Errorf("MEDIA_LIST_TTL_MINUTES must be positive")
	}

	return config, nil
}
