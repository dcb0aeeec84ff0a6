package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MLS       MLSConfig
	Geocode   GeocodeConfig
	Webhook   WebhookConfig
	Scheduler SchedulerConfig
	Archive   ArchiveConfig
	DBURL     string
	DBPath    string
	LogPath   string
	Feeds     map[string]*FeedConfig
}

type MLSConfig struct {
	BaseURL       string
	AuthURL       string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	RefreshMargin time.Duration
}

type GeocodeConfig struct {
	BaseURL     string
	Token       string
	MinInterval time.Duration
}

type WebhookConfig struct {
	URL string // empty disables the notifier
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

// ArchiveConfig configures optional raw payload archival to S3-compatible
// storage. Disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// FeedConfig describes one upstream OData resource pull.
type FeedConfig struct {
	ID       string   `yaml:"id"`
	Resource string   `yaml:"resource"`
	Class    string   `yaml:"class"`
	Filter   string   `yaml:"filter"`
	Select   []string `yaml:"select"`
	OrderBy  string   `yaml:"order_by"`
	PageSize int      `yaml:"page_size"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MLS: MLSConfig{
			BaseURL:       getEnv("MLS_BASE_URL", "https://retsapi.raprets.com/2/LUBB/RESO/OData"),
			AuthURL:       getEnv("MLS_AUTH_URL", "https://retsidentityapi.raprets.com/LUBB/oauth/token"),
			ClientID:      os.Getenv("MLS_CLIENT_ID"),
			ClientSecret:  os.Getenv("MLS_CLIENT_SECRET"),
			Username:      os.Getenv("MLS_USERNAME"),
			Password:      os.Getenv("MLS_PASSWORD"),
			RefreshMargin: getEnvDuration("TOKEN_REFRESH_MARGIN", 2*time.Minute),
		},
		Geocode: GeocodeConfig{
			BaseURL:     getEnv("GEOCODE_BASE_URL", "https://api.mapbox.com/geocoding/v5/mapbox.places"),
			Token:       os.Getenv("MAPBOX_TOKEN"),
			MinInterval: getEnvDuration("GEOCODE_MIN_INTERVAL", 200*time.Millisecond),
		},
		Webhook: WebhookConfig{
			URL: os.Getenv("WEBHOOK_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval: getEnvDuration("SYNC_INTERVAL", 15*time.Minute),
			Cron:     os.Getenv("SYNC_CRON"),
		},
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("ARCHIVE_BUCKET"),
			Region:          getEnv("ARCHIVE_REGION", "us-east-1"),
			Endpoint:        os.Getenv("ARCHIVE_ENDPOINT"),
			AccessKeyID:     os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
		},
		DBURL:   os.Getenv("DATABASE_URL"),
		DBPath:  getEnv("DB_PATH", "syncd.db"),
		LogPath: getEnv("LOG_PATH", "syncd.log"),
		Feeds:   make(map[string]*FeedConfig),
	}

	if err := cfg.loadFeedConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFeedConfigs() error {
	feedDir := getEnv("FEED_CONFIG_DIR", "config/feeds")
	entries, err := os.ReadDir(feedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(feedDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var feed FeedConfig
		if err := yaml.Unmarshal(data, &feed); err != nil {
			return err
		}
		if feed.PageSize <= 0 {
			feed.PageSize = 1000
		}

		c.Feeds[feed.ID] = &feed
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
