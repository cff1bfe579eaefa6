package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates all runtime settings. All fields are immutable after
// MustLoad().
//
// Values come from environment variables (the names below match the original
// deployment) with an optional config.yaml for local development. Secrets
// like BOT_TOKEN are mandatory and have no default.
type Config struct {
	Version string // app version or git SHA

	BotToken      string // Telegram bot token
	AdminID       int64  // operator identity, receives questions
	MonitorID     int64  // notified about new users
	TechManagerID int64  // privileged for broadcast/stats, receives error logs

	DBDriver    string // "sqlite" or "postgres"
	DBPath      string // sqlite file path
	DatabaseURL string // postgres DSN, required when DBDriver=postgres

	MaxPerMinute  int           // rate limit ceiling, trailing 60s
	MaxPerHour    int           // rate limit ceiling, trailing 3600s
	RateRetention time.Duration // how long rate events are kept

	AlbumWindow      time.Duration // media-group quiescence window
	CorrelationLimit int           // bounded size of the origin index

	SendRate  int // outbound sends per second, 0 disables throttling
	SendBurst int

	LogLevel    string
	MetricsAddr string
}

// MustLoad panics on configuration errors. Use in main() where a bad
// configuration is fatal anyway.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads environment variables (plus an optional config.yaml in the
// working directory), applies defaults and validates the result.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "data/support.db")
	v.SetDefault("MAX_MESSAGES_PER_MINUTE", 5)
	v.SetDefault("MAX_MESSAGES_PER_HOUR", 30)
	v.SetDefault("RATE_RETENTION", "168h")
	v.SetDefault("ALBUM_WINDOW", "500ms")
	v.SetDefault("CORRELATION_LIMIT", 4096)
	v.SetDefault("SEND_RATE", 0)
	v.SetDefault("SEND_BURST", 0)
	v.SetDefault("METRICS_ADDR", ":8080")

	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Version:          v.GetString("APP_VERSION"),
		BotToken:         v.GetString("BOT_TOKEN"),
		AdminID:          v.GetInt64("ADMIN_ID"),
		MonitorID:        v.GetInt64("MONITOR_ID"),
		TechManagerID:    v.GetInt64("TECH_MANAGER_ID"),
		DBDriver:         v.GetString("DB_DRIVER"),
		DBPath:           v.GetString("DB_PATH"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		MaxPerMinute:     v.GetInt("MAX_MESSAGES_PER_MINUTE"),
		MaxPerHour:       v.GetInt("MAX_MESSAGES_PER_HOUR"),
		RateRetention:    v.GetDuration("RATE_RETENTION"),
		AlbumWindow:      v.GetDuration("ALBUM_WINDOW"),
		CorrelationLimit: v.GetInt("CORRELATION_LIMIT"),
		SendRate:         v.GetInt("SEND_RATE"),
		SendBurst:        v.GetInt("SEND_BURST"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		MetricsAddr:      v.GetString("METRICS_ADDR"),
	}

	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.AdminID == 0 {
		return Config{}, fmt.Errorf("ADMIN_ID is required")
	}
	switch cfg.DBDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for DB_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.MaxPerMinute <= 0 || cfg.MaxPerHour <= 0 {
		return Config{}, fmt.Errorf("rate limit ceilings must be positive")
	}
	if cfg.AlbumWindow <= 0 {
		return Config{}, fmt.Errorf("ALBUM_WINDOW must be positive")
	}
	return cfg, nil
}
