package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/yeremiapane/kitchen-display/kds"
)

const (
	PushWebsocket = "websocket"
	PushAMQP      = "amqp"
	PushNone      = "none"
)

type HTTP struct {
	Port    string
	GinMode string
}

type Auth struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Database struct {
	Driver string // sqlite | mysql | postgres
	DSN    string
}

// Feed describes how the display reaches the order feed, and how the
// reference feed server publishes.
type Feed struct {
	URL            string
	PushDriver     string
	WSURL          string
	Token          string
	Role           string
	AMQPURL        string
	AMQPExchange   string
	OutboxInterval time.Duration
}

type Config struct {
	HTTP     HTTP
	LogLevel string
	Auth     Auth
	Database Database
	Feed     Feed
	Engine   kds.Config
}

var loadEnvOnce sync.Once

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	loadEnvOnce.Do(func() {
		_ = godotenv.Load()
	})

	def := kds.DefaultConfig()
	cfg := Config{
		HTTP: HTTP{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Auth: Auth{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Database: Database{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:    getEnv("DB_DSN", "file:kitchen.db?_foreign_keys=on"),
		},
		Feed: Feed{
			URL:            getEnv("KDS_FEED_URL", "http://localhost:8080"),
			PushDriver:     strings.ToLower(getEnv("KDS_PUSH_DRIVER", PushWebsocket)),
			WSURL:          getEnv("KDS_WS_URL", ""),
			Token:          getEnv("KDS_TOKEN", ""),
			Role:           getEnv("KDS_ROLE", "chef"),
			AMQPURL:        getEnv("AMQP_URL", ""),
			AMQPExchange:   getEnv("AMQP_EXCHANGE", "kitchen.events"),
			OutboxInterval: getEnvAsDuration("FEED_OUTBOX_INTERVAL", 500*time.Millisecond),
		},
		Engine: kds.Config{
			PollInterval:         getEnvAsDuration("KDS_POLL_INTERVAL", def.PollInterval),
			DegradedPollInterval: getEnvAsDuration("KDS_DEGRADED_POLL_INTERVAL", def.DegradedPollInterval),
			TickInterval:         getEnvAsDuration("KDS_TICK_INTERVAL", def.TickInterval),
			FetchTimeout:         getEnvAsDuration("KDS_FETCH_TIMEOUT", def.FetchTimeout),
			CommandTimeout:       getEnvAsDuration("KDS_COMMAND_TIMEOUT", def.CommandTimeout),
			Retention:            getEnvAsDuration("KDS_RETENTION", def.Retention),
			NotificationLimit:    getEnvAsInt("KDS_NOTIFICATION_LIMIT", def.NotificationLimit),
			SortByPriority:       getEnvAsBool("KDS_SORT_BY_PRIORITY", false),
		},
	}

	if cfg.HTTP.Port == "" {
		return Config{}, fmt.Errorf("PORT must not be empty")
	}

	switch cfg.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.Database.Driver)
	}

	switch cfg.Feed.PushDriver {
	case PushWebsocket:
		if cfg.Feed.WSURL == "" {
			cfg.Feed.WSURL = defaultWSURL(cfg.Feed.URL, cfg.Feed.Role)
		}
	case PushAMQP:
		if cfg.Feed.AMQPURL == "" {
			return Config{}, fmt.Errorf("AMQP_URL must be provided when KDS_PUSH_DRIVER=amqp")
		}
	case PushNone:
	default:
		return Config{}, fmt.Errorf("unsupported KDS_PUSH_DRIVER: %s", cfg.Feed.PushDriver)
	}

	if cfg.Engine.PollInterval <= 0 {
		return Config{}, fmt.Errorf("KDS_POLL_INTERVAL must be positive")
	}
	if cfg.Engine.Retention <= 0 {
		return Config{}, fmt.Errorf("KDS_RETENTION must be positive")
	}
	if cfg.Engine.DegradedPollInterval > cfg.Engine.PollInterval {
		cfg.Engine.DegradedPollInterval = cfg.Engine.PollInterval
	}
	if cfg.Engine.TickInterval <= 0 {
		cfg.Engine.TickInterval = time.Second
	}
	if cfg.Engine.NotificationLimit <= 0 {
		cfg.Engine.NotificationLimit = kds.DefaultNotificationLimit
	}
	if cfg.Feed.OutboxInterval <= 0 {
		cfg.Feed.OutboxInterval = 500 * time.Millisecond
	}

	return cfg, nil
}

// RequireSecret is checked by the commands that sign or verify tokens.
func (c Config) RequireSecret() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return nil
}

// defaultWSURL derives ws://host/ws/<role> from the feed base URL.
func defaultWSURL(feedURL, role string) string {
	u := strings.TrimRight(feedURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/" + role
}
