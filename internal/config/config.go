package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers" validate:"required"`
	Events    EventsConfig    `mapstructure:"events"`
	Poller    PollerConfig    `mapstructure:"poller"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// ProvidersConfig selects and configures the generation providers.
type ProvidersConfig struct {
	// VideoBackend picks the gateway used for video kinds.
	VideoBackend string `mapstructure:"video_backend" validate:"required,oneof=kie gemini"`
	// CallbackBaseURL is the externally reachable base URL providers call back to.
	CallbackBaseURL string `mapstructure:"callback_base_url" validate:"required,url"`
	// CallbackToken, when set, is appended to callback URLs and checked on receipt.
	CallbackToken string       `mapstructure:"callback_token"`
	Kie           KieConfig    `mapstructure:"kie"`
	Gemini        GeminiConfig `mapstructure:"gemini"`
}

// KieConfig configures the Kie HTTP API used for Veo video and image generation.
type KieConfig struct {
	APIKey         string        `mapstructure:"api_key" validate:"required"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	VeoModel       string        `mapstructure:"veo_model" validate:"required"`
	ImageModel     string        `mapstructure:"image_model" validate:"required"`
}

// GeminiConfig configures direct Veo access through the Gemini API.
type GeminiConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	VeoModel       string        `mapstructure:"veo_model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EventsConfig configures the durable event bus. Events are published only
// in-process when NATSURL is empty.
type EventsConfig struct {
	NATSURL        string        `mapstructure:"nats_url" validate:"omitempty,url"`
	Stream         string        `mapstructure:"stream" validate:"required_with=NATSURL"`
	SubjectPrefix  string        `mapstructure:"subject_prefix" validate:"required_with=NATSURL"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// PollerConfig configures the status-polling fallback for tasks whose
// callback never arrived.
type PollerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval" validate:"required_if=Enabled true"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=1"`
	Concurrency   int           `mapstructure:"concurrency" validate:"gte=1"`
	RatePerSecond float64       `mapstructure:"rate_per_second" validate:"gt=0"`
}
