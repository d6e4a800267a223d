package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. GENFLOW_SERVER_PORT for server.port.
const EnvPrefix = "GENFLOW"

// keys without defaults still need an env binding so Unmarshal sees them.
var requiredKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"providers.callback_base_url",
	"providers.callback_token",
	"providers.kie.api_key",
	"providers.gemini.api_key",
	"events.nats_url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("providers.video_backend", "kie")
	v.SetDefault("providers.kie.base_url", "https://api.kie.ai")
	v.SetDefault("providers.kie.request_timeout", "30s")
	v.SetDefault("providers.kie.veo_model", "veo3_fast")
	v.SetDefault("providers.kie.image_model", "google/nano-banana")
	v.SetDefault("providers.gemini.veo_model", "veo-2.0-generate-001")
	v.SetDefault("providers.gemini.request_timeout", "60s")

	v.SetDefault("events.stream", "GENERATION")
	v.SetDefault("events.subject_prefix", "generation")
	v.SetDefault("events.publish_timeout", "5s")

	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.stale_after", "2m")
	v.SetDefault("poller.batch_size", 50)
	v.SetDefault("poller.concurrency", 4)
	v.SetDefault("poller.rate_per_second", 2.0)
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Providers.VideoBackend == "gemini" && c.Providers.Gemini.APIKey == "" {
		return errors.New("config validation failed: providers.gemini.api_key is required when video_backend is gemini")
	}
	return nil
}
