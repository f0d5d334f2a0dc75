package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type StoreConfig struct {
	Driver string   `mapstructure:"driver" validate:"oneof=sqlite s3 memory"`
	DSN    string   `mapstructure:"dsn" validate:"required_if=Driver sqlite"`
	S3     S3Config `mapstructure:"s3"`
}

type Config struct {
	Mode           string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port           int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	LogLevel       string        `mapstructure:"log_level"`
	BackendURL     string        `mapstructure:"backend_url" validate:"required,url"`
	User           string        `mapstructure:"user" validate:"required,max=36"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	VanishingTTL   time.Duration `mapstructure:"vanishing_ttl" validate:"gt=0"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	Store          StoreConfig   `mapstructure:"store"`
}

// New returns a viper instance with every default set and env overrides
// enabled (PARLEY_BACKEND_URL, PARLEY_STORE_DRIVER, ...).
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("parley")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("log_level", "info")
	v.SetDefault("backend_url", "http://localhost:8080")
	v.SetDefault("user", "guest")
	v.SetDefault("poll_interval", "1200ms")
	v.SetDefault("sweep_interval", "2s")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("vanishing_ttl", "30s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:parley.db")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.access_key", "")
	v.SetDefault("store.s3.secret_key", "")
	return v
}

// Load reads config/config.<CONFIG_ENV>.yaml into v (falling back to the
// defaults when the file is missing) and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("backend", cfg.BackendURL).
		Str("store", cfg.Store.Driver).
		Msg("config ready")
	return &cfg, nil
}
