// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from environment variables, optionally
// seeded from a .env file.
type Config struct {
	HTTPAddress         string        `mapstructure:"HTTP_ADDRESS"`
	Port                string        `mapstructure:"PORT"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	TokenSecretKey      string        `mapstructure:"TOKEN_SECRET_KEY"`
	AccessTokenDuration time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	CloseInterval       time.Duration `mapstructure:"CLOSE_INTERVAL"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	SeedDemoData        bool          `mapstructure:"SEED_DEMO_DATA"`

	WSWriteTimeout            time.Duration `mapstructure:"WS_WRITE_TIMEOUT"`
	WSPongTimeout             time.Duration `mapstructure:"WS_PONG_TIMEOUT"`
	WSHandshakeTimeout        time.Duration `mapstructure:"WS_HANDSHAKE_TIMEOUT"`
	WSSendBuffer              int           `mapstructure:"WS_SEND_BUFFER"`
	WSAllowUnverifiedIdentity bool          `mapstructure:"WS_ALLOW_UNVERIFIED_IDENTITY"`
}

var defaults = map[string]any{
	"HTTP_ADDRESS":                 "",
	"PORT":                         "8080",
	"DATABASE_URL":                 "",
	"TOKEN_SECRET_KEY":             "",
	"ACCESS_TOKEN_DURATION":        "24h",
	"CLOSE_INTERVAL":               "1s",
	"LOG_LEVEL":                    "info",
	"SEED_DEMO_DATA":               false,
	"WS_WRITE_TIMEOUT":             "5s",
	"WS_PONG_TIMEOUT":              "60s",
	"WS_HANDSHAKE_TIMEOUT":         "2s",
	"WS_SEND_BUFFER":               32,
	"WS_ALLOW_UNVERIFIED_IDENTITY": true,
}

// Load reads configuration from the environment. envFile, when it exists,
// is loaded first; variables already present in the environment win.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to decode: %w", err)
	}

	if cfg.HTTPAddress == "" {
		cfg.HTTPAddress = ":" + strings.TrimPrefix(cfg.Port, ":")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AccessTokenDuration <= 0 {
		return fmt.Errorf("config: ACCESS_TOKEN_DURATION must be positive")
	}
	if c.CloseInterval <= 0 {
		return fmt.Errorf("config: CLOSE_INTERVAL must be positive")
	}
	if c.WSWriteTimeout <= 0 || c.WSPongTimeout <= 0 || c.WSHandshakeTimeout <= 0 {
		return fmt.Errorf("config: websocket timeouts must be positive")
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("config: WS_SEND_BUFFER must be positive")
	}
	return nil
}
