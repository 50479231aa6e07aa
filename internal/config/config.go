// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	RedisURL string `mapstructure:"REDIS_URL"`

	PanelHost     string `mapstructure:"PANEL_HOST"`
	PanelPort     int    `mapstructure:"PANEL_PORT"`
	PanelUsername string `mapstructure:"PANEL_USERNAME"`
	PanelPassword string `mapstructure:"PANEL_PASSWORD"`

	MaxPendingPerUser    int           `mapstructure:"MAX_PENDING_PER_USER"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SweepInterval        time.Duration `mapstructure:"SWEEP_INTERVAL"`
	ProvisionStepTimeout time.Duration `mapstructure:"PROVISION_STEP_TIMEOUT"`
	ProvisionRetries     int           `mapstructure:"PROVISION_RETRIES"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config.
	// We intentionally ignore this error as the config file may not exist yet.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			var notFoundErr viper.ConfigFileNotFoundError
			if !errors.As(err, &notFoundErr) {
				return nil, fmt.Errorf("reading profile config 'config.%s.yml': %w", env, err)
			}
		}
	}

	viper.SetDefault("PORT", "8460")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "forgegate")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("PANEL_HOST", "localhost")
	viper.SetDefault("PANEL_PORT", 8080)
	viper.SetDefault("PANEL_USERNAME", "")
	viper.SetDefault("PANEL_PASSWORD", "")
	viper.SetDefault("MAX_PENDING_PER_USER", 3)
	viper.SetDefault("REQUEST_TIMEOUT", "24h")
	viper.SetDefault("SWEEP_INTERVAL", "1h")
	viper.SetDefault("PROVISION_STEP_TIMEOUT", "30s")
	viper.SetDefault("PROVISION_RETRIES", 3)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxPendingPerUser < 1 {
		return errors.New("MAX_PENDING_PER_USER must be at least 1")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.ProvisionRetries < 0 {
		return errors.New("PROVISION_RETRIES must not be negative")
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.PanelUsername == "" || c.PanelPassword == "" {
			return errors.New("PANEL_USERNAME and PANEL_PASSWORD are required in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
	}

	return nil
}

// PanelURL returns the base URL of the resource panel API.
func (c *Config) PanelURL() string {
	return fmt.Sprintf("http://%s:%d", c.PanelHost, c.PanelPort)
}
