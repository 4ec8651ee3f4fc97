package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

type PushConfig struct {
	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`
	Subscriber      string `toml:"subscriber"`
}

type RateLimitConfig struct {
	Window time.Duration `toml:"window"`
	Send   int           `toml:"send"`
	Edit   int           `toml:"edit"`
	Delete int           `toml:"delete"`
}

type Config struct {
	DBFile      string          `toml:"db"`
	AdminAddr   string          `toml:"admin_addr"`
	APIAddr     string          `toml:"api_addr"`
	BaseURL     string          `toml:"base_url"`
	AuthSecret  string          `toml:"auth_secret"`
	TokenExpiry time.Duration   `toml:"token_expiry"`
	Log         LogConfig       `toml:"log"`
	Push        PushConfig      `toml:"push"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
}

func defaults() Config {
	return Config{
		DBFile:      "palaver.db",
		AdminAddr:   "localhost:8081",
		APIAddr:     ":8080",
		BaseURL:     "http://localhost:8080",
		TokenExpiry: 24 * time.Hour,
		Log:         LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			Send:   30,
			Edit:   20,
			Delete: 15,
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path and the environment, later sources winning. A .env file in the
// working directory is loaded into the environment first; it never
// overrides variables that are already set.
func Load(path string, cliMode bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.DBFile = getEnv("PALAVER_DB", c.DBFile)
	c.AdminAddr = getEnv("ADMIN_ADDR", c.AdminAddr)
	c.APIAddr = getEnv("API_ADDR", c.APIAddr)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.AuthSecret = getEnv("AUTH_SECRET", c.AuthSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Push.VAPIDPublicKey = getEnv("VAPID_PUBLIC_KEY", c.Push.VAPIDPublicKey)
	c.Push.VAPIDPrivateKey = getEnv("VAPID_PRIVATE_KEY", c.Push.VAPIDPrivateKey)
	c.Push.Subscriber = getEnv("VAPID_SUBSCRIBER", c.Push.Subscriber)

	var err error
	if c.TokenExpiry, err = getDuration("TOKEN_EXPIRY", c.TokenExpiry); err != nil {
		return err
	}
	if c.Log.JSON, err = getBool("LOG_JSON", c.Log.JSON); err != nil {
		return err
	}
	if c.RateLimit.Window, err = getDuration("RATE_WINDOW", c.RateLimit.Window); err != nil {
		return err
	}
	if c.RateLimit.Send, err = getInt("RATE_SEND", c.RateLimit.Send); err != nil {
		return err
	}
	if c.RateLimit.Edit, err = getInt("RATE_EDIT", c.RateLimit.Edit); err != nil {
		return err
	}
	if c.RateLimit.Delete, err = getInt("RATE_DELETE", c.RateLimit.Delete); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_WINDOW must be greater than 0")
	}

	if c.RateLimit.Send <= 0 || c.RateLimit.Edit <= 0 || c.RateLimit.Delete <= 0 {
		return fmt.Errorf("rate limits must be greater than 0")
	}

	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
