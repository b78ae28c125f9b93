package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/kursadbilgin/plusserver-sms/plusserver"
)

// Provider holds the gateway settings shared by the CLI and the worker.
// Empty values leave the library defaults in place.
type Provider struct {
	Username     string `env:"PLUSSERVER_USERNAME"`
	Password     string `env:"PLUSSERVER_PASSWORD"`
	Project      string `env:"PLUSSERVER_PROJECT"`
	Orig         string `env:"PLUSSERVER_ORIG"`
	Encoding     string `env:"PLUSSERVER_ENCODING"`
	MaxParts     int    `env:"PLUSSERVER_MAX_PARTS"`
	Timeout      string `env:"PLUSSERVER_TIMEOUT"`
	PutURL       string `env:"PLUSSERVER_PUT_URL"`
	StateURL     string `env:"PLUSSERVER_STATE_URL"`
	PollInterval string `env:"PLUSSERVER_POLL_INTERVAL"`
}

type Config struct {
	Provider Provider

	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string `env:"RABBITMQ_URL,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=10"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=4"`
	MaxAttempts       int    `env:"MAX_ATTEMPTS,default=3"`
	TrackInterval     string `env:"TRACK_INTERVAL,default=15s"`
	HTTPPort          int    `env:"HTTP_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

// Load reads the worker configuration. An optional .env file in the working
// directory is applied first; variables already set win.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	provider, err := loadProvider()
	if err != nil {
		return nil, err
	}
	cfg.Provider = *provider

	if _, err := cfg.TrackEvery(); err != nil {
		return nil, err
	}
	if _, err := cfg.Provider.Settings(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadProvider reads only the gateway settings, for tools that need no
// database or broker.
func LoadProvider() (*Provider, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	provider, err := loadProvider()
	if err != nil {
		return nil, err
	}
	if _, err := provider.Settings(); err != nil {
		return nil, err
	}
	return provider, nil
}

type broker struct {
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
}

// LoadBrokerURL reads RABBITMQ_URL for tools that only publish.
func LoadBrokerURL() (string, error) {
	if err := loadDotEnv(); err != nil {
		return "", err
	}
	var b broker
	if _, err := env.UnmarshalFromEnviron(&b); err != nil {
		return "", fmt.Errorf("failed to load broker config: %w", err)
	}
	return b.RabbitMQURL, nil
}

type database struct {
	DSN string `env:"DATABASE_DSN,required=true"`
}

// LoadDatabaseDSN reads DATABASE_DSN for tools that inspect the worker's
// dispatch table.
func LoadDatabaseDSN() (string, error) {
	if err := loadDotEnv(); err != nil {
		return "", err
	}
	var d database
	if _, err := env.UnmarshalFromEnviron(&d); err != nil {
		return "", fmt.Errorf("failed to load database config: %w", err)
	}
	return d.DSN, nil
}

func loadProvider() (*Provider, error) {
	var p Provider
	if _, err := env.UnmarshalFromEnviron(&p); err != nil {
		return nil, fmt.Errorf("failed to load provider config: %w", err)
	}
	return &p, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func (c *Config) TrackEvery() (time.Duration, error) {
	d, err := parseDuration("TRACK_INTERVAL", c.TrackInterval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("TRACK_INTERVAL must be positive")
	}
	return d, nil
}

// Settings converts p into plusserver settings. Only non-empty values are
// turned into settings.
func (p Provider) Settings() ([]plusserver.Setting, error) {
	var settings []plusserver.Setting

	add := func(value string, setting func(string) plusserver.Setting) {
		if value != "" {
			settings = append(settings, setting(value))
		}
	}
	add(p.Username, plusserver.SetUsername)
	add(p.Password, plusserver.SetPassword)
	add(p.Project, plusserver.SetProject)
	add(p.Orig, plusserver.SetOrig)
	add(p.Encoding, plusserver.SetEncoding)
	add(p.PutURL, plusserver.SetPutURL)
	add(p.StateURL, plusserver.SetStateURL)

	if p.MaxParts < 0 {
		return nil, fmt.Errorf("PLUSSERVER_MAX_PARTS must not be negative")
	}
	if p.MaxParts > 0 {
		settings = append(settings, plusserver.SetMaxParts(p.MaxParts))
	}

	timeout, err := parseDuration("PLUSSERVER_TIMEOUT", p.Timeout)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		settings = append(settings, plusserver.SetTimeout(timeout))
	}

	interval, err := parseDuration("PLUSSERVER_POLL_INTERVAL", p.PollInterval)
	if err != nil {
		return nil, err
	}
	if interval > 0 {
		settings = append(settings, plusserver.SetPollInterval(interval))
	}

	return settings, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}
