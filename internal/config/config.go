package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`

	trustedNets []net.IPNet
}

type ServerConfig struct {
	Listen          string        `yaml:"listen" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec" validate:"gt=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" validate:"gt=0"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path         string `yaml:"path" validate:"required"`
	MaxReadConns int    `yaml:"max_read_conns" validate:"gt=0"`
}

type SchedulerConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	MaxPerTick          int           `yaml:"max_per_tick" validate:"gt=0"`
	ProbeConcurrency    int           `yaml:"probe_concurrency" validate:"gt=0"`
	AllowPrivateTargets bool          `yaml:"allow_private_targets"`
	AllowlistHosts      []string      `yaml:"allowlist_hosts"`
}

type NotifierConfig struct {
	Concurrency    int           `yaml:"concurrency" validate:"gt=0"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

type RetentionConfig struct {
	CheckResultsDays int `yaml:"check_results_days" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			RateLimitPerSec: 30,
			RateLimitBurst:  60,
		},
		Database: DatabaseConfig{
			Path:         "uptimer.db",
			MaxReadConns: 4,
		},
		Scheduler: SchedulerConfig{
			TickInterval:     60 * time.Second,
			MaxPerTick:       200,
			ProbeConcurrency: 5,
		},
		Notifier: NotifierConfig{
			Concurrency:    5,
			DefaultTimeout: 5 * time.Second,
		},
		Retention: RetentionConfig{
			CheckResultsDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	nets, err := parseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted_proxies: %w", err)
	}
	cfg.trustedNets = nets

	return cfg, nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return err
	}
	if c.Scheduler.TickInterval < 5*time.Second {
		return fmt.Errorf("scheduler.tick_interval must be at least 5s")
	}
	if c.Notifier.DefaultTimeout <= 0 || c.Notifier.DefaultTimeout > time.Minute {
		return fmt.Errorf("notifier.default_timeout must be in (0, 1m]")
	}
	return nil
}

func (c *Config) TrustedNets() []net.IPNet {
	return c.trustedNets
}

func parseTrustedProxies(proxies []string) ([]net.IPNet, error) {
	var nets []net.IPNet
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP: %s", p)
			}
			if ip.To4() != nil {
				p += "/32"
			} else {
				p += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR: %s", p)
		}
		nets = append(nets, *ipNet)
	}
	return nets, nil
}
