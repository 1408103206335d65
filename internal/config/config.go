package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/beaconhq/beacon/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	Platforms  PlatformsConfig  `yaml:"platforms"`
	Redis      RedisConfig      `yaml:"redis"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type DispatcherConfig struct {
	Enabled          bool   `yaml:"enabled"`
	TickInterval     string `yaml:"tick_interval"`
	Workers          int    `yaml:"workers"`
	ProcessingGrace  string `yaml:"processing_grace"`
	RetryBackoff     string `yaml:"retry_backoff"`
	RateLimitPerHour int    `yaml:"rate_limit_per_hour"`
	StatsInterval    string `yaml:"stats_interval"`
}

type OAuthConfig struct {
	StateTTL      string `yaml:"state_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
	DashboardURL  string `yaml:"dashboard_url"`
}

type PlatformsConfig struct {
	YouTube   PlatformAppConfig `yaml:"youtube"`
	Instagram PlatformAppConfig `yaml:"instagram"`
	TikTok    PlatformAppConfig `yaml:"tiktok"`
	Twitter   PlatformAppConfig `yaml:"twitter"`
	Facebook  PlatformAppConfig `yaml:"facebook"`
}

type PlatformAppConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DashboardConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5440
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Dispatcher.TickInterval == "" {
		cfg.Dispatcher.TickInterval = "60s"
	}
	if cfg.Dispatcher.Workers == 0 {
		cfg.Dispatcher.Workers = 4
	}
	if cfg.Dispatcher.ProcessingGrace == "" {
		cfg.Dispatcher.ProcessingGrace = "10m"
	}
	if cfg.Dispatcher.RetryBackoff == "" {
		cfg.Dispatcher.RetryBackoff = "5m"
	}
	if cfg.Dispatcher.RateLimitPerHour == 0 {
		cfg.Dispatcher.RateLimitPerHour = 25
	}
	if cfg.Dispatcher.StatsInterval == "" {
		cfg.Dispatcher.StatsInterval = "1h"
	}
	if cfg.OAuth.StateTTL == "" {
		cfg.OAuth.StateTTL = "10m"
	}
	if cfg.OAuth.SweepInterval == "" {
		cfg.OAuth.SweepInterval = "10m"
	}
	if cfg.OAuth.DashboardURL == "" {
		cfg.OAuth.DashboardURL = "http://localhost:3000/dashboard/connections"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	return cfg, nil
}
