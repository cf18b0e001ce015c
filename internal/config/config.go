package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	AdminToken string `yaml:"admin_token"` // bearer token for operator endpoints
	JWTSecret  string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MercadoPagoConfig struct {
	AccessToken     string `yaml:"access_token"`
	WebhookSecret   string `yaml:"webhook_secret"`
	NotificationURL string `yaml:"notification_url"`
	SuccessURL      string `yaml:"success_url"`
	FailureURL      string `yaml:"failure_url"`
	PendingURL      string `yaml:"pending_url"`
	Sandbox         bool   `yaml:"sandbox"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type AppleConfig struct {
	SharedSecret   string `yaml:"shared_secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type PaymentConfig struct {
	MercadoPago MercadoPagoConfig `yaml:"mercadopago"`
	Apple       AppleConfig       `yaml:"apple"`
}

type NotificationsConfig struct {
	WebhookURL     string `yaml:"webhook_url"` // empty disables delivery
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SchedulerConfig struct {
	TrialCheckInterval     time.Duration `yaml:"trial_check_interval"`
	ReconcileInterval      time.Duration `yaml:"reconcile_interval"`
	ReconcileWindowDays    int           `yaml:"reconcile_window_days"`
	ReconcileGraceMinutes  int           `yaml:"reconcile_grace_minutes"`
	NotifyThresholdDaysMax int           `yaml:"notify_threshold_days_max"`
}

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Payment       PaymentConfig       `yaml:"payment"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Payment.MercadoPago.TimeoutSeconds <= 0 {
		cfg.Payment.MercadoPago.TimeoutSeconds = 10
	}
	if cfg.Payment.Apple.TimeoutSeconds <= 0 {
		cfg.Payment.Apple.TimeoutSeconds = 10
	}
	if cfg.Notifications.TimeoutSeconds <= 0 {
		cfg.Notifications.TimeoutSeconds = 5
	}
	if cfg.Scheduler.TrialCheckInterval <= 0 {
		cfg.Scheduler.TrialCheckInterval = time.Hour
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = 30 * time.Minute
	}
	if cfg.Scheduler.ReconcileWindowDays <= 0 {
		cfg.Scheduler.ReconcileWindowDays = 7
	}
	if cfg.Scheduler.ReconcileGraceMinutes <= 0 {
		cfg.Scheduler.ReconcileGraceMinutes = 15
	}
	if cfg.Scheduler.NotifyThresholdDaysMax <= 0 {
		cfg.Scheduler.NotifyThresholdDaysMax = 2
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.JWTSecret == "" {
		return nil, errors.New("server.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
