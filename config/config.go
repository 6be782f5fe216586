package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Clock        ClockConfig        `yaml:"clock"`
	Sweep        SweepConfig        `yaml:"sweep"`
	Notification NotificationConfig `yaml:"notification"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                  int     `yaml:"port"`
	RateLimitPerSec       float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst        int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds       int     `yaml:"cache_ttl_seconds"`
	MaxConcurrentRequests int64   `yaml:"max_concurrent_requests"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
	SeedUsers              bool   `yaml:"seed_users"`
}

// ClockConfig fixes the time zone every civil date is interpreted in.
type ClockConfig struct {
	Timezone string `yaml:"timezone"`
}

// SweepConfig lists the wall-clock times ("HH:MM") at which each scheduled
// job runs. Jobs only run on working days.
type SweepConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ExpireAt   []string `yaml:"expire_at"`
	CompleteAt []string `yaml:"complete_at"`
	RemindAt   []string `yaml:"remind_at"`
}

// NotificationConfig selects the delivery channels.
type NotificationConfig struct {
	AMQP AMQPConfig `yaml:"amqp"`
	Push PushConfig `yaml:"push"`
}

// AMQPConfig points at the broker the email worker consumes from.
type AMQPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	Queue      string `yaml:"queue"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// CacheTTL returns the response cache lifetime.
func (s ServerConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// Load reads the configuration from the given path. Values from the
// environment (and a .env file in the working directory, if any) override
// the file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to read .env file: %v", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"DATABASE_DSN":      &cfg.Database.DSN,
		"AMQP_URL":          &cfg.Notification.AMQP.URL,
		"VAPID_PUBLIC_KEY":  &cfg.Notification.Push.PublicKey,
		"VAPID_PRIVATE_KEY": &cfg.Notification.Push.PrivateKey,
		"TIMEZONE":          &cfg.Clock.Timezone,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	if cfg.Server.MaxConcurrentRequests <= 0 {
		cfg.Server.MaxConcurrentRequests = 64
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Clock.Timezone == "" {
		cfg.Clock.Timezone = "Europe/Paris"
	}

	if len(cfg.Sweep.ExpireAt) == 0 {
		cfg.Sweep.ExpireAt = []string{"11:00", "17:00"}
	}
	if len(cfg.Sweep.CompleteAt) == 0 {
		cfg.Sweep.CompleteAt = []string{"12:15", "18:30"}
	}
	if len(cfg.Sweep.RemindAt) == 0 {
		cfg.Sweep.RemindAt = []string{"17:00"}
	}

	amqp := &cfg.Notification.AMQP
	if amqp.Exchange == "" {
		amqp.Exchange = "parking.exchange"
	}
	if amqp.RoutingKey == "" {
		amqp.RoutingKey = "parking.email"
	}
	if amqp.Queue == "" {
		amqp.Queue = "parking.email.queue"
	}

	if cfg.Notification.Push.TTL <= 0 {
		cfg.Notification.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 100
	}
}
