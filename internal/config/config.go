package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Coordinator holds all configuration for the game coordinator server.
type Coordinator struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// WebSocket origins allowed to connect. Empty list = same host
	// and localhost only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Per-client outbox capacity and write deadline
	SendQueueSize int           `yaml:"send_queue_size"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Redis (live game state)
	Redis RedisConfig `yaml:"redis"`

	// Audit writer
	AuditQueueSize int `yaml:"audit_queue_size"`
	AuditWorkers   int `yaml:"audit_workers"`
	ScoreRetrySecs int `yaml:"score_retry_secs"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds connection parameters for the live state store.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DefaultCoordinator returns Coordinator config with sensible defaults.
func DefaultCoordinator() Coordinator {
	return Coordinator{
		BindAddress:    "0.0.0.0",
		Port:           8080,
		SendQueueSize:  64,
		WriteTimeout:   5 * time.Second,
		AuditQueueSize: 1024,
		AuditWorkers:   2,
		ScoreRetrySecs: 5,
		LogLevel:       "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "quizgrid",
			Password: "quizgrid",
			DBName:   "quizgrid",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
			DB:   0,
		},
	}
}

// LoadCoordinator loads coordinator config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadCoordinator(path string) (Coordinator, error) {
	cfg := DefaultCoordinator()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
