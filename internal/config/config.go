package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration: YAML file first, then
// PORT/ROOM_*/DB_*/NATS_* environment variables override.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Room     RoomConfig     `yaml:"room"`
	Database DatabaseConfig `yaml:"database"`
	Nats     NatsConfig     `yaml:"nats"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type RoomConfig struct {
	Capacity      int `yaml:"capacity"`
	QuestionCount int `yaml:"question_count"`
	GraceSeconds  int `yaml:"grace_seconds"`
}

// GracePeriod returns the configured post-game grace window.
func (r RoomConfig) GracePeriod() time.Duration {
	return time.Duration(r.GraceSeconds) * time.Second
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type NatsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Room: RoomConfig{
			Capacity:      2,
			QuestionCount: 20,
			GraceSeconds:  60,
		},
		Database: DatabaseConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "duelmath",
			SSLMode:  "disable",
		},
		Nats: NatsConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			StreamName:    "MATCH_EVENTS",
			SubjectPrefix: "match.events",
		},
	}
}

// Load reads the YAML file at path (if present) over the defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)

	c.Room.Capacity = getEnvAsInt("ROOM_CAPACITY", c.Room.Capacity)
	c.Room.QuestionCount = getEnvAsInt("ROOM_QUESTION_COUNT", c.Room.QuestionCount)
	c.Room.GraceSeconds = getEnvAsInt("ROOM_GRACE_SECONDS", c.Room.GraceSeconds)

	c.Database.Enabled = getEnvAsBool("DB_ENABLED", c.Database.Enabled)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Nats.Enabled = getEnvAsBool("NATS_ENABLED", c.Nats.Enabled)
	c.Nats.URL = getEnv("NATS_URL", c.Nats.URL)
	c.Nats.StreamName = getEnv("NATS_STREAM", c.Nats.StreamName)
	c.Nats.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.Nats.SubjectPrefix)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
