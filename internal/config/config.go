package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Version is the program version reported by the -v flag.
const Version = "0.0.1"

// Config is the explicit run configuration for one pipeline invocation.
// It is constructed once in main and passed by value into every
// component constructor; there are no ambient globals.
type Config struct {
	VideoURL   string
	AudioURL   string
	OutputPath string

	GenerateLogfile bool
	Quiet           bool

	// MaxConnections caps parallel range segments per download.
	MaxConnections int

	// WaitInterval and WaitRounds shape one countdown cycle of the
	// readiness wait; WaitTimeout bounds the wait overall.
	WaitInterval time.Duration
	WaitRounds   int
	WaitTimeout  time.Duration

	// CollisionRetries bounds workspace identifier regeneration.
	CollisionRetries int
}

// Defaults returns baseline configuration, with tunables overridable
// through UNIFYSYNC_* environment variables. A local .env file is
// honored when present.
func Defaults() Config {
	_ = godotenv.Load()

	return Config{
		MaxConnections:   getEnvAsInt("UNIFYSYNC_MAX_CONNECTIONS", 30),
		WaitInterval:     getEnvAsDuration("UNIFYSYNC_WAIT_INTERVAL", time.Second),
		WaitRounds:       getEnvAsInt("UNIFYSYNC_WAIT_ROUNDS", 8),
		WaitTimeout:      getEnvAsDuration("UNIFYSYNC_WAIT_TIMEOUT", 30*time.Minute),
		CollisionRetries: getEnvAsInt("UNIFYSYNC_COLLISION_RETRIES", 64),
	}
}

// Validate checks required inputs and normalizes both source URLs.
func (c *Config) Validate() error {
	c.VideoURL = normalizeURL(c.VideoURL)
	c.AudioURL = normalizeURL(c.AudioURL)

	if c.VideoURL == "" {
		return fmt.Errorf("video url is required")
	}
	if c.AudioURL == "" {
		return fmt.Errorf("audio url is required")
	}
	if c.MaxConnections < 1 {
		c.MaxConnections = 1
	}
	if c.WaitInterval <= 0 {
		c.WaitInterval = time.Second
	}
	if c.WaitRounds < 1 {
		c.WaitRounds = 1
	}
	if c.CollisionRetries < 1 {
		c.CollisionRetries = 1
	}
	return nil
}

// normalizeURL trims and percent-decodes a source URL. Malformed
// escapes keep the raw value.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
