package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server Server
	Token  Token
	Redis  Redis
	Kafka  Kafka
	Auth   Auth
}

type Server struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

type Token struct {
	// SigningSecret is the process-wide half of the HMAC key. It has no
	// default: startup fails if it is unset.
	SigningSecret string
	TTL           time.Duration
}

type Redis struct {
	Addr    string
	Enabled bool
}

type Kafka struct {
	Brokers []string
	Enabled bool
	Topics  Topics
}

type Topics struct {
	ScanRecorded string
	CheckedIn    string
}

type Auth struct {
	OIDCIssuer string
}

// DefaultTokenTTL matches the six month validity window of printed
// invitation QR codes.
const DefaultTokenTTL = 6 * 30 * 24 * time.Hour

func Load() *Config {
	return &Config{
		Server: Server{
			Addr:        getEnv("PORT", ":8086"),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		Token: Token{
			SigningSecret: os.Getenv("QR_SIGNING_SECRET"),
			TTL:           time.Duration(getEnvInt("QR_TOKEN_TTL_HOURS", int(DefaultTokenTTL/time.Hour))) * time.Hour,
		},
		Redis: Redis{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: Kafka{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: Topics{
				ScanRecorded: getEnv("KAFKA_TOPIC_SCAN_RECORDED", "checkin.scan.recorded"),
				CheckedIn:    getEnv("KAFKA_TOPIC_CHECKED_IN", "checkin.guest.checked-in"),
			},
		},
		Auth: Auth{
			OIDCIssuer: os.Getenv("OIDC_ISSUER"),
		},
	}
}

// Validate rejects configurations the service must not start with. A missing
// signing secret is a startup error, never a per-request one.
func (c *Config) Validate() error {
	if c.Token.SigningSecret == "" {
		return errors.New("QR_SIGNING_SECRET not set")
	}
	if c.Token.TTL <= 0 {
		return errors.New("QR_TOKEN_TTL_HOURS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
