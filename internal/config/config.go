package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	MQTTBrokerHost string `env:"MQTT_BROKER_HOST" envDefault:"mqtt"`
	MQTTBrokerPort int    `env:"MQTT_BROKER_PORT" envDefault:"1883"`
	MQTTQoS        int    `env:"MQTT_QOS" envDefault:"1"`
	MQTTClientID   string `env:"MQTT_CLIENT_ID"`

	SubTopicScan   string `env:"SUB_TOPIC_SCAN" envDefault:"rtls/anchor/+/scan"`
	SubTopicStatus string `env:"SUB_TOPIC_STATUS" envDefault:"rtls/anchor/+/status"`
	SubTopicEvents string `env:"SUB_TOPIC_EVENTS" envDefault:"rtls/events"`

	BatchMaxSize       int     `env:"BATCH_MAX_SIZE" envDefault:"200"`
	BatchMaxAgeS       float64 `env:"BATCH_MAX_AGE_S" envDefault:"1.0"`
	IDsRefreshS        int     `env:"IDS_REFRESH_S" envDefault:"60"`
	TSMinEpochMS       int64   `env:"TS_MIN_EPOCH_MS" envDefault:"1514764800000"`
	AllowFallbackNowTS bool    `env:"ALLOW_FALLBACK_NOW_TS" envDefault:"true"`

	WindowSeconds     int     `env:"WINDOW_SECONDS" envDefault:"7"`
	PollInterval      float64 `env:"POLL_INTERVAL" envDefault:"1.5"`
	WriteThrottleS    float64 `env:"WRITE_THROTTLE_S" envDefault:"5.0"`
	QueryWindowFactor float64 `env:"QUERY_WINDOW_FACTOR" envDefault:"2.0"`
	TxPowerDBMAt1M    float64 `env:"TX_POWER_DBM_AT_1M" envDefault:"-59"`
	PathLossExponent  float64 `env:"PATH_LOSS_EXPONENT" envDefault:"2.2"`
	WeightDistClampM  float64 `env:"WEIGHT_DIST_CLAMP_M" envDefault:"0.5"`
	TopK              int     `env:"TOP_K" envDefault:"3"`

	SecretKey          string `env:"SECRET_KEY"`
	TokenLifetimeHours int    `env:"TOKEN_LIFETIME_HOURS" envDefault:"8"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}

	return cfg, nil
}

// ClientID returns the configured MQTT client ID, or a generated one of the
// form rtls-<role>-<hostname>-<random> so multiple instances never collide.
func (c *Config) ClientID(role string) string {
	if c.MQTTClientID != "" {
		return c.MQTTClientID
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	b := make([]byte, 3)
	rand.Read(b)
	return fmt.Sprintf("rtls-%s-%s-%s", role, host, hex.EncodeToString(b))
}

// BrokerURL returns the tcp:// URL for the MQTT broker.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBrokerHost, c.MQTTBrokerPort)
}

func (c *Config) BatchMaxAge() time.Duration {
	return time.Duration(c.BatchMaxAgeS * float64(time.Second))
}

func (c *Config) IDsRefresh() time.Duration {
	return time.Duration(c.IDsRefreshS) * time.Second
}

func (c *Config) LocatorPollInterval() time.Duration {
	return time.Duration(c.PollInterval * float64(time.Second))
}

func (c *Config) WriteThrottle() time.Duration {
	return time.Duration(c.WriteThrottleS * float64(time.Second))
}

// QueryWindow returns the widened DB query window for the locator:
// at least WINDOW_SECONDS, scaled by QUERY_WINDOW_FACTOR.
func (c *Config) QueryWindow() time.Duration {
	secs := float64(c.WindowSeconds) * c.QueryWindowFactor
	if secs < float64(c.WindowSeconds) {
		secs = float64(c.WindowSeconds)
	}
	return time.Duration(secs * float64(time.Second))
}

func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeHours) * time.Hour
}
