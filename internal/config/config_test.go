package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.MQTTBrokerHost != "mqtt" || cfg.MQTTBrokerPort != 1883 {
			t.Errorf("broker = %s:%d, want mqtt:1883", cfg.MQTTBrokerHost, cfg.MQTTBrokerPort)
		}
		if cfg.SubTopicScan != "rtls/anchor/+/scan" {
			t.Errorf("SubTopicScan = %q", cfg.SubTopicScan)
		}
		if cfg.BatchMaxSize != 200 {
			t.Errorf("BatchMaxSize = %d, want 200", cfg.BatchMaxSize)
		}
		if cfg.BatchMaxAge() != time.Second {
			t.Errorf("BatchMaxAge = %v, want 1s", cfg.BatchMaxAge())
		}
		if cfg.TSMinEpochMS != 1514764800000 {
			t.Errorf("TSMinEpochMS = %d", cfg.TSMinEpochMS)
		}
		if !cfg.AllowFallbackNowTS {
			t.Error("AllowFallbackNowTS = false, want true")
		}
		if cfg.WindowSeconds != 7 || cfg.TopK != 3 {
			t.Errorf("WindowSeconds = %d, TopK = %d", cfg.WindowSeconds, cfg.TopK)
		}
		if cfg.TxPowerDBMAt1M != -59 || cfg.PathLossExponent != 2.2 {
			t.Errorf("path loss params = %v / %v", cfg.TxPowerDBMAt1M, cfg.PathLossExponent)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
	})

	t.Run("missing_database_url_fails", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		defer os.Setenv("DATABASE_URL", "postgres://localhost/test")

		_, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err == nil {
			t.Fatal("expected error when DATABASE_URL is unset")
		}
	})

	t.Run("query_window_scales", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got := cfg.QueryWindow(); got != 14*time.Second {
			t.Errorf("QueryWindow = %v, want 14s", got)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:     "nonexistent.env",
			HTTPAddr:    ":9090",
			LogLevel:    "debug",
			DatabaseURL: "postgres://override/db",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
	})
}

func TestClientID(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"DATABASE_URL": "postgres://localhost/test"})
	defer cleanup()

	t.Run("explicit_id_wins", func(t *testing.T) {
		cfg := &Config{MQTTClientID: "fixed-id"}
		if got := cfg.ClientID("ingestor"); got != "fixed-id" {
			t.Errorf("ClientID = %q, want fixed-id", got)
		}
	})

	t.Run("generated_id_has_role_prefix", func(t *testing.T) {
		cfg := &Config{}
		got := cfg.ClientID("ingestor")
		if !strings.HasPrefix(got, "rtls-ingestor-") {
			t.Errorf("ClientID = %q, want rtls-ingestor- prefix", got)
		}
		if got == cfg.ClientID("ingestor") {
			t.Error("expected distinct generated IDs")
		}
	})
}

func TestBrokerURL(t *testing.T) {
	cfg := &Config{MQTTBrokerHost: "broker.local", MQTTBrokerPort: 1884}
	if got := cfg.BrokerURL(); got != "tcp://broker.local:1884" {
		t.Errorf("BrokerURL = %q", got)
	}
}

// setEnvs sets the given env vars and returns a cleanup function restoring
// previous values.
func setEnvs(t *testing.T, vars map[string]string) func() {
	t.Helper()
	prev := make(map[string]*string, len(vars))
	for k, v := range vars {
		if old, ok := os.LookupEnv(k); ok {
			s := old
			prev[k] = &s
		} else {
			prev[k] = nil
		}
		os.Setenv(k, v)
	}
	return func() {
		for k, old := range prev {
			if old == nil {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, *old)
			}
		}
	}
}
