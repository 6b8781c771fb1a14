package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	// Metric lookback
	LookbackMinutes int

	// Fleet default idle window (SSM parameter name)
	DefaultIdleParam string

	// Eligibility tag marking resources opted into idle management
	RequiredTagKey   string
	RequiredTagValue string

	// Idle thresholds
	CPUPctThreshold      float64
	IOPSThreshold        float64
	ConnectionsThreshold float64

	// Provider
	AWSRegion       string
	ProviderTimeout time.Duration

	// Metrics backend: cloudwatch (default) or prometheus
	MetricsBackend string
	PrometheusURL  string

	// Sweep
	SweepConcurrency int
	SweepInterval    time.Duration

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// HTTP
	ListenAddr string

	Verbose bool
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		LookbackMinutes:      getEnvInt("LOOKBACK_MINUTES", 20),
		DefaultIdleParam:     getEnv("DEFAULT_IDLE_PARAM", "/rds/idle_shutdown_minutes"),
		RequiredTagKey:       getEnv("REQUIRED_TAG_KEY", "IdleShutdown"),
		RequiredTagValue:     getEnv("REQUIRED_TAG_VALUE", "enabled"),
		CPUPctThreshold:      getEnvFloat("CPU_PCT_THRESHOLD", 1.0),
		IOPSThreshold:        getEnvFloat("IOPS_THRESHOLD", 0),
		ConnectionsThreshold: getEnvFloat("CONNECTIONS_THRESHOLD", 0),
		AWSRegion:            getEnv("AWS_REGION", ""),
		ProviderTimeout:      getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		MetricsBackend:       getEnv("METRICS_BACKEND", "cloudwatch"),
		PrometheusURL:        getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		SweepConcurrency:     getEnvInt("SWEEP_CONCURRENCY", 4),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		StorageEnabled:       getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		Verbose:              getEnvBool("VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.LookbackMinutes < 1 {
		return fmt.Errorf("lookback must be at least 1 minute")
	}
	if c.CPUPctThreshold < 0 || c.IOPSThreshold < 0 || c.ConnectionsThreshold < 0 {
		return fmt.Errorf("thresholds must be non-negative")
	}
	if c.RequiredTagKey == "" {
		return fmt.Errorf("eligibility tag key must not be empty")
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("sweep concurrency must be at least 1")
	}
	if c.MetricsBackend != "cloudwatch" && c.MetricsBackend != "prometheus" {
		return fmt.Errorf("unknown metrics backend: %s", c.MetricsBackend)
	}
	if c.MetricsBackend == "prometheus" && c.PrometheusURL == "" {
		return fmt.Errorf("PROMETHEUS_URL must be set when metrics backend is prometheus")
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	return nil
}
