package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// fileConfig mirrors the YAML layout of an optional config file. Pointer
// fields distinguish "absent" from zero values so the file only overrides
// what it names.
type fileConfig struct {
	LookbackMinutes      *int     `yaml:"lookback_minutes"`
	DefaultIdleParam     *string  `yaml:"default_idle_param"`
	RequiredTagKey       *string  `yaml:"required_tag_key"`
	RequiredTagValue     *string  `yaml:"required_tag_value"`
	CPUPctThreshold      *float64 `yaml:"cpu_pct_threshold"`
	IOPSThreshold        *float64 `yaml:"iops_threshold"`
	ConnectionsThreshold *float64 `yaml:"connections_threshold"`
	AWSRegion            *string  `yaml:"aws_region"`
	ProviderTimeout      *string  `yaml:"provider_timeout"`
	MetricsBackend       *string  `yaml:"metrics_backend"`
	PrometheusURL        *string  `yaml:"prometheus_url"`
	SweepConcurrency     *int     `yaml:"sweep_concurrency"`
	SweepInterval        *string  `yaml:"sweep_interval"`
	StorageEnabled       *bool    `yaml:"storage_enabled"`
	DatabaseURL          *string  `yaml:"database_url"`
	ListenAddr           *string  `yaml:"listen_addr"`
}

// LoadFile overlays settings from a YAML file onto c. Environment values
// stay in effect for anything the file does not mention.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return err
	}

	if fc.LookbackMinutes != nil {
		c.LookbackMinutes = *fc.LookbackMinutes
	}
	if fc.DefaultIdleParam != nil {
		c.DefaultIdleParam = *fc.DefaultIdleParam
	}
	if fc.RequiredTagKey != nil {
		c.RequiredTagKey = *fc.RequiredTagKey
	}
	if fc.RequiredTagValue != nil {
		c.RequiredTagValue = *fc.RequiredTagValue
	}
	if fc.CPUPctThreshold != nil {
		c.CPUPctThreshold = *fc.CPUPctThreshold
	}
	if fc.IOPSThreshold != nil {
		c.IOPSThreshold = *fc.IOPSThreshold
	}
	if fc.ConnectionsThreshold != nil {
		c.ConnectionsThreshold = *fc.ConnectionsThreshold
	}
	if fc.AWSRegion != nil {
		c.AWSRegion = *fc.AWSRegion
	}
	if fc.ProviderTimeout != nil {
		if d, err := time.ParseDuration(*fc.ProviderTimeout); err == nil {
			c.ProviderTimeout = d
		}
	}
	if fc.MetricsBackend != nil {
		c.MetricsBackend = *fc.MetricsBackend
	}
	if fc.PrometheusURL != nil {
		c.PrometheusURL = *fc.PrometheusURL
	}
	if fc.SweepConcurrency != nil {
		c.SweepConcurrency = *fc.SweepConcurrency
	}
	if fc.SweepInterval != nil {
		if d, err := time.ParseDuration(*fc.SweepInterval); err == nil {
			c.SweepInterval = d
		}
	}
	if fc.StorageEnabled != nil {
		c.StorageEnabled = *fc.StorageEnabled
	}
	if fc.DatabaseURL != nil {
		c.DatabaseURL = *fc.DatabaseURL
	}
	if fc.ListenAddr != nil {
		c.ListenAddr = *fc.ListenAddr
	}

	return nil
}
