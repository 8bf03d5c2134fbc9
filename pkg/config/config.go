// Package config loads the Drover daemon configuration from a YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDataDir is the base directory for the daemon state
	DefaultDataDir = "/var/lib/drover"

	// DefaultListenAddr is the peer/admin API listen address
	DefaultListenAddr = ":8470"

	// DefaultMonitorInterval is how often the migration monitor scans
	DefaultMonitorInterval = 10 * time.Second

	// DefaultVolumeGroup holds volume data
	DefaultVolumeGroup = "drover-data"

	// DefaultMetadataVolumeGroup holds dm-clone hydration metadata
	DefaultMetadataVolumeGroup = "drover-meta"
)

// Config holds the daemon configuration
type Config struct {
	// Host is this node's bare host name. Defaults to os.Hostname.
	Host string `yaml:"host"`

	// Backend is the volume backend name. Combined with Host it forms
	// the host@backend identifier volumes are owned by.
	Backend string `yaml:"backend"`

	// VolumeGroup is the LVM volume group backing volume data.
	VolumeGroup string `yaml:"volume_group"`

	// MetadataVolumeGroup is the LVM volume group backing dm-clone
	// hydration metadata devices.
	MetadataVolumeGroup string `yaml:"metadata_volume_group"`

	// DataDir is the state directory (bbolt database).
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the peer/admin API listen address.
	ListenAddr string `yaml:"listen_addr"`

	// AdvertiseAddr is the address peers use to reach this daemon.
	// Defaults to Host plus the ListenAddr port.
	AdvertiseAddr string `yaml:"advertise_addr"`

	// RegistryAddr points at the daemon owning the metadata store
	// (host:port). Empty means this daemon owns it.
	RegistryAddr string `yaml:"registry_addr"`

	// TargetPortal is the iSCSI portal exports are published on.
	// Defaults to Host:3260.
	TargetPortal string `yaml:"target_portal"`

	// MonitorInterval is the migration monitor tick interval.
	MonitorInterval time.Duration `yaml:"monitor_interval"`

	// AvailabilityZone this host belongs to.
	AvailabilityZone string `yaml:"availability_zone"`

	// ClusterName this host belongs to.
	ClusterName string `yaml:"cluster_name"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json"`
}

// BackendHost returns the host@backend identifier for this daemon.
func (c *Config) BackendHost() string {
	return c.Host + "@" + c.Backend
}

// Load reads the configuration from path. A missing file is not an
// error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DROVER_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DROVER_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("DROVER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DROVER_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DROVER_REGISTRY_ADDR"); v != "" {
		c.RegistryAddr = v
	}
	if v := os.Getenv("DROVER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DROVER_MONITOR_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MonitorInterval = time.Duration(n) * time.Second
		}
	}
}

func (c *Config) applyDefaults() error {
	if c.Host == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to determine host name: %w", err)
		}
		c.Host = hostname
	}
	if c.Backend == "" {
		c.Backend = "dmclone"
	}
	if c.VolumeGroup == "" {
		c.VolumeGroup = DefaultVolumeGroup
	}
	if c.MetadataVolumeGroup == "" {
		c.MetadataVolumeGroup = DefaultMetadataVolumeGroup
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.AdvertiseAddr == "" {
		c.AdvertiseAddr = c.Host + portOf(c.ListenAddr)
	}
	if c.TargetPortal == "" {
		c.TargetPortal = c.Host + ":3260"
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// portOf extracts the ":port" suffix of a listen address.
func portOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i:]
		}
	}
	return ""
}
