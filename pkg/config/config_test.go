package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend != "dmclone" {
		t.Errorf("Backend = %q, want dmclone", cfg.Backend)
	}
	if cfg.MonitorInterval != DefaultMonitorInterval {
		t.Errorf("MonitorInterval = %v, want %v", cfg.MonitorInterval, DefaultMonitorInterval)
	}
	if cfg.VolumeGroup != DefaultVolumeGroup {
		t.Errorf("VolumeGroup = %q, want %q", cfg.VolumeGroup, DefaultVolumeGroup)
	}
	if cfg.Host == "" {
		t.Error("Host was not defaulted to the hostname")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drover.yaml")
	data := []byte(`
host: node1
backend: lvm-fast
volume_group: vg0
metadata_volume_group: vg0-meta
listen_addr: ":9000"
monitor_interval: 5s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "node1" {
		t.Errorf("Host = %q, want node1", cfg.Host)
	}
	if cfg.BackendHost() != "node1@lvm-fast" {
		t.Errorf("BackendHost() = %q, want node1@lvm-fast", cfg.BackendHost())
	}
	if cfg.MonitorInterval != 5*time.Second {
		t.Errorf("MonitorInterval = %v, want 5s", cfg.MonitorInterval)
	}
	if cfg.AdvertiseAddr != "node1:9000" {
		t.Errorf("AdvertiseAddr = %q, want node1:9000", cfg.AdvertiseAddr)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing file", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DROVER_HOST", "env-host")
	t.Setenv("DROVER_BACKEND", "env-backend")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendHost() != "env-host@env-backend" {
		t.Errorf("BackendHost() = %q, want env-host@env-backend", cfg.BackendHost())
	}
}
