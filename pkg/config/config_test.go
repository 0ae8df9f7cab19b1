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
	if cfg.Bridge.QueueSize != 1000 {
		t.Errorf("QueueSize = %d, want 1000", cfg.Bridge.QueueSize)
	}
	if cfg.Bridge.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Bridge.BatchSize)
	}
	if cfg.Bridge.DrainInterval != time.Second {
		t.Errorf("DrainInterval = %v, want 1s", cfg.Bridge.DrainInterval)
	}
	if cfg.Bridge.MovementThreshold != 100 {
		t.Errorf("MovementThreshold = %v, want 100", cfg.Bridge.MovementThreshold)
	}
	if cfg.Database.PoolSize != 5 {
		t.Errorf("PoolSize = %d, want 5", cfg.Database.PoolSize)
	}
	if cfg.Database.Retention != 30*24*time.Hour {
		t.Errorf("Retention = %v, want 720h", cfg.Database.Retention)
	}
	if cfg.Broker.Enabled {
		t.Error("embedded broker should default to disabled")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: ":9999"
mesh:
  broker_url: "tcp://broker:1883"
  gateway_id: "!da639050"
bridge:
  batch_size: 3
  movement_threshold_m: 250
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Mesh.BrokerURL != "tcp://broker:1883" {
		t.Errorf("BrokerURL = %q", cfg.Mesh.BrokerURL)
	}
	if cfg.Bridge.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want file override", cfg.Bridge.BatchSize)
	}
	if cfg.Bridge.MovementThreshold != 250 {
		t.Errorf("MovementThreshold = %v, want 250", cfg.Bridge.MovementThreshold)
	}
	// Defaults still apply for unset keys.
	if cfg.Bridge.QueueSize != 1000 {
		t.Errorf("QueueSize = %d, want default 1000", cfg.Bridge.QueueSize)
	}
}
