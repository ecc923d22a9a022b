package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "data/procurement.db", cfg.Database.Path)
	assert.Equal(t, 1000.0, cfg.Approval.LevelTwoThreshold)
	assert.Equal(t, 10, cfg.Order.NumberMaxAttempts)
	assert.Equal(t, "Unknown Vendor", cfg.Order.DefaultVendor)
	assert.Equal(t, 0.25, cfg.Reconcile.VendorWeight)
	assert.Equal(t, 0.40, cfg.Reconcile.TotalWeight)
	assert.Equal(t, 0.30, cfg.Reconcile.ItemsWeight)
	assert.Equal(t, 0.05, cfg.Reconcile.DateWeight)
	assert.Equal(t, 0.8, cfg.Reconcile.ReviewThreshold)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 3000
approval:
  level_two_threshold: 5000
reconcile:
  vendor_weight: 0.1
  total_weight: 0.5
  items_weight: 0.3
  date_weight: 0.1
  review_threshold: 0.9
worker:
  max_attempts: 3
  initial_backoff: 1s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5000.0, cfg.Approval.LevelTwoThreshold)
	assert.Equal(t, 0.5, cfg.Reconcile.TotalWeight)
	assert.Equal(t, 0.9, cfg.Reconcile.ReviewThreshold)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Worker.InitialBackoff)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "data/test.db"},
			Approval: ApprovalConfig{LevelTwoThreshold: 1000},
			Order:    OrderConfig{NumberMaxAttempts: 10},
			Reconcile: ReconcileConfig{
				VendorWeight:    0.25,
				TotalWeight:     0.40,
				ItemsWeight:     0.30,
				DateWeight:      0.05,
				ReviewThreshold: 0.8,
			},
			Worker: WorkerConfig{MaxAttempts: 5, InitialBackoff: time.Second},
		}
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"missing database path", func(c *Config) { c.Database.Path = "" }},
		{"negative threshold", func(c *Config) { c.Approval.LevelTwoThreshold = -1 }},
		{"zero number attempts", func(c *Config) { c.Order.NumberMaxAttempts = 0 }},
		{"weights not summing to one", func(c *Config) { c.Reconcile.TotalWeight = 0.5 }},
		{"negative weight", func(c *Config) {
			c.Reconcile.VendorWeight = -0.05
			c.Reconcile.TotalWeight = 0.70
		}},
		{"review threshold above one", func(c *Config) { c.Reconcile.ReviewThreshold = 1.5 }},
		{"zero worker attempts", func(c *Config) { c.Worker.MaxAttempts = 0 }},
		{"zero backoff", func(c *Config) { c.Worker.InitialBackoff = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
