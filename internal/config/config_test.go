package config

import (
	"os"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://api.example.com",
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryDelayBase: time.Second,
			ConfigTTL:      5 * time.Minute,
		},
		Epoch: EpochConfig{
			Interval:    20 * time.Minute,
			MaxParallel: 4,
		},
		Storage: StorageConfig{
			MaxIterations: 500,
			DBPath:        "./data/weightd.db",
		},
		Ops: OpsConfig{
			Enabled: true,
			Listen:  ":9100",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
api:
  base_url: "https://api.example.com"
  timeout: 15s
  max_retries: 2

epoch:
  interval: 10m

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  max_iterations: 200
  db_path: "./data/test.db"

logging:
  level: "info"
  format: "json"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Test Load
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify values
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("Unexpected base URL: %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("Unexpected timeout: %v", cfg.API.Timeout)
	}
	if cfg.Epoch.Interval != 10*time.Minute {
		t.Errorf("Unexpected epoch interval: %v", cfg.Epoch.Interval)
	}
	if cfg.Storage.MaxIterations != 200 {
		t.Errorf("Unexpected max iterations: %d", cfg.Storage.MaxIterations)
	}

	// Defaults fill what the file omits
	if cfg.API.ConfigTTL != 5*time.Minute {
		t.Errorf("Unexpected config TTL default: %v", cfg.API.ConfigTTL)
	}
	if cfg.Epoch.MaxParallel != 4 {
		t.Errorf("Unexpected max parallel default: %d", cfg.Epoch.MaxParallel)
	}
	if !cfg.Ops.Enabled || cfg.Ops.Listen != ":9100" {
		t.Errorf("Unexpected ops defaults: %+v", cfg.Ops)
	}

	// Test Validate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing base URL",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "epoch interval too short",
			mutate:  func(c *Config) { c.Epoch.Interval = 10 * time.Second },
			wantErr: true,
		},
		{
			name: "missing telegram token when enabled",
			mutate: func(c *Config) {
				c.Telegram.Enabled = true
				c.Telegram.ChatID = "42"
			},
			wantErr: true,
		},
		{
			name:    "zero iteration cap",
			mutate:  func(c *Config) { c.Storage.MaxIterations = 0 },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "ops enabled without listen address",
			mutate:  func(c *Config) { c.Ops.Listen = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
