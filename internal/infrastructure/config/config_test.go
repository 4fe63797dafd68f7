package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidConfig(t *testing.T) {
	content := `
bus:
  gateway_host: "192.168.1.50"
  gateway_port: 6000
  local_udp_port: 6000
mqtt:
  host: "localhost"
  port: 1883
  prefix: "buspro"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8099
store:
  path: "/tmp/state.json"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus.GatewayHost != "192.168.1.50" {
		t.Errorf("Bus.GatewayHost = %q, want %q", cfg.Bus.GatewayHost, "192.168.1.50")
	}
	if cfg.MQTT.Prefix != "buspro" {
		t.Errorf("MQTT.Prefix = %q, want %q", cfg.MQTT.Prefix, "buspro")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	content := `
bus:
  gateway_port: 0
mqtt:
  prefix: "buspro"
store:
  path: "/tmp/state.json"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for bad gateway_port, got nil")
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		c := defaultConfig()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 9 }, wantErr: true},
		{name: "empty prefix", mutate: func(c *Config) { c.MQTT.Prefix = "" }, wantErr: true},
		{name: "invalid API port", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "token mode without token", mutate: func(c *Config) { c.Auth.Mode = AuthModeToken }, wantErr: true},
		{
			name: "token mode with token",
			mutate: func(c *Config) {
				c.Auth.Mode = AuthModeToken
				c.Auth.Token = "secret"
			},
			wantErr: false,
		},
		{name: "basic mode without credentials", mutate: func(c *Config) { c.Auth.Mode = AuthModeBasic }, wantErr: true},
		{name: "unknown auth mode", mutate: func(c *Config) { c.Auth.Mode = "bogus" }, wantErr: true},
		{name: "empty store path", mutate: func(c *Config) { c.Store.Path = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("BUSPROBRIDGE_GATEWAY_HOST", "10.0.0.5")
	t.Setenv("BUSPROBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("BUSPROBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("BUSPROBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("BUSPROBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("BUSPROBRIDGE_API_PORT", "9000")

	applyEnvOverrides(cfg)

	if cfg.Bus.GatewayHost != "10.0.0.5" {
		t.Errorf("Bus.GatewayHost = %q, want %q", cfg.Bus.GatewayHost, "10.0.0.5")
	}
	if cfg.MQTT.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Host = %q, want %q", cfg.MQTT.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Username != "testuser" {
		t.Errorf("MQTT.Username = %q, want %q", cfg.MQTT.Username, "testuser")
	}
	if cfg.MQTT.Password != "testpass" {
		t.Errorf("MQTT.Password = %q, want %q", cfg.MQTT.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bus.GatewayPort != 6000 {
		t.Errorf("defaultConfig Bus.GatewayPort = %d, want 6000", cfg.Bus.GatewayPort)
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Port = %d, want 1883", cfg.MQTT.Port)
	}
	if cfg.MQTT.Prefix != "buspro" {
		t.Errorf("defaultConfig MQTT.Prefix = %q, want %q", cfg.MQTT.Prefix, "buspro")
	}
	if cfg.API.Port != 8099 {
		t.Errorf("defaultConfig API.Port = %d, want 8099", cfg.API.Port)
	}
}

func TestTopicPrefixNormalizesTrailingSlash(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Prefix = "buspro/"
	if got := cfg.TopicPrefix(); got != "buspro/" {
		t.Errorf("TopicPrefix() = %q, want %q", got, "buspro/")
	}
	cfg.MQTT.Prefix = "buspro"
	if got := cfg.TopicPrefix(); got != "buspro/" {
		t.Errorf("TopicPrefix() = %q, want %q", got, "buspro/")
	}
}
