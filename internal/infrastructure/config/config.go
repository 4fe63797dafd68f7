package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the bridge. All
// configuration is loaded from YAML and can be overridden by environment
// variables.
type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Auth      AuthConfig      `yaml:"auth"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Debug     bool            `yaml:"debug"`
	// DebugTelegram enables per-frame decode logging on internal/bus; left
	// off by default since at full gateway traffic it is very verbose.
	DebugTelegram bool `yaml:"debug_telegram"`
}

// BusConfig is the UDP field-bus gateway connection.
type BusConfig struct {
	GatewayHost  string `yaml:"gateway_host"`
	GatewayPort  int    `yaml:"gateway_port"`
	LocalUDPPort int    `yaml:"local_udp_port"`
}

// MQTTConfig is the MQTT broker connection and topic prefix.
type MQTTConfig struct {
	Host      string              `yaml:"host"`
	Port      int                 `yaml:"port"`
	Username  string              `yaml:"username"`
	Password  string              `yaml:"password"`
	Prefix    string              `yaml:"prefix"`
	TLS       bool                `yaml:"tls"`
	QoS       int                 `yaml:"qos"`
	ClientID  string              `yaml:"client_id"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig controls the paho client's auto-reconnect backoff.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// AuthMode selects the admin HTTP/WebSocket auth boundary (spec.md §4.7).
type AuthMode string

const (
	AuthModeNone  AuthMode = "none"
	AuthModeToken AuthMode = "token"
	AuthModeBasic AuthMode = "basic"
)

// AuthConfig configures the admin auth boundary. Ingress is a separate,
// always-bypassed trusted channel used by the home-automation platform's
// own reverse proxy; it is not an AuthMode.
type AuthConfig struct {
	Mode     AuthMode `yaml:"mode"`
	Token    string   `yaml:"token"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	// UserAuth configures the separate end-user surface independently of
	// the admin surface's Mode.
	UserAuth AuthMode `yaml:"user_auth"`
	// Ingress, when true, marks requests on this boundary as coming from
	// the home-automation platform's trusted reverse-proxy channel, which
	// bypasses admin auth regardless of Mode.
	Ingress bool `yaml:"ingress"`
}

// APIConfig is the HTTP/WebSocket server.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig holds HTTP server timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig configures cross-origin access to the HTTP admin API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig is the real-time admin/end-user surface (C9).
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// StoreConfig is the JSON state document (C8).
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BUSPROBRIDGE_SECTION_KEY.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			GatewayHost:  "255.255.255.255",
			GatewayPort:  6000,
			LocalUDPPort: 6000,
		},
		MQTT: MQTTConfig{
			Host:     "localhost",
			Port:     1883,
			Prefix:   "buspro",
			QoS:      1,
			ClientID: "busprobridge",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Auth: AuthConfig{
			Mode:     AuthModeNone,
			UserAuth: AuthModeNone,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Store: StoreConfig{
			Path: "./data/state.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern
// BUSPROBRIDGE_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUSPROBRIDGE_GATEWAY_HOST"); v != "" {
		cfg.Bus.GatewayHost = v
	}
	if v := os.Getenv("BUSPROBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("BUSPROBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("BUSPROBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("BUSPROBRIDGE_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("BUSPROBRIDGE_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("BUSPROBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("BUSPROBRIDGE_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Bus.GatewayPort < 1 || c.Bus.GatewayPort > 65535 {
		errs = append(errs, "bus.gateway_port must be between 1 and 65535")
	}
	if c.Bus.LocalUDPPort < 1 || c.Bus.LocalUDPPort > 65535 {
		errs = append(errs, "bus.local_udp_port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Prefix == "" {
		errs = append(errs, "mqtt.prefix is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.Auth.Mode {
	case AuthModeNone, AuthModeToken, AuthModeBasic:
	default:
		errs = append(errs, fmt.Sprintf("auth.mode must be none, token, or basic, got %q", c.Auth.Mode))
	}
	if c.Auth.Mode == AuthModeToken && c.Auth.Token == "" {
		errs = append(errs, "auth.token is required when auth.mode is token")
	}
	if c.Auth.Mode == AuthModeBasic && (c.Auth.Username == "" || c.Auth.Password == "") {
		errs = append(errs, "auth.username and auth.password are required when auth.mode is basic")
	}

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TopicPrefix returns the configured MQTT topic prefix with exactly one
// trailing slash, regardless of how it was written in YAML.
func (c *Config) TopicPrefix() string {
	return strings.TrimRight(c.MQTT.Prefix, "/") + "/"
}
