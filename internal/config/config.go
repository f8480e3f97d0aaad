// Package config loads the broker's startup configuration from YAML,
// the way the teacher's cmd/goqtt/main.go reads config.yml, generalized
// to the listener, auth, and capability knobs a complete broker needs.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pyr33x/goqtt/internal/broker"
	"github.com/pyr33x/goqtt/internal/packet"
)

type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	TCP       TCPConfig       `yaml:"tcp"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Auth      AuthConfig      `yaml:"auth"`
	Broker    BrokerConfig    `yaml:"broker"`
	Log       LogConfig       `yaml:"log"`
}

type TCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
	Path    string `yaml:"path"`
}

type AuthConfig struct {
	// Mode is "allow-all" or "sqlite". Any other value falls back to
	// allow-all.
	Mode   string `yaml:"mode"`
	DBPath string `yaml:"db_path"`
}

type BrokerConfig struct {
	MaxQoS                  int  `yaml:"max_qos"`
	RetainAvailable         bool `yaml:"retain_available"`
	WildcardSubAvailable    bool `yaml:"wildcard_subscriptions_available"`
	SubscriptionIDsAvailable bool `yaml:"subscription_identifiers_available"`
	SharedSubAvailable      bool `yaml:"shared_subscriptions_available"`
	ReceiveMaximum          int  `yaml:"receive_maximum"`
	TopicAliasMaximum       int  `yaml:"topic_alias_maximum"`
	SessionExpiryMaxSeconds int  `yaml:"session_expiry_max_seconds"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Environment string `yaml:"environment"`
}

// Default returns the configuration used when no config.yml is present,
// mirroring the values in DefaultCapabilities().
func Default() *Config {
	return &Config{
		Name:    "goqtt",
		Version: "dev",
		TCP:     TCPConfig{Enabled: true, Port: "1883"},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Port:    "8083",
			Path:    "/mqtt",
		},
		Auth: AuthConfig{Mode: "allow-all"},
		Broker: BrokerConfig{
			MaxQoS:                   2,
			RetainAvailable:          true,
			WildcardSubAvailable:     true,
			SubscriptionIDsAvailable: true,
			SharedSubAvailable:       true,
			ReceiveMaximum:           65535,
			TopicAliasMaximum:        16,
			SessionExpiryMaxSeconds:  86400,
		},
		Log: LogConfig{Level: "info", Format: "json", Environment: "production"},
	}
}

// Load reads and parses a YAML config file at path. A missing file is
// not an error — Default() is returned instead, the way a zero-config
// broker should still start.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Capabilities translates the broker config block into broker.Capabilities.
func (c *Config) Capabilities() broker.Capabilities {
	return broker.Capabilities{
		MaxQoS:               clampQoS(c.Broker.MaxQoS),
		RetainAvailable:      c.Broker.RetainAvailable,
		WildcardSubAvailable: c.Broker.WildcardSubAvailable,
		SubIDsAvailable:      c.Broker.SubscriptionIDsAvailable,
		SharedSubAvailable:   c.Broker.SharedSubAvailable,
		ReceiveMaximum:       uint16(c.Broker.ReceiveMaximum),
		TopicAliasMaximum:    uint16(c.Broker.TopicAliasMaximum),
		SessionExpiryMax:     time.Duration(c.Broker.SessionExpiryMaxSeconds) * time.Second,
	}
}

func clampQoS(q int) packet.QoSLevel {
	if q < 0 {
		return packet.QoSAtMostOnce
	}
	if q > 2 {
		return packet.QoSExactlyOnce
	}
	return packet.QoSLevel(q)
}
