package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
	"gopkg.in/yaml.v3"
)

// Config holds the entire node configuration, loaded from a YAML file.
type Config struct {
	// ListenAddress is the UDP address the DHT endpoint binds to.
	ListenAddress string `yaml:"listenAddress"`
	// AddressFamily selects the compact-contact width: "ipv4" or "ipv6".
	// The wire format does not self-describe family, so it is fixed per
	// deployment rather than guessed per record.
	AddressFamily string `yaml:"addressFamily"`
	// NodeID is an optional fixed node identifier in hex. Generated at
	// startup when empty.
	NodeID string `yaml:"nodeId"`

	MaxMessageBytes     int      `yaml:"maxMessageBytes"`
	QueryTimeoutSeconds int      `yaml:"queryTimeoutSeconds"`
	QueryRetries        int      `yaml:"queryRetries"`
	BootstrapNodes      []string `yaml:"bootstrapNodes"`

	ContactSetSize       int `yaml:"contactSetSize"`
	PeerStoreCapacity    int `yaml:"peerStoreCapacity"`
	PeersPerInfohash     int `yaml:"peersPerInfohash"`
	PeerTTLMinutes       int `yaml:"peerTtlMinutes"`
	TokenRotationSeconds int `yaml:"tokenRotationSeconds"`

	// Admin event feed. Disabled when AdminListenAddress is empty.
	AdminListenAddress string `yaml:"adminListenAddress"`
	AdminJWTSecret     string `yaml:"adminJwtSecret"`
}

// Family returns the configured compact-contact address family.
func (c *Config) Family() krpc.Family {
	if c.AddressFamily == "ipv6" {
		return krpc.FamilyIPv6
	}
	return krpc.FamilyIPv4
}

// QueryTimeout returns the per-attempt outbound query timeout.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// PeerTTL returns how long an announced peer stays listed.
func (c *Config) PeerTTL() time.Duration {
	return time.Duration(c.PeerTTLMinutes) * time.Minute
}

// TokenRotation returns the announce-token secret rotation interval.
func (c *Config) TokenRotation() time.Duration {
	return time.Duration(c.TokenRotationSeconds) * time.Second
}

func (c *Config) applyDefaults() {
	if c.AddressFamily == "" {
		c.AddressFamily = "ipv4"
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = krpc.DefaultMaxMessageBytes
	}
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 3
	}
	if c.QueryRetries == 0 {
		c.QueryRetries = 2
	}
	if c.ContactSetSize == 0 {
		c.ContactSetSize = 64
	}
	if c.PeerStoreCapacity == 0 {
		c.PeerStoreCapacity = 1024
	}
	if c.PeersPerInfohash == 0 {
		c.PeersPerInfohash = 128
	}
	if c.PeerTTLMinutes == 0 {
		c.PeerTTLMinutes = 30
	}
	if c.TokenRotationSeconds == 0 {
		c.TokenRotationSeconds = 300
	}
}

// validate performs comprehensive validation of the loaded configuration.
func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listenAddress must be set")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("listenAddress is not a host:port pair: %w", err)
	}
	if c.AddressFamily != "ipv4" && c.AddressFamily != "ipv6" {
		return fmt.Errorf("addressFamily must be %q or %q, got %q", "ipv4", "ipv6", c.AddressFamily)
	}
	if c.MaxMessageBytes < 0 {
		return fmt.Errorf("maxMessageBytes cannot be negative")
	}
	if c.QueryTimeoutSeconds < 0 || c.QueryRetries < 0 {
		return fmt.Errorf("query timeout and retries cannot be negative")
	}
	for _, addr := range c.BootstrapNodes {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("bootstrap node %q is not a host:port pair: %w", addr, err)
		}
	}
	if c.AdminListenAddress != "" && c.AdminJWTSecret == "" {
		return fmt.Errorf("adminJwtSecret must be set when adminListenAddress is configured")
	}
	return nil
}

// LoadConfig reads the configuration from the given file path, unmarshals
// it, applies defaults, and performs validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
