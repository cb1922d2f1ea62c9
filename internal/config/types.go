// Package config reads and writes the .beacon.yaml configuration file.
package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .beacon.yaml configuration file.
type Config struct {
	Version int             `yaml:"version" mapstructure:"version"`
	Hosts   map[string]Host `yaml:"hosts" mapstructure:"hosts"`
	Default string          `yaml:"default" mapstructure:"default"`

	// ChannelLimit caps concurrently open command channels per connection.
	ChannelLimit int `yaml:"channel_limit" mapstructure:"channel_limit"`

	// PollInterval is how often the monitor dashboard refreshes.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// Term is the terminal type requested for interactive shells.
	Term string `yaml:"term" mapstructure:"term"`

	// StrictHostKeys toggles known_hosts verification.
	StrictHostKeys bool `yaml:"strict_host_keys" mapstructure:"strict_host_keys"`
}

// Host defines a remote machine and its connection settings.
type Host struct {
	// Address can be a hostname, user@hostname, or SSH config alias.
	Address string `yaml:"address" mapstructure:"address"`

	// User overrides the user from Address or ~/.ssh/config.
	User string `yaml:"user" mapstructure:"user"`

	// Port overrides the SSH port (default 22).
	Port int `yaml:"port" mapstructure:"port"`

	// Key is an explicit identity file for this host.
	Key string `yaml:"key" mapstructure:"key"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:        CurrentConfigVersion,
		Hosts:          make(map[string]Host),
		ChannelLimit:   6,
		PollInterval:   2 * time.Second,
		Term:           "xterm-256color",
		StrictHostKeys: true,
	}
}

// Resolve returns the Host entry for name, falling back to treating name as
// a literal address when it isn't defined in the config. An empty name
// resolves the configured default host.
func (c *Config) Resolve(name string) (Host, bool) {
	if name == "" {
		name = c.Default
	}
	if name == "" {
		return Host{}, false
	}
	if host, ok := c.Hosts[name]; ok {
		if host.Address == "" {
			host.Address = name
		}
		return host, true
	}
	return Host{Address: name}, true
}
