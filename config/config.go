// Package config loads the relay configuration from a YAML file with
// environment variable overrides and provides a typed, immutable Config
// injected into every component that needs it.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChatConfig describes one configured chat on a platform. Secret, when
// set, gates read and subscribe access. Aliases are alternative names a
// client may use in place of the platform-native chat ID.
type ChatConfig struct {
	ID      string   `yaml:"id"`
	Secret  string   `yaml:"secret,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// PlatformConfig holds the connection settings for one platform adapter
// plus the list of chats relayed from it. Only the fields the named
// adapter understands need to be set (protocol/host/port for qq,
// username/oauth for twitch).
type PlatformConfig struct {
	Protocol string       `yaml:"protocol,omitempty"`
	Host     string       `yaml:"host,omitempty"`
	Port     int          `yaml:"port,omitempty"`
	Username string       `yaml:"username,omitempty"`
	OAuth    string       `yaml:"oauth,omitempty"`
	Chats    []ChatConfig `yaml:"chats"`
}

// MongoConfig addresses the message store.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Config is the root configuration. It is read once at startup and must
// not be mutated afterwards.
type Config struct {
	Mongo     MongoConfig               `yaml:"mongo"`
	HTTPAddr  string                    `yaml:"http_addr"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

// Load reads the YAML config at path, applies environment overrides
// (MONGODB_URI, MONGODB_DATABASE, HTTP_ADDR) and defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.Mongo.Database = db
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":3000"
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "livelychat"
	}

	if cfg.Mongo.URI == "" {
		return nil, fmt.Errorf("mongo.uri is required (or set MONGODB_URI)")
	}
	for name := range cfg.Platforms {
		if name != strings.ToLower(name) {
			return nil, fmt.Errorf("platform name %q must be lower-case", name)
		}
	}

	return &cfg, nil
}

// FindChat resolves a chat on a platform by its ID or one of its
// aliases. The returned ChatConfig carries the canonical chat ID.
func (c *Config) FindChat(platform, chat string) (ChatConfig, bool) {
	p, ok := c.Platforms[platform]
	if !ok {
		return ChatConfig{}, false
	}
	for _, cc := range p.Chats {
		if cc.ID == chat {
			return cc, true
		}
		for _, alias := range cc.Aliases {
			if alias == chat {
				return cc, true
			}
		}
	}
	return ChatConfig{}, false
}

// ChatCount returns the number of configured chats across all platforms.
func (c *Config) ChatCount() int {
	n := 0
	for _, p := range c.Platforms {
		n += len(p.Chats)
	}
	return n
}
