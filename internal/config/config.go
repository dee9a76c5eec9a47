// Package config loads gateway settings from an optional YAML file and
// the process environment. Environment variables always win, so a
// container can override a checked-in config file without editing it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config carries every tunable for the gateway, the bridge and the agent.
type Config struct {
	MCPHost     string `env:"MCP_HOST" yaml:"mcp_host"`
	MCPPort     int    `env:"MCP_PORT" yaml:"mcp_port"`
	WebsiteHost string `env:"WEBSITE_HOST" yaml:"website_host"`
	WebsitePort int    `env:"WEBSITE_PORT" yaml:"website_port"`
	BridgeHost  string `env:"BRIDGE_HOST" yaml:"bridge_host"`
	BridgePort  int    `env:"BRIDGE_PORT" yaml:"bridge_port"`

	// MCPServerURL is where the bridge dials the tool port.
	MCPServerURL string `env:"MCP_SERVER_URL" yaml:"mcp_server_url"`
	// BridgeURL is where compute agents dial the bridge.
	BridgeURL string `env:"BRIDGE_URL" yaml:"bridge_url"`

	// RedisAddr enables the Redis snapshot store when non-empty;
	// otherwise portfolio snapshots stay in memory.
	RedisAddr     string `env:"REDIS_ADDR" yaml:"redis_addr"`
	RedisPassword string `env:"REDIS_PASSWORD" yaml:"redis_password"`
	RedisDB       int    `env:"REDIS_DB" yaml:"redis_db"`
	// SnapshotCacheTTL caches Redis snapshot reads in-process. Zero
	// disables the cache.
	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" yaml:"snapshot_cache_ttl"`

	LogLevel string `env:"LOG_LEVEL" yaml:"log_level"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY" yaml:"openai_api_key"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" yaml:"openai_base_url"`
	OpenAIModel   string `env:"OPENAI_MODEL" yaml:"openai_model"`
}

func defaults() Config {
	return Config{
		MCPHost:          "0.0.0.0",
		MCPPort:          8001,
		WebsiteHost:      "0.0.0.0",
		WebsitePort:      8002,
		BridgeHost:       "0.0.0.0",
		BridgePort:       8003,
		MCPServerURL:     "ws://localhost:8001/ws",
		BridgeURL:        "ws://localhost:8003/ws",
		SnapshotCacheTTL: 2 * time.Second,
		LogLevel:         "info",
		OpenAIModel:      "gpt-4o-mini",
	}
}

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path when one is given, then the environment. A
// non-empty path must exist; an empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("config file %s not found", path)
			}
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// ToolAddr is the listen address for the tool port.
func (c Config) ToolAddr() string {
	return fmt.Sprintf("%s:%d", c.MCPHost, c.MCPPort)
}

// ExecAddr is the listen address for the execution port.
func (c Config) ExecAddr() string {
	return fmt.Sprintf("%s:%d", c.WebsiteHost, c.WebsitePort)
}

// BridgeAddr is the listen address for the bridge.
func (c Config) BridgeAddr() string {
	return fmt.Sprintf("%s:%d", c.BridgeHost, c.BridgePort)
}
