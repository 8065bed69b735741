// Package config loads host configuration from YAML or JSON files: model
// settings plus the ordered list of MCP servers to connect to.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ntk221/mcp-client-example/mcp"
)

// Server is one MCP server entry. Either Command (stdio) or URL
// (streamable-http) must be set.
type Server struct {
	Name      string            `json:"name" yaml:"name"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`
	Transport string            `json:"transport,omitempty" yaml:"transport,omitempty"`
}

// Config is the host configuration file.
type Config struct {
	Model         string   `json:"model,omitempty" yaml:"model,omitempty"`
	SystemPrompt  string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	MaxTokens     int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	MaxToolRounds int      `json:"maxToolRounds,omitempty" yaml:"maxToolRounds,omitempty"`
	CallTimeout   string   `json:"callTimeout,omitempty" yaml:"callTimeout,omitempty"`
	MaxBudgetUSD  float64  `json:"maxBudgetUSD,omitempty" yaml:"maxBudgetUSD,omitempty"`
	Servers       []Server `json:"servers" yaml:"servers"`
}

// Load reads and validates a config file. The format is chosen by
// extension: .yaml/.yml or .json.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q (want .yaml, .yml or .json)", ext)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects malformed server entries before anything connects.
func (c *Config) validate() error {
	seen := make(map[string]bool)
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server %d: name required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("server %q: %w", s.Name, mcp.ErrDuplicateServer)
		}
		seen[s.Name] = true
		if s.Command == "" && s.URL == "" {
			return fmt.Errorf("server %q: either command or url required", s.Name)
		}
	}
	if c.CallTimeout != "" {
		if _, err := time.ParseDuration(c.CallTimeout); err != nil {
			return fmt.Errorf("callTimeout: %w", err)
		}
	}
	return nil
}

// ServerConfigs converts the entries into mcp.ServerConfig specs,
// preserving order.
func (c *Config) ServerConfigs() []mcp.ServerConfig {
	specs := make([]mcp.ServerConfig, 0, len(c.Servers))
	for _, s := range c.Servers {
		specs = append(specs, mcp.ServerConfig{
			Name:      s.Name,
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			URL:       s.URL,
			Transport: mcp.TransportType(s.Transport),
		})
	}
	return specs
}

// CallTimeoutDuration returns the parsed call timeout, or 0 when unset.
func (c *Config) CallTimeoutDuration() time.Duration {
	if c.CallTimeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.CallTimeout)
	return d
}
