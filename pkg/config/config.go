package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app" toml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways" toml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers" toml:"providers"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory" toml:"memory"`
	Reference ReferenceConfig           `json:"reference" yaml:"reference" toml:"reference"`
	Sandbox   SandboxConfig             `json:"sandbox" yaml:"sandbox" toml:"sandbox"`
}

type AppConfig struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Workspace  string `json:"workspace" yaml:"workspace" toml:"workspace"`
	Listen     string `json:"listen" yaml:"listen" toml:"listen"`
	Prompts    string `json:"prompts,omitempty" yaml:"prompts,omitempty" toml:"prompts,omitempty"`
	SessionTTL string `json:"session_ttl" yaml:"session_ttl" toml:"session_ttl"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token" toml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
}

type ProviderConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model     string `json:"model" yaml:"model" toml:"model"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Enabled   bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type" toml:"type"`
	Path string `json:"path" yaml:"path" toml:"path"`
}

type ReferenceConfig struct {
	Fetch  bool `json:"fetch" yaml:"fetch" toml:"fetch"`
	Search bool `json:"search" yaml:"search" toml:"search"`
}

type SandboxConfig struct {
	InstallCommand []string          `json:"install_command" yaml:"install_command" toml:"install_command"`
	DevCommand     []string          `json:"dev_command" yaml:"dev_command" toml:"dev_command"`
	Env            map[string]string `json:"env" yaml:"env" toml:"env"`
	Preview        bool              `json:"preview" yaml:"preview" toml:"preview"`
}

// DefaultProvider is used when a request names no provider.
const DefaultProvider = "gemini"

var envKeys = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:       "vibe",
			Workspace:  "workspace",
			Listen:     ":3000",
			SessionTTL: "2h",
		},
		Gateways: map[string]GatewayConfig{},
		Providers: map[string]ProviderConfig{
			"gemini":    {Model: "gemini-2.5-flash", Enabled: true},
			"anthropic": {Model: "claude-3-5-sonnet-20241022", Enabled: true},
		},
		Memory: MemoryConfig{Type: "sqlite", Path: "vibe.db"},
		Sandbox: SandboxConfig{
			InstallCommand: []string{"npm", "install"},
			DevCommand:     []string{"npm", "run", "dev"},
			Env:            map[string]string{"CI": "true"},
		},
	}
}

// LoadConfig reads .env (if any) and then path, decoding YAML for .yaml/.yml,
// TOML for .toml and JSON otherwise. A missing file yields the defaults; values left
// empty in the file are filled from the defaults and the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.App.Name == "" {
		c.App.Name = def.App.Name
	}
	if c.App.Workspace == "" {
		c.App.Workspace = def.App.Workspace
	}
	if c.App.Listen == "" {
		c.App.Listen = def.App.Listen
	}
	if c.App.SessionTTL == "" {
		c.App.SessionTTL = def.App.SessionTTL
	}
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, p := range def.Providers {
		cur, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = p
			continue
		}
		if cur.Model == "" {
			cur.Model = p.Model
			c.Providers[name] = cur
		}
	}
	if c.Memory.Path == "" {
		c.Memory = def.Memory
	}
	if len(c.Sandbox.InstallCommand) == 0 {
		c.Sandbox.InstallCommand = def.Sandbox.InstallCommand
	}
	if len(c.Sandbox.DevCommand) == 0 {
		c.Sandbox.DevCommand = def.Sandbox.DevCommand
	}
	if c.Sandbox.Env == nil {
		c.Sandbox.Env = def.Sandbox.Env
	}
}

// Provider returns the named provider config with its API key resolved:
// an explicit key wins over the config file, which wins over the
// environment.
func (c *Config) Provider(name, apiKey string) (ProviderConfig, bool) {
	if name == "" {
		name = DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok || !p.Enabled {
		return ProviderConfig{}, false
	}
	switch {
	case apiKey != "":
		p.APIKey = apiKey
	case p.APIKey == "":
		p.APIKey = os.Getenv(envKeys[name])
	}
	return p, true
}

// GetDefaultProvider returns the default provider if enabled, otherwise
// the first enabled one in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if p, ok := c.Providers[DefaultProvider]; ok && p.Enabled {
		return DefaultProvider, p
	}
	var names []string
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", ProviderConfig{}
	}
	minName := names[0]
	for _, n := range names[1:] {
		if n < minName {
			minName = n
		}
	}
	return minName, c.Providers[minName]
}

// Gateway returns a chat gateway config if enabled.
func (c *Config) Gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}

// TTL returns the idle session lifetime, or 0 when eviction is off.
func (c *Config) TTL() time.Duration {
	d, err := time.ParseDuration(c.App.SessionTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
