package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// PolicyPassthrough forwards the caller's model id to the upstream unchanged
	PolicyPassthrough = "passthrough"
	// PolicyMapping translates model ids through the mapping table and rejects unknown ones
	PolicyMapping = "mapping"

	DefaultListen    = ":8000"
	DefaultGinMode   = "release"
	DefaultLogLevel  = "info"
	DefaultOwner     = "system"
	DefaultUpstream  = "https://ai-chatbot-starter.edgeone.app/api/ai"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36 Edg/140.0.0.0"

	envPrefix = "DEEPBRIDGE_"
)

// GatewayConfig is the complete runtime configuration of the gateway
type GatewayConfig struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Upstream UpstreamConfig `yaml:"upstream" toml:"upstream"`
	Models   ModelsConfig   `yaml:"models" toml:"models"`
	LogLevel string         `yaml:"log_level" toml:"log_level"`
}

// ServerConfig controls the inbound listeners
type ServerConfig struct {
	Listen        string `yaml:"listen" toml:"listen"`
	GinMode       string `yaml:"gin_mode" toml:"gin_mode"`
	MetricsListen string `yaml:"metrics_listen,omitempty" toml:"metrics_listen"`
}

// UpstreamConfig describes the single upstream endpoint and the client used to reach it
type UpstreamConfig struct {
	URL                 string   `yaml:"url" toml:"url"`
	UserAgent           string   `yaml:"user_agent" toml:"user_agent"`
	Timeout             Duration `yaml:"timeout,omitempty" toml:"timeout"`
	MaxIdleConns        int      `yaml:"max_idle_conns" toml:"max_idle_conns"`
	MaxIdleConnsPerHost int      `yaml:"max_idle_conns_per_host" toml:"max_idle_conns_per_host"`
	IdleConnTimeout     Duration `yaml:"idle_conn_timeout" toml:"idle_conn_timeout"`
}

// ModelsConfig holds the public catalog and the model policy
type ModelsConfig struct {
	Catalog []string       `yaml:"catalog" toml:"catalog"`
	OwnedBy string         `yaml:"owned_by" toml:"owned_by"`
	Policy  string         `yaml:"policy" toml:"policy"`
	Mapping []ModelMapping `yaml:"mapping" toml:"mapping"`
}

// ModelMapping maps one public model id to its upstream id
type ModelMapping struct {
	Model    string `yaml:"model" toml:"model"`
	Upstream string `yaml:"upstream" toml:"upstream"`
}

// Duration is a time.Duration written as "30s" in config files
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns the built-in configuration
func Default() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Listen:  DefaultListen,
			GinMode: DefaultGinMode,
		},
		Upstream: UpstreamConfig{
			URL:                 DefaultUpstream,
			UserAgent:           DefaultUserAgent,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     Duration(90 * time.Second),
		},
		Models: ModelsConfig{
			Catalog: []string{"deepseek-chat", "deepseek-reasoner"},
			OwnedBy: DefaultOwner,
			Policy:  PolicyPassthrough,
			Mapping: []ModelMapping{
				{Model: "deepseek-reasoner", Upstream: "DeepSeek-R1"},
				{Model: "deepseek-chat", Upstream: "DeepSeek-V3"},
			},
		},
		LogLevel: DefaultLogLevel,
	}
}

// LoadConfig reads a YAML or TOML file on top of the defaults.
// The format is picked from the file extension; anything but .toml is parsed as YAML.
func LoadConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		// go-toml appends array tables to a non-empty slice, so lists the file
		// sets must start empty.
		var probe GatewayConfig
		if err := toml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if probe.Models.Catalog != nil {
			cfg.Models.Catalog = nil
		}
		if probe.Models.Mapping != nil {
			cfg.Models.Mapping = nil
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ApplyEnv overlays DEEPBRIDGE_* environment variables
func (c *GatewayConfig) ApplyEnv() error {
	str := map[string]*string{
		"LISTEN":         &c.Server.Listen,
		"GIN_MODE":       &c.Server.GinMode,
		"METRICS_LISTEN": &c.Server.MetricsListen,
		"UPSTREAM_URL":   &c.Upstream.URL,
		"USER_AGENT":     &c.Upstream.UserAgent,
		"MODEL_POLICY":   &c.Models.Policy,
		"LOG_LEVEL":      &c.LogLevel,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	c.Models.Policy = NormalizePolicy(c.Models.Policy)

	if v, ok := os.LookupEnv(envPrefix + "UPSTREAM_TIMEOUT"); ok {
		if err := c.Upstream.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%sUPSTREAM_TIMEOUT: %w", envPrefix, err)
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "MODEL_CATALOG"); ok {
		c.Models.Catalog = splitList(v)
	}
	return nil
}

// Validate reports the first configuration problem found
func (c *GatewayConfig) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	switch c.Server.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("server.gin_mode must be debug, release or test, got %q", c.Server.GinMode)
	}

	u, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return fmt.Errorf("upstream.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("upstream.url must be an absolute http(s) URL, got %q", c.Upstream.URL)
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}

	if len(c.Models.Catalog) == 0 {
		return fmt.Errorf("models.catalog must list at least one model")
	}

	switch c.Models.Policy {
	case PolicyPassthrough:
	case PolicyMapping:
		if len(c.Models.Mapping) == 0 {
			return fmt.Errorf("models.mapping must not be empty with policy %q", PolicyMapping)
		}
		seen := make(map[string]bool, len(c.Models.Mapping))
		for i, m := range c.Models.Mapping {
			if m.Model == "" || m.Upstream == "" {
				return fmt.Errorf("models.mapping[%d]: model and upstream are required", i)
			}
			if seen[m.Model] {
				return fmt.Errorf("models.mapping[%d]: duplicate model %q", i, m.Model)
			}
			seen[m.Model] = true
		}
	default:
		return fmt.Errorf("models.policy must be %q or %q, got %q", PolicyPassthrough, PolicyMapping, c.Models.Policy)
	}
	return nil
}

// NormalizePolicy lowercases and trims a model policy name
func NormalizePolicy(policy string) string {
	return strings.ToLower(strings.TrimSpace(policy))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
