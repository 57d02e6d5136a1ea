package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// envPrefix marks the environment variables this package reads, e.g.
// CHATRT_CHAT_URL overrides chat_url.
const envPrefix = "CHATRT_"

// Environment selects a deployment of the service backend.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
)

// Endpoints are the wire targets the runtime talks to.
type Endpoints struct {
	// ChatURL is the chat service websocket endpoint.
	ChatURL string
	// QuicTarget is the datagram relay as host:port.
	QuicTarget string
	// RPCTarget is the endpoint the device and profile clients call.
	RPCTarget string
}

// Config is the resolved runtime configuration.
type Config struct {
	// Environment picks the built-in endpoint set. Explicit endpoint
	// values override it field by field.
	Environment Environment
	Endpoints   Endpoints
	// UserAgent identifies this client on outbound connections.
	UserAgent string
	// Timeout bounds each request/response exchange.
	Timeout time.Duration
	// Workers sizes the operation pool. Zero picks a size from the
	// host.
	Workers int
	// LogLevel is the zap level name for the runtime's loggers.
	LogLevel string
}

// Built-in endpoints per environment. File and environment-variable
// overrides win field by field.
var environmentEndpoints = map[Environment]Endpoints{
	EnvProduction: {
		ChatURL:    "wss://chat.signal.org",
		QuicTarget: "grpcproxy.gluonhq.net:7443",
		RPCTarget:  "https://grpcproxy.gluonhq.net:443",
	},
	EnvStaging: {
		ChatURL:    "wss://chat.staging.signal.org",
		QuicTarget: "grpcproxy.staging.gluonhq.net:7443",
		RPCTarget:  "https://grpcproxy.staging.gluonhq.net:443",
	},
}

// Load resolves the configuration by layering, lowest to highest:
// built-in defaults, the YAML file at path (skipped when path is
// empty), and CHATRT_-prefixed environment variables. The result is
// validated before it is returned.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"environment": string(EnvProduction),
		"chat_url":    "",
		"quic_target": "",
		"rpc_target":  "",
		"user_agent":  "chat-runtime",
		"timeout":     "30s",
		"workers":     0,
		"log_level":   "info",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	envOpts := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envOpts, nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{
		Environment: Environment(k.String("environment")),
		Endpoints: Endpoints{
			ChatURL:    k.String("chat_url"),
			QuicTarget: k.String("quic_target"),
			RPCTarget:  k.String("rpc_target"),
		},
		UserAgent: k.String("user_agent"),
		Timeout:   k.Duration("timeout"),
		Workers:   k.Int("workers"),
		LogLevel:  k.String("log_level"),
	}

	if built, ok := environmentEndpoints[cfg.Environment]; ok {
		if cfg.Endpoints.ChatURL == "" {
			cfg.Endpoints.ChatURL = built.ChatURL
		}
		if cfg.Endpoints.QuicTarget == "" {
			cfg.Endpoints.QuicTarget = built.QuicTarget
		}
		if cfg.Endpoints.RPCTarget == "" {
			cfg.Endpoints.RPCTarget = built.RPCTarget
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot run
// with.
func (c *Config) Validate() error {
	if _, ok := environmentEndpoints[c.Environment]; !ok {
		return fmt.Errorf("config: unknown environment %q", c.Environment)
	}
	u, err := url.Parse(c.Endpoints.ChatURL)
	if err != nil {
		return fmt.Errorf("config: invalid chat_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config: chat_url must use ws or wss, got %q", c.Endpoints.ChatURL)
	}
	if c.Endpoints.QuicTarget == "" {
		return fmt.Errorf("config: quic_target is required")
	}
	if c.Endpoints.RPCTarget == "" {
		return fmt.Errorf("config: rpc_target is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %v", c.Timeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	return nil
}
