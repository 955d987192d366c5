package config

import (
	"time"

	"github.com/SevenOfNine-ai/redditgw/internal/policy"
	"github.com/SevenOfNine-ai/redditgw/internal/ratelimit"
)

// Reddit auth modes passed to the upstream server as REDDIT_AUTH_MODE.
const (
	AuthModeAuto          = "auto"
	AuthModeAuthenticated = "authenticated"
	AuthModeAnonymous     = "anonymous"
)

// Upstream safe modes passed as REDDIT_SAFE_MODE.
const (
	SafeModeOff      = "off"
	SafeModeStandard = "standard"
	SafeModeStrict   = "strict"
)

// Config is the complete gateway configuration. It is built once at startup
// and not mutated afterwards.
type Config struct {
	// Command overrides the upstream MCP server executable. When empty the
	// installed reddit-mcp-server package is located and run with node.
	Command        string        `mapstructure:"command" json:"command,omitempty"`
	Args           []string      `mapstructure:"args" json:"args,omitempty"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" json:"startup_timeout"`
	VerboseErrors  bool          `mapstructure:"verbose_errors" json:"verbose_errors"`
	StrictStartup  bool          `mapstructure:"strict_startup" json:"strict_startup"`

	Reddit    RedditConfig     `mapstructure:"reddit" json:"reddit"`
	Write     policy.Config    `mapstructure:"write" json:"write"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit" json:"rate_limit"`

	Server  ServerConfig  `mapstructure:"server" json:"server"`
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`
	Audit   AuditConfig   `mapstructure:"audit" json:"audit"`
}

// RedditConfig controls how the upstream server authenticates.
type RedditConfig struct {
	AuthMode             string   `mapstructure:"auth_mode" json:"auth_mode"`
	SafeModeReadOnly     string   `mapstructure:"safe_mode_read_only" json:"safe_mode_read_only"`
	SafeModeWriteEnabled string   `mapstructure:"safe_mode_write_enabled" json:"safe_mode_write_enabled"`
	Env                  EnvNames `mapstructure:"env" json:"env"`
}

// EnvNames names the environment variables that hold Reddit credentials. The
// values themselves never live in config.
type EnvNames struct {
	ClientID     string `mapstructure:"client_id" json:"client_id"`
	ClientSecret string `mapstructure:"client_secret" json:"client_secret"`
	Username     string `mapstructure:"username" json:"username"`
	Password     string `mapstructure:"password" json:"password"`
	UserAgent    string `mapstructure:"user_agent" json:"user_agent"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" json:"host"`
	Port            int           `mapstructure:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// AdminToken enables POST /admin/signal when set.
	AdminToken string `mapstructure:"admin_token" json:"-"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" json:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	Port    int  `mapstructure:"port" json:"port"`
}

// AuditConfig controls the tool-call ledger.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

// SafeMode returns the upstream safe mode for the current write setting.
func (c *Config) SafeMode() string {
	if c.Write.Enabled {
		return c.Reddit.SafeModeWriteEnabled
	}
	return c.Reddit.SafeModeReadOnly
}
