// Package config loads and validates gateway configuration.
// Sources, highest precedence first:
//  1. Environment variables (REDDITGW_ prefix, dots become underscores)
//  2. Config file (--config, else $XDG_CONFIG_HOME/redditgw/config.yaml)
//  3. Built-in defaults (SetDefaults)
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/SevenOfNine-ai/redditgw/internal/policy"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

const (
	// AppName is used for XDG directories and the binary name.
	AppName = "redditgw"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "REDDITGW"
)

// SetDefaults registers every key with its default. Keys without a default
// are invisible to AutomaticEnv, so all of them are listed here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("command", "")
	v.SetDefault("args", []string{})
	v.SetDefault("startup_timeout", "15s")
	v.SetDefault("verbose_errors", false)
	v.SetDefault("strict_startup", false)

	// Reddit defaults
	v.SetDefault("reddit.auth_mode", AuthModeAuto)
	v.SetDefault("reddit.safe_mode_read_only", SafeModeOff)
	v.SetDefault("reddit.safe_mode_write_enabled", SafeModeStrict)
	v.SetDefault("reddit.env.client_id", "REDDIT_CLIENT_ID")
	v.SetDefault("reddit.env.client_secret", "REDDIT_CLIENT_SECRET")
	v.SetDefault("reddit.env.username", "REDDIT_USERNAME")
	v.SetDefault("reddit.env.password", "REDDIT_PASSWORD")
	v.SetDefault("reddit.env.user_agent", "REDDIT_USER_AGENT")

	// Write policy defaults (read-only until explicitly enabled)
	v.SetDefault("write.enabled", false)
	v.SetDefault("write.allow_delete", false)
	v.SetDefault("write.allowed_tools", []string{})
	v.SetDefault("write.disable_tool_allowlist", false)
	v.SetDefault("write.require_subreddit_allowlist", true)
	v.SetDefault("write.allowed_subreddits", []string{})

	// Rate limit defaults
	v.SetDefault("rate_limit.read_per_minute", 60)
	v.SetDefault("rate_limit.write_per_minute", 6)
	v.SetDefault("rate_limit.min_write_interval", "5s")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", DefaultAuditPath())
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// cliOnlyKeys are bound to flags on the shared viper but are not configuration.
var cliOnlyKeys = []string{"verbose"}

// Load decodes, normalizes and validates the merged settings of v.
func Load(v *viper.Viper) (*Config, error) {
	settings := v.AllSettings()
	for _, key := range cliOnlyKeys {
		delete(settings, key)
	}
	return Decode(settings)
}

// Decode builds a Config from a settings map. Unknown keys are an error.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Command = strings.TrimSpace(c.Command)
	c.Reddit.AuthMode = strings.ToLower(strings.TrimSpace(c.Reddit.AuthMode))
	c.Reddit.SafeModeReadOnly = strings.ToLower(strings.TrimSpace(c.Reddit.SafeModeReadOnly))
	c.Reddit.SafeModeWriteEnabled = strings.ToLower(strings.TrimSpace(c.Reddit.SafeModeWriteEnabled))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	c.Write.AllowedTools = dedupe(c.Write.AllowedTools)
	c.Write.AllowedSubreddits = policy.NormalizeSubreddits(c.Write.AllowedSubreddits)
}

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks ranges and enums. Errors are fatal at startup.
func (c *Config) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.StartupTimeout < time.Second || c.StartupTimeout > 120*time.Second {
		addf("startup_timeout must be between 1s and 120s, got %s", c.StartupTimeout)
	}

	if !slices.Contains([]string{AuthModeAuto, AuthModeAuthenticated, AuthModeAnonymous}, c.Reddit.AuthMode) {
		addf("reddit.auth_mode must be one of auto, authenticated, anonymous, got %q", c.Reddit.AuthMode)
	}
	safeModes := []string{SafeModeOff, SafeModeStandard, SafeModeStrict}
	if !slices.Contains(safeModes, c.Reddit.SafeModeReadOnly) {
		addf("reddit.safe_mode_read_only must be one of off, standard, strict, got %q", c.Reddit.SafeModeReadOnly)
	}
	if !slices.Contains(safeModes, c.Reddit.SafeModeWriteEnabled) {
		addf("reddit.safe_mode_write_enabled must be one of off, standard, strict, got %q", c.Reddit.SafeModeWriteEnabled)
	}
	for key, name := range map[string]string{
		"client_id":     c.Reddit.Env.ClientID,
		"client_secret": c.Reddit.Env.ClientSecret,
		"username":      c.Reddit.Env.Username,
		"password":      c.Reddit.Env.Password,
		"user_agent":    c.Reddit.Env.UserAgent,
	} {
		if strings.TrimSpace(name) == "" {
			addf("reddit.env.%s must name an environment variable", key)
		}
	}

	catalog := tools.Default()
	for _, name := range c.Write.AllowedTools {
		if !catalog.IsWrite(name) {
			addf("write.allowed_tools: %q is not a write tool", name)
		}
	}

	if c.RateLimit.ReadPerMinute < 1 || c.RateLimit.ReadPerMinute > 10000 {
		addf("rate_limit.read_per_minute must be between 1 and 10000, got %d", c.RateLimit.ReadPerMinute)
	}
	if c.RateLimit.WritePerMinute < 1 || c.RateLimit.WritePerMinute > 1000 {
		addf("rate_limit.write_per_minute must be between 1 and 1000, got %d", c.RateLimit.WritePerMinute)
	}
	if c.RateLimit.MinWriteInterval < 0 || c.RateLimit.MinWriteInterval > 10*time.Minute {
		addf("rate_limit.min_write_interval must be between 0 and 10m, got %s", c.RateLimit.MinWriteInterval)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		addf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		addf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "warning", "error"}, c.Logging.Level) {
		addf("logging.level must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		addf("audit.path is required when audit.enabled is true")
	}

	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return &ValidationError{Problems: problems}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultAuditPath returns the XDG-compliant path to the audit database.
func DefaultAuditPath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + "-audit.db"
	}
	return filepath.Join(dataDir, "audit.db")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
