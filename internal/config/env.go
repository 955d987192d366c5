package config

import (
	"os"
	"strings"
)

// RedditEnv holds resolved credential values. Empty means absent.
type RedditEnv struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Environ snapshots the process environment. Only the command layer calls it;
// everything below takes the map explicitly.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		env[key] = value
	}
	return env
}

// ResolveRedditEnv reads credentials from env using the configured variable
// names. Values are trimmed; blank values are treated as absent.
func ResolveRedditEnv(cfg *Config, env map[string]string) RedditEnv {
	read := func(name string) string {
		return strings.TrimSpace(env[name])
	}
	return RedditEnv{
		ClientID:     read(cfg.Reddit.Env.ClientID),
		ClientSecret: read(cfg.Reddit.Env.ClientSecret),
		Username:     read(cfg.Reddit.Env.Username),
		Password:     read(cfg.Reddit.Env.Password),
		UserAgent:    read(cfg.Reddit.Env.UserAgent),
	}
}

// Vars returns the credentials that are present, keyed by the variable names
// the upstream server reads.
func (e RedditEnv) Vars() map[string]string {
	vars := make(map[string]string, 5)
	set := func(key, value string) {
		if value != "" {
			vars[key] = value
		}
	}
	set("REDDIT_CLIENT_ID", e.ClientID)
	set("REDDIT_CLIENT_SECRET", e.ClientSecret)
	set("REDDIT_USERNAME", e.Username)
	set("REDDIT_PASSWORD", e.Password)
	set("REDDIT_USER_AGENT", e.UserAgent)
	return vars
}

// CredentialReadiness lists what is missing for the configured mode. An empty
// result means write tools may run.
func CredentialReadiness(cfg *Config, env RedditEnv) []string {
	var problems []string

	if cfg.Reddit.AuthMode == AuthModeAuthenticated {
		if env.ClientID == "" {
			problems = append(problems, "Missing Reddit client ID for authenticated mode.")
		}
		if env.ClientSecret == "" {
			problems = append(problems, "Missing Reddit client secret for authenticated mode.")
		}
	}

	if cfg.Write.Enabled {
		if env.Username == "" {
			problems = append(problems, "Write mode enabled but Reddit username is missing.")
		}
		if env.Password == "" {
			problems = append(problems, "Write mode enabled but Reddit password is missing.")
		}
	}

	return problems
}
