// Package policy decides whether a write tool call may proceed.
package policy

// Config is the write-mode configuration. It is treated as immutable once a
// Guard is built from it.
type Config struct {
	Enabled                   bool     `mapstructure:"enabled" json:"enabled"`
	AllowDelete               bool     `mapstructure:"allow_delete" json:"allow_delete"`
	AllowedTools              []string `mapstructure:"allowed_tools" json:"allowed_tools"`
	DisableToolAllowlist      bool     `mapstructure:"disable_tool_allowlist" json:"disable_tool_allowlist"`
	RequireSubredditAllowlist bool     `mapstructure:"require_subreddit_allowlist" json:"require_subreddit_allowlist"`
	AllowedSubreddits         []string `mapstructure:"allowed_subreddits" json:"allowed_subreddits"`
}

// Classifier tells the guard which tools mutate remote state.
type Classifier interface {
	IsWrite(name string) bool
	IsDelete(name string) bool
}

// Guard is a pure predicate over its config and one call's parameters.
type Guard struct {
	cfg        Config
	classifier Classifier
	verbose    bool
	tools      map[string]struct{}
	subreddits map[string]struct{}
}

// NewGuard builds a guard. Subreddit entries are normalized here, so callers may
// pass raw config values.
func NewGuard(cfg Config, classifier Classifier, verbose bool) *Guard {
	g := &Guard{
		cfg:        cfg,
		classifier: classifier,
		verbose:    verbose,
		tools:      make(map[string]struct{}, len(cfg.AllowedTools)),
		subreddits: make(map[string]struct{}, len(cfg.AllowedSubreddits)),
	}
	for _, name := range cfg.AllowedTools {
		g.tools[name] = struct{}{}
	}
	for _, name := range NormalizeSubreddits(cfg.AllowedSubreddits) {
		g.subreddits[name] = struct{}{}
	}
	return g
}

// EnsureToolAllowed returns a *DenialError when a write tool may not run. Read
// tools always pass. Checks run in a fixed order: write enabled, tool allowlist,
// delete opt-in, subreddit allowlist.
func (g *Guard) EnsureToolAllowed(tool string, params any) error {
	if !g.classifier.IsWrite(tool) {
		return nil
	}

	if !g.cfg.Enabled {
		return g.deny(ReasonWriteDisabled, tool, "")
	}

	if !g.cfg.DisableToolAllowlist {
		if _, ok := g.tools[tool]; !ok {
			return g.deny(ReasonToolNotAllowed, tool, "")
		}
	}

	if g.classifier.IsDelete(tool) && !g.cfg.AllowDelete {
		return g.deny(ReasonDeleteNotEnabled, tool, "")
	}

	if g.cfg.RequireSubredditAllowlist {
		subreddit := subredditOf(params)
		if subreddit == "" {
			return g.deny(ReasonSubredditRequired, tool, "")
		}
		if _, ok := g.subreddits[subreddit]; !ok {
			return g.deny(ReasonSubredditNotAllowed, tool, subreddit)
		}
	}

	return nil
}

func (g *Guard) deny(reason Reason, tool, subreddit string) error {
	return &DenialError{Reason: reason, Tool: tool, Subreddit: subreddit, Verbose: g.verbose}
}
