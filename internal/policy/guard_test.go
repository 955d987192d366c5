package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

func writeConfig() Config {
	return Config{
		Enabled:                   true,
		AllowedTools:              tools.Default().WriteNames(),
		RequireSubredditAllowlist: false,
	}
}

func requireDenied(t *testing.T, err error, reason Reason) *DenialError {
	t.Helper()
	require.Error(t, err)
	var denial *DenialError
	require.True(t, errors.As(err, &denial), "expected DenialError, got %T", err)
	require.Equal(t, reason, denial.Reason)
	return denial
}

func TestReadToolsAlwaysPass(t *testing.T) {
	guard := NewGuard(Config{}, tools.Default(), false)

	for _, name := range tools.Default().Names() {
		if tools.Default().IsWrite(name) {
			continue
		}
		require.NoError(t, guard.EnsureToolAllowed(name, nil), name)
	}
}

func TestWriteDisabled(t *testing.T) {
	guard := NewGuard(Config{Enabled: false}, tools.Default(), false)

	err := guard.EnsureToolAllowed("create_post", map[string]any{"subreddit": "golang"})
	requireDenied(t, err, ReasonWriteDisabled)
	assert.Equal(t, "Write operation blocked: write mode is disabled.", err.Error())
}

func TestToolAllowlist(t *testing.T) {
	cfg := writeConfig()
	cfg.AllowedTools = []string{"create_post"}
	guard := NewGuard(cfg, tools.Default(), true)

	require.NoError(t, guard.EnsureToolAllowed("create_post", nil))

	err := guard.EnsureToolAllowed("edit_post", nil)
	requireDenied(t, err, ReasonToolNotAllowed)
	assert.Contains(t, err.Error(), "write.allowed_tools")
}

func TestAllowlistFreeProfileSkipsToolCheck(t *testing.T) {
	cfg := writeConfig()
	cfg.AllowedTools = nil
	cfg.DisableToolAllowlist = true
	guard := NewGuard(cfg, tools.Default(), false)

	require.NoError(t, guard.EnsureToolAllowed("edit_comment", nil))
}

func TestDeleteRequiresOptIn(t *testing.T) {
	guard := NewGuard(writeConfig(), tools.Default(), true)

	err := guard.EnsureToolAllowed("delete_post", map[string]any{"thing_id": "t3_abc"})
	requireDenied(t, err, ReasonDeleteNotEnabled)
	assert.Contains(t, err.Error(), "allow_delete=true")

	terse := NewGuard(writeConfig(), tools.Default(), false)
	err = terse.EnsureToolAllowed("delete_comment", map[string]any{"thing_id": "t1_abc"})
	requireDenied(t, err, ReasonDeleteNotEnabled)
	assert.Contains(t, err.Error(), "explicit opt-in required")

	cfg := writeConfig()
	cfg.AllowDelete = true
	require.NoError(t, NewGuard(cfg, tools.Default(), false).EnsureToolAllowed("delete_post", nil))
}

func TestSubredditAllowlist(t *testing.T) {
	cfg := writeConfig()
	cfg.RequireSubredditAllowlist = true
	cfg.AllowedSubreddits = []string{"typescript"}
	guard := NewGuard(cfg, tools.Default(), false)

	err := guard.EnsureToolAllowed("create_post", map[string]any{"subreddit": "askreddit", "title": "t", "content": "c"})
	requireDenied(t, err, ReasonSubredditNotAllowed)
	assert.Contains(t, err.Error(), "not in allowlist")

	require.NoError(t, guard.EnsureToolAllowed("create_post", map[string]any{"subreddit": "r/typescript", "title": "t", "content": "c"}))
	require.NoError(t, guard.EnsureToolAllowed("create_post", Args{"subreddit": " R/TypeScript "}))
}

func TestSubredditRequiredForEveryWriteTool(t *testing.T) {
	cfg := writeConfig()
	cfg.AllowDelete = true
	cfg.RequireSubredditAllowlist = true
	cfg.AllowedSubreddits = []string{"golang"}
	guard := NewGuard(cfg, tools.Default(), false)

	for _, name := range tools.Default().WriteNames() {
		err := guard.EnsureToolAllowed(name, map[string]any{"thing_id": "t3_x"})
		requireDenied(t, err, ReasonSubredditRequired)
	}
}

func TestSubredditMustBeStringOnPlainObject(t *testing.T) {
	cfg := writeConfig()
	cfg.RequireSubredditAllowlist = true
	cfg.AllowedSubreddits = []string{"golang"}
	guard := NewGuard(cfg, tools.Default(), false)

	cases := map[string]any{
		"nil":          nil,
		"array":        []any{"golang"},
		"string":       "golang",
		"number field": map[string]any{"subreddit": 42},
		"blank":        map[string]any{"subreddit": "   "},
		"bare prefix":  map[string]any{"subreddit": "r/"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			requireDenied(t, guard.EnsureToolAllowed("create_post", params), ReasonSubredditRequired)
		})
	}
}

func TestCheckOrderIsFixed(t *testing.T) {
	cfg := Config{
		Enabled:                   false,
		RequireSubredditAllowlist: true,
	}
	guard := NewGuard(cfg, tools.Default(), false)
	requireDenied(t, guard.EnsureToolAllowed("delete_post", nil), ReasonWriteDisabled)

	cfg.Enabled = true
	guard = NewGuard(cfg, tools.Default(), false)
	requireDenied(t, guard.EnsureToolAllowed("delete_post", nil), ReasonToolNotAllowed)

	cfg.AllowedTools = []string{"delete_post"}
	guard = NewGuard(cfg, tools.Default(), false)
	requireDenied(t, guard.EnsureToolAllowed("delete_post", nil), ReasonDeleteNotEnabled)

	cfg.AllowDelete = true
	guard = NewGuard(cfg, tools.Default(), false)
	requireDenied(t, guard.EnsureToolAllowed("delete_post", nil), ReasonSubredditRequired)
}

func TestVerboseSubredditMessageNamesValue(t *testing.T) {
	cfg := writeConfig()
	cfg.RequireSubredditAllowlist = true
	guard := NewGuard(cfg, tools.Default(), true)

	err := guard.EnsureToolAllowed("reply_to_post", map[string]any{"subreddit": "r/Golang"})
	denial := requireDenied(t, err, ReasonSubredditNotAllowed)
	assert.Equal(t, "golang", denial.Subreddit)
	assert.Equal(t, "Write tool 'reply_to_post' blocked: subreddit 'golang' is not in write.allowed_subreddits allowlist.", err.Error())
}
