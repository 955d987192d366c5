package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SevenOfNine-ai/redditgw/internal/bridge"
	"github.com/SevenOfNine-ai/redditgw/internal/config"
	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/policy"
	"github.com/SevenOfNine-ai/redditgw/internal/ratelimit"
)

type fakeCaller struct {
	mu      sync.Mutex
	calls   []string
	params  []any
	result  *mcp.CallToolResult
	err     error
	tools   []mcp.Tool
	listErr error
	status  bridge.Status
	closed  int
	lists   int
}

func (f *fakeCaller) CallTool(_ context.Context, name string, params any) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "ok:" + name}}}, nil
}

// ListTools connects the fake on success, the way the bridge dials on use.
func (f *fakeCaller) ListTools(context.Context) ([]mcp.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.status.Connected = true
	return f.tools, nil
}

func (f *fakeCaller) Status() bridge.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeCaller) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.status.Closed = true
	return nil
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []CallRecord
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() *config.Config {
	return &config.Config{
		Reddit: config.RedditConfig{AuthMode: config.AuthModeAuto},
		Write: policy.Config{
			Enabled:                   true,
			AllowedTools:              []string{"create_post", "reply_to_post", "delete_post"},
			RequireSubredditAllowlist: true,
			AllowedSubreddits:         []string{"typescript"},
		},
		RateLimit: ratelimit.Config{
			ReadPerMinute:    60,
			WritePerMinute:   6,
			MinWriteInterval: 5 * time.Second,
		},
	}
}

func writeCreds() config.RedditEnv {
	return config.RedditEnv{Username: "bot", Password: "secret"}
}

func newTestGateway(t *testing.T, cfg *config.Config, creds config.RedditEnv) (*Gateway, *fakeCaller, *fakeRecorder, *fakeClock) {
	t.Helper()
	caller := &fakeCaller{status: bridge.Status{Connected: true, Command: "node", Args: []string{"dist/bin.js"}}}
	recorder := &fakeRecorder{}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	gw := New(cfg, creds, Deps{Bridge: caller, Recorder: recorder, Clock: clock.Now})
	return gw, caller, recorder, clock
}

func TestExecuteTool(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadToolReachesBridge", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), config.RedditEnv{})

		result := gw.ExecuteTool(ctx, "get_top_posts", map[string]any{"subreddit": "golang"})

		assert.False(t, result.IsError)
		assert.Equal(t, "ok:get_top_posts", result.ContentText)
		assert.Equal(t, OutcomeOK, result.Outcome)
		assert.Equal(t, "get_top_posts", result.Metadata.Tool)
		assert.Equal(t, "read", result.Metadata.Mode)
		assert.Equal(t, 1, caller.callCount())
	})

	t.Run("ReadToolIgnoresMissingCredentials", func(t *testing.T) {
		cfg := testConfig()
		cfg.Reddit.AuthMode = config.AuthModeAuthenticated
		gw, caller, _, _ := newTestGateway(t, cfg, config.RedditEnv{})

		result := gw.ExecuteTool(ctx, "search_reddit", map[string]any{"query": "go"})

		assert.False(t, result.IsError)
		assert.Equal(t, 1, caller.callCount())
	})

	t.Run("WriteToolAllowed", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), writeCreds())

		result := gw.ExecuteTool(ctx, "create_post", map[string]any{"subreddit": "r/TypeScript", "title": "hi"})

		assert.False(t, result.IsError)
		assert.Equal(t, "write", result.Metadata.Mode)
		assert.Equal(t, 1, caller.callCount())
	})

	t.Run("WriteBlockedByCredentials", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), config.RedditEnv{Username: "bot"})

		result := gw.ExecuteTool(ctx, "create_post", map[string]any{"subreddit": "typescript"})

		assert.True(t, result.IsError)
		assert.Equal(t, OutcomeCredentials, result.Outcome)
		assert.Equal(t, "Error: Write blocked: Write mode enabled but Reddit password is missing.", result.ContentText)
		assert.Equal(t, "Write blocked: Write mode enabled but Reddit password is missing.", result.Metadata.Error)
		assert.Equal(t, 0, caller.callCount())
	})

	t.Run("WriteDeniedByGuard", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), writeCreds())

		result := gw.ExecuteTool(ctx, "create_post", map[string]any{"subreddit": "askreddit"})

		assert.True(t, result.IsError)
		assert.Equal(t, OutcomeDenied, result.Outcome)
		assert.Contains(t, result.ContentText, "not in allowlist")
		assert.Equal(t, "write", result.Metadata.Mode)
		assert.Equal(t, 0, caller.callCount())
	})

	t.Run("DeleteRequiresOptIn", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), writeCreds())

		result := gw.ExecuteTool(ctx, "delete_post", map[string]any{"thing_id": "t3_abc"})

		assert.True(t, result.IsError)
		assert.Equal(t, OutcomeDenied, result.Outcome)
		assert.Contains(t, result.ContentText, "explicit opt-in")
		assert.Equal(t, 0, caller.callCount())
	})

	t.Run("WriteRateLimited", func(t *testing.T) {
		gw, caller, _, clock := newTestGateway(t, testConfig(), writeCreds())
		params := map[string]any{"subreddit": "typescript"}

		first := gw.ExecuteTool(ctx, "create_post", params)
		require.False(t, first.IsError)

		clock.Advance(2 * time.Second)
		second := gw.ExecuteTool(ctx, "reply_to_post", params)

		assert.True(t, second.IsError)
		assert.Equal(t, OutcomeRateLimited, second.Outcome)
		assert.Equal(t, "Error: Rate limit: write tool 'reply_to_post' blocked. Retry in 3000ms.", second.ContentText)
		assert.Equal(t, int64(3000), second.Metadata.RetryAfterMs)
		assert.Equal(t, 1, caller.callCount())

		clock.Advance(3 * time.Second)
		third := gw.ExecuteTool(ctx, "reply_to_post", params)
		assert.False(t, third.IsError)
		assert.Equal(t, 2, caller.callCount())
	})

	t.Run("DeniedWriteDoesNotConsumeRate", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), writeCreds())

		denied := gw.ExecuteTool(ctx, "create_post", map[string]any{"subreddit": "askreddit"})
		require.Equal(t, OutcomeDenied, denied.Outcome)

		allowed := gw.ExecuteTool(ctx, "create_post", map[string]any{"subreddit": "typescript"})
		assert.False(t, allowed.IsError)
		assert.Equal(t, 1, caller.callCount())
	})

	t.Run("ReadRateLimited", func(t *testing.T) {
		cfg := testConfig()
		cfg.RateLimit.ReadPerMinute = 2
		gw, caller, _, _ := newTestGateway(t, cfg, config.RedditEnv{})

		gw.ExecuteTool(ctx, "get_top_posts", nil)
		gw.ExecuteTool(ctx, "get_top_posts", nil)
		result := gw.ExecuteTool(ctx, "get_top_posts", nil)

		assert.True(t, result.IsError)
		assert.Equal(t, OutcomeRateLimited, result.Outcome)
		assert.Contains(t, result.ContentText, "Rate limit: read tool 'get_top_posts' blocked.")
		assert.Equal(t, 2, caller.callCount())
	})

	t.Run("UnknownToolRejected", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), writeCreds())

		result := gw.ExecuteTool(ctx, "ban_user", map[string]any{})

		assert.True(t, result.IsError)
		assert.Equal(t, OutcomeUnknownTool, result.Outcome)
		assert.Equal(t, "Error: Unknown tool 'ban_user'.", result.ContentText)
		assert.Empty(t, result.Metadata.Mode)
		assert.Equal(t, 0, caller.callCount())
	})

	t.Run("UpstreamErrorFlagPropagates", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), config.RedditEnv{})
		caller.result = &mcp.CallToolResult{
			Content: []mcp.Content{{Type: "text", Text: "subreddit not found"}},
			IsError: true,
		}

		result := gw.ExecuteTool(ctx, "get_subreddit_info", map[string]any{"subreddit_name": "nope"})

		assert.True(t, result.IsError)
		assert.Equal(t, OutcomeUpstreamError, result.Outcome)
		assert.Equal(t, "subreddit not found", result.ContentText)
		assert.Empty(t, result.Metadata.Error)
	})

	t.Run("BridgeFailureBecomesResult", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), config.RedditEnv{})
		caller.err = &mcp.RPCError{Code: mcp.CodeInternalError, Message: "boom"}

		result := gw.ExecuteTool(ctx, "get_top_posts", nil)

		assert.True(t, result.IsError)
		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Equal(t, "Error: MCP error -32603: boom", result.ContentText)
		assert.Equal(t, "read", result.Metadata.Mode)
	})

	t.Run("ParamsPassedThrough", func(t *testing.T) {
		gw, caller, _, _ := newTestGateway(t, testConfig(), config.RedditEnv{})
		params := map[string]any{"post_id": "abc"}

		gw.ExecuteTool(ctx, "get_reddit_post", params)

		require.Len(t, caller.params, 1)
		assert.Equal(t, params, caller.params[0])
	})
}

func TestExecuteToolRecordsCalls(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsEveryOutcome", func(t *testing.T) {
		gw, _, recorder, _ := newTestGateway(t, testConfig(), writeCreds())

		gw.ExecuteTool(ctx, "get_top_posts", nil)
		gw.ExecuteTool(ctx, "create_post", map[string]any{"subreddit": "askreddit", "title": "secret title"})

		require.Len(t, recorder.records, 2)
		assert.Equal(t, "get_top_posts", recorder.records[0].Tool)
		assert.Equal(t, OutcomeOK, recorder.records[0].Outcome)
		assert.Empty(t, recorder.records[0].Message)
		assert.NotEmpty(t, recorder.records[0].ID)

		assert.Equal(t, "create_post", recorder.records[1].Tool)
		assert.Equal(t, "write", recorder.records[1].Mode)
		assert.Equal(t, OutcomeDenied, recorder.records[1].Outcome)
		assert.NotContains(t, recorder.records[1].Message, "secret title")
		assert.NotEqual(t, recorder.records[0].ID, recorder.records[1].ID)
	})

	t.Run("RecorderFailureDoesNotFailCall", func(t *testing.T) {
		gw, _, recorder, _ := newTestGateway(t, testConfig(), config.RedditEnv{})
		recorder.err = errors.New("disk full")

		result := gw.ExecuteTool(ctx, "get_top_posts", nil)

		assert.False(t, result.IsError)
		assert.Len(t, recorder.records, 1)
	})

	t.Run("NilRecorder", func(t *testing.T) {
		caller := &fakeCaller{}
		gw := New(testConfig(), config.RedditEnv{}, Deps{Bridge: caller})

		result := gw.ExecuteTool(ctx, "get_top_posts", nil)

		assert.False(t, result.IsError)
	})
}

func TestExecuteToolConcurrentWrites(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MinWriteInterval = 0
	cfg.RateLimit.WritePerMinute = 3
	gw, caller, _, _ := newTestGateway(t, cfg, writeCreds())

	var wg sync.WaitGroup
	results := make(chan Result, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- gw.ExecuteTool(context.Background(), "create_post", map[string]any{"subreddit": "typescript"})
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for result := range results {
		if !result.IsError {
			allowed++
		} else {
			assert.Equal(t, OutcomeRateLimited, result.Outcome)
		}
	}
	assert.Equal(t, 3, allowed)
	assert.Equal(t, 3, caller.callCount())
}
