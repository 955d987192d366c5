package mcp_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/mcp/mcptest"
)

const helperEnv = "REDDITGW_MCP_TEST_SERVER"

// TestMain lets the test binary double as an MCP server over stdio.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		server := &mcptest.Server{
			Tools: tools("get_top_posts", "env"),
			Handler: func(name string, args map[string]any) (*mcp.CallToolResult, error) {
				text := "ok:" + name
				if name == "env" {
					text = "HOME=" + os.Getenv("HOME")
				}
				return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: text}}}, nil
			},
		}
		_, _ = os.Stderr.WriteString("helper server ready\n")
		if err := server.ServeStdio(context.Background()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func helperCommand() mcp.Command {
	return mcp.Command{
		Path: os.Args[0],
		Args: []string{"-test.run=^$"},
		Env:  map[string]string{helperEnv: "1"},
	}
}

func TestDialStdioServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closed := make(chan struct{}, 1)
	client, err := mcp.Dial(ctx, helperCommand(), mcp.Options{Hooks: mcp.Hooks{
		OnClose: func() { closed <- struct{}{} },
	}})
	require.NoError(t, err)
	assert.Equal(t, "mcptest", client.ServerInfo().Name)

	listed, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	result, err := client.CallTool(ctx, "get_top_posts", map[string]any{"subreddit": "golang"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok:get_top_posts", result.Content[0].Text)

	result, err = client.CallTool(ctx, "env", nil)
	require.NoError(t, err)
	assert.Equal(t, "HOME=", result.Content[0].Text, "child must not inherit the parent environment")

	_ = client.Close()
	select {
	case <-closed:
		t.Fatal("explicit close must not fire OnClose")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDialMissingBinary(t *testing.T) {
	_, err := mcp.Dial(context.Background(), mcp.Command{Path: "/nonexistent/redditgw-mcp"}, mcp.Options{})
	require.Error(t, err)

	var transportErr *mcp.TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestDialEmptyCommand(t *testing.T) {
	_, err := mcp.Dial(context.Background(), mcp.Command{}, mcp.Options{})
	require.Error(t, err)
}
