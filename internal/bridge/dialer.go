package bridge

import (
	"context"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
)

// Session is one live connection to the upstream server.
type Session interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens sessions. Implementations must honour ctx for the handshake and
// deliver transport events through hooks.
type Dialer interface {
	Dial(ctx context.Context, spec LaunchSpec, hooks mcp.Hooks) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, spec LaunchSpec, hooks mcp.Hooks) (Session, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, spec LaunchSpec, hooks mcp.Hooks) (Session, error) {
	return f(ctx, spec, hooks)
}

// StdioDialer spawns the upstream server and speaks MCP over its stdio.
type StdioDialer struct {
	Logger     observability.Logger
	ClientInfo mcp.Implementation
}

// Dial implements Dialer.
func (d StdioDialer) Dial(ctx context.Context, spec LaunchSpec, hooks mcp.Hooks) (Session, error) {
	client, err := mcp.Dial(ctx, mcp.Command{
		Path: spec.Command,
		Args: spec.Args,
		Env:  spec.Env,
	}, mcp.Options{
		ClientInfo: d.ClientInfo,
		Hooks:      hooks,
		Logger:     d.Logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
