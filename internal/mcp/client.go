package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/SevenOfNine-ai/redditgw/internal/observability"
)

// Hooks receive the terminal event of a client's session. At most one of them
// fires, at most once, and never after Close.
type Hooks struct {
	OnClose func()
	OnError func(error)
}

// Options configure a Client.
type Options struct {
	ClientInfo Implementation
	Hooks      Hooks
	Logger     observability.Logger
}

// Client issues MCP requests over one initialized session. It is safe for
// concurrent use.
type Client struct {
	session *sdk.ClientSession
	hooks   Hooks
	logger  observability.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Connect opens t and performs the initialize handshake before ctx expires.
// Hooks only start firing once the handshake has completed.
func Connect(ctx context.Context, t sdk.Transport, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	info := opts.ClientInfo
	if info.Name == "" {
		info = Implementation{Name: "redditgw", Version: "dev"}
	}

	client := sdk.NewClient(&sdk.Implementation{Name: info.Name, Version: info.Version}, &sdk.ClientOptions{
		LoggingMessageHandler: func(_ context.Context, req *sdk.LoggingMessageRequest) {
			logger.Debug("MCP server log",
				zap.String("level", string(req.Params.Level)),
				zap.String("logger", req.Params.Logger),
				zap.Any("data", req.Params.Data))
		},
	})

	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, classify("initialize", err)
	}

	c := &Client{
		session: session,
		hooks:   opts.Hooks,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go c.watch()

	if init := session.InitializeResult(); init != nil && init.ServerInfo != nil {
		logger.Debug("MCP session initialized",
			zap.String("server", init.ServerInfo.Name),
			zap.String("server_version", init.ServerInfo.Version),
			zap.String("protocol", init.ProtocolVersion))
	}
	return c, nil
}

// Done is closed once the session has ended or the client was closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ServerInfo returns the name and version the server sent in the handshake.
func (c *Client) ServerInfo() Implementation {
	init := c.session.InitializeResult()
	if init == nil || init.ServerInfo == nil {
		return Implementation{}
	}
	return Implementation{Name: init.ServerInfo.Name, Version: init.ServerInfo.Version}
}

// ListTools returns the server's full tool catalog, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, classify("tools/list", err)
		}
		converted, err := fromSDKTool(tool)
		if err != nil {
			return nil, err
		}
		tools = append(tools, converted)
	}
	return tools, nil
}

// CallTool invokes a tool. A nil args map is sent as an empty object.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}

	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, classify("tools/call", err)
	}
	return fromSDKResult(res)
}

// Close ends the session and releases the transport. Hooks do not fire for an
// explicit close. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err := c.session.Close()
		if isClosedStream(err) {
			err = nil
		}
		c.closeErr = err
	})
	return c.closeErr
}

// watch reports the end of the session through the hooks.
func (c *Client) watch() {
	err := c.session.Wait()
	close(c.done)

	if c.closing.Load() {
		return
	}
	if err == nil || isClosedStream(err) || isProcessExit(err) {
		c.logger.Debug("MCP session ended", zap.Error(err))
		if c.hooks.OnClose != nil {
			c.hooks.OnClose()
		}
		return
	}

	c.logger.Debug("MCP session failed", zap.Error(err))
	if c.hooks.OnError != nil {
		c.hooks.OnError(newTransportError("stream", err))
	}
}

func fromSDKTool(tool *sdk.Tool) (Tool, error) {
	out := Tool{Name: tool.Name, Description: tool.Description}
	if tool.InputSchema != nil {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return Tool{}, fmt.Errorf("encode input schema of %s: %w", tool.Name, err)
		}
		out.InputSchema = schema
	}
	return out, nil
}

func fromSDKResult(res *sdk.CallToolResult) (*CallToolResult, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode tools/call result: %w", err)
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	result.Raw = raw
	return &result, nil
}

// classify maps SDK errors onto the package's error types: closed sessions
// and broken streams become TransportErrors, JSON-RPC error responses become
// RPCErrors. Context errors pass through.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sdk.ErrConnectionClosed) {
		return &TransportError{Code: CodeChannelClosed, Op: op, Err: fmt.Errorf("%w: %w", ErrClosed, err)}
	}
	if code := transportCode(err); code != "" {
		return &TransportError{Code: code, Op: op, Err: err}
	}
	if rpcErr := asRPCError(err); rpcErr != nil {
		return rpcErr
	}
	return newTransportError(op, err)
}
