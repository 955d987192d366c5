// Package mcptest provides an in-process MCP server for tests.
package mcptest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
)

// Handler answers one tools/call. A returned error becomes a JSON-RPC error
// response carrying its message.
type Handler func(name string, args map[string]any) (*mcp.CallToolResult, error)

// Server is a scripted MCP server. Only the listed Tools can be called.
type Server struct {
	Tools    []mcp.Tool
	PageSize int
	Handler  Handler
	Info     mcp.Implementation

	mu          sync.Mutex
	calls       []Call
	initialized bool
}

// Call records one tools/call request.
type Call struct {
	Name      string
	Arguments map[string]any
}

// Calls returns the tools/call requests seen so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Initialized reports whether notifications/initialized arrived.
func (s *Server) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// ServeStdio serves one session over the process's stdin and stdout until the
// client hangs up or ctx ends.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.build().Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) build() *sdk.Server {
	info := s.Info
	if info.Name == "" {
		info = mcp.Implementation{Name: "mcptest", Version: "0.0.0"}
	}

	server := sdk.NewServer(&sdk.Implementation{Name: info.Name, Version: info.Version}, &sdk.ServerOptions{
		PageSize: s.PageSize,
		HasTools: true,
		InitializedHandler: func(context.Context, *sdk.InitializedRequest) {
			s.mu.Lock()
			s.initialized = true
			s.mu.Unlock()
		},
	})
	for _, tool := range s.Tools {
		var schema any = map[string]any{"type": "object"}
		if len(tool.InputSchema) > 0 {
			schema = tool.InputSchema
		}
		server.AddTool(&sdk.Tool{Name: tool.Name, Description: tool.Description, InputSchema: schema}, s.callTool)
	}
	return server
}

func (s *Server) callTool(_ context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	args := map[string]any{}
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Name: req.Params.Name, Arguments: args})
	s.mu.Unlock()

	if s.Handler == nil {
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: "ok:" + req.Params.Name}}}, nil
	}

	result, err := s.Handler(req.Params.Name, args)
	if err != nil {
		return nil, err
	}
	return toSDKResult(result), nil
}

func toSDKResult(result *mcp.CallToolResult) *sdk.CallToolResult {
	out := &sdk.CallToolResult{IsError: result.IsError, Content: []sdk.Content{}}
	for _, item := range result.Content {
		switch item.Type {
		case "image":
			data, _ := base64.StdEncoding.DecodeString(item.Data)
			out.Content = append(out.Content, &sdk.ImageContent{Data: data, MIMEType: item.MimeType})
		default:
			out.Content = append(out.Content, &sdk.TextContent{Text: item.Text})
		}
	}
	return out
}

// Conn is a client wired to a Server over an in-memory pipe.
type Conn struct {
	Client *mcp.Client

	session *sdk.ServerSession
	link    *link
}

// Connect starts s on an in-memory pipe and returns a client that has
// completed the handshake.
func (s *Server) Connect(ctx context.Context, opts mcp.Options) (*Conn, error) {
	serverSide, clientSide := sdk.NewInMemoryTransports()

	session, err := s.build().Connect(ctx, serverSide, nil)
	if err != nil {
		return nil, err
	}

	l := &link{broken: make(chan struct{})}
	client, err := mcp.Connect(ctx, &linkTransport{inner: clientSide, link: l}, opts)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	return &Conn{Client: client, session: session, link: l}, nil
}

// Hangup ends the client's input stream, as if the process exited.
func (c *Conn) Hangup() {
	c.link.cut(io.EOF)
}

// Break fails the client's input stream with err, as if the pipe broke.
func (c *Conn) Break(err error) {
	c.link.cut(err)
}

// Wait blocks until the server side of the session ends.
func (c *Conn) Wait() error {
	return c.session.Wait()
}

// link lets a test cut the client's input stream from outside.
type link struct {
	once   sync.Once
	broken chan struct{}
	err    error
}

func (l *link) cut(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.broken)
	})
}

type linkTransport struct {
	inner sdk.Transport
	link  *link
}

func (t *linkTransport) Connect(ctx context.Context) (sdk.Connection, error) {
	conn, err := t.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &linkConn{Connection: conn, link: t.link}, nil
}

type readResult struct {
	msg jsonrpc.Message
	err error
}

type linkConn struct {
	sdk.Connection
	link *link
}

func (c *linkConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case <-c.link.broken:
		_ = c.Connection.Close()
		return nil, c.link.err
	default:
	}

	ch := make(chan readResult, 1)
	go func() {
		msg, err := c.Connection.Read(ctx)
		ch <- readResult{msg: msg, err: err}
	}()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-c.link.broken:
		_ = c.Connection.Close()
		return nil, c.link.err
	}
}
