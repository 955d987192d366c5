package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
)

type callFunc func(name string, args map[string]any) (*mcp.CallToolResult, error)

type fakeSession struct {
	id    int
	hooks mcp.Hooks
	call  callFunc
	tools []mcp.Tool

	mu       sync.Mutex
	args     []map[string]any
	closes   atomic.Int32
	closeErr error
}

func (s *fakeSession) ListTools(context.Context) ([]mcp.Tool, error) {
	return s.tools, nil
}

func (s *fakeSession) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	s.args = append(s.args, args)
	s.mu.Unlock()
	if s.call == nil {
		return textResult(name), nil
	}
	return s.call(name, args)
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	return s.closeErr
}

func (s *fakeSession) receivedArgs() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.args...)
}

// fakeDialer hands out sessions built by build, one per dial.
type fakeDialer struct {
	build func(n int, s *fakeSession)
	gate  chan struct{}
	err   error

	mu       sync.Mutex
	sessions []*fakeSession
	dials    atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, _ LaunchSpec, hooks mcp.Hooks) (Session, error) {
	n := int(d.dials.Add(1))
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	s := &fakeSession{id: n, hooks: hooks}
	if d.build != nil {
		d.build(n, s)
	}

	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: text}}}
}

func closedErr() error {
	return &mcp.TransportError{Code: mcp.CodeChannelClosed, Op: "tools/call", Err: mcp.ErrClosed}
}
