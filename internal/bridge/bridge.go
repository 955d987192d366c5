// Package bridge owns the connection to the upstream Reddit MCP server:
// connect, call, one reconnect-and-retry on a broken connection, close.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/metrics"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
)

// DefaultStartupTimeout bounds the spawn and handshake.
const DefaultStartupTimeout = 15 * time.Second

// Disconnect reasons recorded in Lifecycle.
const (
	ReasonNone  = "none"
	ReasonClose = "close"
	ReasonError = "error"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bridge closed")

	// ErrConnectTimeout is returned when the handshake misses the startup timeout.
	ErrConnectTimeout = errors.New("MCP connect timeout")
)

// Lifecycle counts transport events over the life of the bridge.
type Lifecycle struct {
	DisconnectCount      int        `json:"disconnect_count"`
	ReconnectCount       int        `json:"reconnect_count"`
	PendingReconnect     bool       `json:"pending_reconnect"`
	LastDisconnectReason string     `json:"last_disconnect_reason"`
	LastDisconnectCode   string     `json:"last_disconnect_code,omitempty"`
	LastDisconnectAt     *time.Time `json:"last_disconnect_at,omitempty"`
}

// Status is a point-in-time copy of the bridge state.
type Status struct {
	Connected bool      `json:"connected"`
	Closed    bool      `json:"closed"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	Lifecycle Lifecycle `json:"lifecycle"`
}

// Options configure a Bridge.
type Options struct {
	StartupTimeout time.Duration
	Dialer         Dialer
	Logger         observability.Logger
}

// Bridge is safe for concurrent use. Concurrent connects share one attempt.
type Bridge struct {
	spec           LaunchSpec
	startupTimeout time.Duration
	dialer         Dialer
	logger         observability.Logger

	connects singleflight.Group

	mu         sync.Mutex
	session    Session
	connected  bool
	closed     bool
	generation uint64
	lifecycle  Lifecycle
}

// New builds a disconnected bridge. Nothing is spawned until first use.
func New(spec LaunchSpec, opts Options) *Bridge {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dialer == nil {
		opts.Dialer = StdioDialer{Logger: opts.Logger}
	}

	spec.Args = slices.Clone(spec.Args)
	return &Bridge{
		spec:           spec,
		startupTimeout: opts.StartupTimeout,
		dialer:         opts.Dialer,
		logger:         opts.Logger,
		lifecycle:      Lifecycle{LastDisconnectReason: ReasonNone},
	}
}

// Connect is a no-op when already connected.
func (b *Bridge) Connect(ctx context.Context) error {
	_, _, err := b.ensureSession(ctx)
	return err
}

// ListTools returns the upstream tool catalog.
func (b *Bridge) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	session, _, err := b.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	return session.ListTools(ctx)
}

// CallTool forwards one call. Params that are not a JSON object are sent as
// {}. A broken connection is retried once on a fresh session; any error from
// the retry is returned as is.
func (b *Bridge) CallTool(ctx context.Context, name string, params any) (*mcp.CallToolResult, error) {
	args := asObject(params)

	session, gen, err := b.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	result, err := session.CallTool(ctx, name, args)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil || !b.shouldReconnect(err) {
		return nil, err
	}

	b.logger.Info("Reconnecting to MCP server after transport failure",
		zap.String("tool", name),
		zap.String("code", RecoverableCode(err)),
		zap.Error(err))

	session, err = b.reconnect(ctx, gen)
	if err != nil {
		return nil, err
	}
	return session.CallTool(ctx, name, args)
}

// Status returns a copy of the current state.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	lifecycle := b.lifecycle
	if lifecycle.LastDisconnectAt != nil {
		at := *lifecycle.LastDisconnectAt
		lifecycle.LastDisconnectAt = &at
	}
	return Status{
		Connected: b.connected,
		Closed:    b.closed,
		Command:   b.spec.Command,
		Args:      slices.Clone(b.spec.Args),
		Lifecycle: lifecycle,
	}
}

// Close terminates the child. It is idempotent, never fails, and the bridge
// cannot be reused afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	session := b.session
	wasClosed := b.closed
	b.session = nil
	b.connected = false
	b.closed = true
	b.generation++
	b.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			b.logger.Debug("Ignoring error closing MCP session", zap.Error(err))
		}
	}
	if !wasClosed {
		metrics.SetBridgeConnected(false)
		b.logger.Debug("Bridge closed")
	}
	return nil
}

func (b *Bridge) ensureSession(ctx context.Context) (Session, uint64, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, 0, ErrClosed
	}
	if b.ready() {
		session, gen := b.session, b.generation
		b.mu.Unlock()
		return session, gen, nil
	}
	b.mu.Unlock()

	if _, err, _ := b.connects.Do("connect", func() (any, error) {
		return nil, b.dial(ctx)
	}); err != nil {
		return nil, 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, 0, ErrClosed
	}
	if b.session == nil {
		return nil, 0, mcp.ErrClosed
	}
	return b.session, b.generation, nil
}

// ready reports a usable session. Callers hold mu.
func (b *Bridge) ready() bool {
	return b.connected && b.session != nil && !b.lifecycle.PendingReconnect
}

type dialResult struct {
	session Session
	err     error
}

func (b *Bridge) dial(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.ready() {
		b.mu.Unlock()
		return nil
	}
	stale := b.session
	b.session = nil
	b.connected = false
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	if stale != nil {
		if err := stale.Close(); err != nil {
			b.logger.Debug("Ignoring error closing stale MCP session", zap.Error(err))
		}
	}

	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.startupTimeout)
	defer cancel()

	b.logger.Debug("Connecting to MCP server",
		zap.String("command", b.spec.Command),
		zap.Strings("args", b.spec.Args),
		zap.Strings("env_keys", b.spec.EnvKeys()))

	done := make(chan dialResult, 1)
	go func() {
		session, err := b.dialer.Dial(dialCtx, b.spec, b.hooksFor(gen))
		done <- dialResult{session: session, err: err}
	}()

	var res dialResult
	select {
	case res = <-done:
	case <-dialCtx.Done():
		go func() {
			if late := <-done; late.session != nil {
				_ = late.session.Close()
			}
		}()
		return b.timeoutError()
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return b.timeoutError()
		}
		return fmt.Errorf("connect MCP server: %w", res.err)
	}

	b.mu.Lock()
	if b.closed || b.generation != gen {
		b.mu.Unlock()
		_ = res.session.Close()
		return ErrClosed
	}
	b.session = res.session
	b.connected = true
	b.lifecycle.PendingReconnect = false
	b.mu.Unlock()

	metrics.SetBridgeConnected(true)
	b.logger.Info("Connected to MCP server", zap.String("command", b.spec.Command))
	return nil
}

func (b *Bridge) timeoutError() error {
	return fmt.Errorf("%w after %dms", ErrConnectTimeout, b.startupTimeout.Milliseconds())
}

// reconnect replaces the session of generation failed. When another caller has
// already replaced it, the current session is reused.
func (b *Bridge) reconnect(ctx context.Context, failed uint64) (Session, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.generation == failed {
		b.lifecycle.PendingReconnect = true
		b.lifecycle.ReconnectCount++
		b.mu.Unlock()
		metrics.RecordBridgeReconnect()
	} else {
		b.mu.Unlock()
	}

	session, _, err := b.ensureSession(ctx)
	return session, err
}

func (b *Bridge) shouldReconnect(err error) bool {
	if IsRecoverable(err) {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.connected || b.lifecycle.PendingReconnect
}

func (b *Bridge) hooksFor(gen uint64) mcp.Hooks {
	return mcp.Hooks{
		OnClose: func() { b.markDisconnected(gen, ReasonClose, nil) },
		OnError: func(err error) { b.markDisconnected(gen, ReasonError, err) },
	}
}

// markDisconnected records a transport event. Events from replaced sessions,
// and from a session whose dial has not completed, are ignored.
func (b *Bridge) markDisconnected(gen uint64, reason string, cause error) {
	now := time.Now().UTC()

	b.mu.Lock()
	if b.closed || gen != b.generation || b.session == nil {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.lifecycle.PendingReconnect = true
	b.lifecycle.DisconnectCount++
	b.lifecycle.LastDisconnectReason = reason
	b.lifecycle.LastDisconnectCode = RecoverableCode(cause)
	b.lifecycle.LastDisconnectAt = &now
	count := b.lifecycle.DisconnectCount
	b.mu.Unlock()

	metrics.SetBridgeConnected(false)
	metrics.RecordBridgeDisconnect(reason)
	b.logger.Warn("MCP server disconnected",
		zap.String("reason", reason),
		zap.Int("disconnect_count", count),
		zap.Error(cause))
}

var objectType = reflect.TypeFor[map[string]any]()

// asObject coerces anything that is not a JSON object to an empty one. Named
// map types with string keys and any values count as objects.
func asObject(params any) map[string]any {
	switch typed := params.(type) {
	case map[string]any:
		if typed == nil {
			return map[string]any{}
		}
		return typed
	case nil:
		return map[string]any{}
	}

	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Map || !value.Type().ConvertibleTo(objectType) || value.IsNil() {
		return map[string]any{}
	}
	return value.Convert(objectType).Interface().(map[string]any)
}
