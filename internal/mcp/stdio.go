package mcp

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sort"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/SevenOfNine-ai/redditgw/internal/observability"
)

// DefaultGracePeriod is how long Close waits after closing the child's stdin,
// and again after SIGTERM, before escalating.
const DefaultGracePeriod = 2 * time.Second

// Command describes the child process to spawn.
type Command struct {
	Path string
	Args []string
	// Env is the complete child environment; nothing is inherited.
	Env map[string]string
	Dir string
}

// Dial spawns cmd in its own process group and completes the MCP handshake
// before ctx expires. On failure the child is terminated. Stderr lines are
// logged at debug level.
func Dial(ctx context.Context, cmd Command, opts Options) (*Client, error) {
	if cmd.Path == "" {
		return nil, errors.New("mcp: empty command")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
		opts.Logger = logger
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Env = envList(cmd.Env)
	c.Dir = cmd.Dir
	c.Stderr = &stderrLog{logger: logger}
	setSysProcAttr(c)

	transport := &sdk.CommandTransport{Command: c, TerminateDuration: DefaultGracePeriod}
	client, err := Connect(ctx, transport, opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("Spawned MCP server",
		zap.String("command", cmd.Path),
		zap.Strings("args", cmd.Args),
		zap.Int("pid", c.Process.Pid))
	return client, nil
}

// stderrLog forwards complete lines written by the child to the logger.
type stderrLog struct {
	logger observability.Logger

	mu  sync.Mutex
	buf []byte
}

func (w *stderrLog) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:i], "\r")
		w.logger.Debug("MCP server stderr", zap.ByteString("line", line))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}
