package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// JSON-RPC error codes used by MCP peers.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeConnectionClosed = -32000
	CodeRequestTimeout   = -32001
)

// Transport error codes. They mirror the names Node-based MCP servers and
// clients report, so logs from either side of the pipe line up.
const (
	CodeBrokenPipe        = "EPIPE"
	CodeConnectionReset   = "ECONNRESET"
	CodeConnectionRefused = "ECONNREFUSED"
	CodeStreamDestroyed   = "ERR_STREAM_DESTROYED"
	CodeChannelClosed     = "ERR_CHANNEL_CLOSED"
)

// ErrClosed is the cause attached to requests that fail because the stream
// ended or the client was closed.
var ErrClosed = errors.New("connection closed")

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// TransportError reports a failure of the byte stream below JSON-RPC.
type TransportError struct {
	Code string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("mcp transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mcp transport %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(op string, err error) *TransportError {
	var existing *TransportError
	if errors.As(err, &existing) {
		return existing
	}
	return &TransportError{Code: transportCode(err), Op: op, Err: err}
}

// transportCode maps OS and stream errors onto the string codes above.
func transportCode(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EPIPE:
			return CodeBrokenPipe
		case syscall.ECONNRESET:
			return CodeConnectionReset
		case syscall.ECONNREFUSED:
			return CodeConnectionRefused
		}
	}

	switch {
	case errors.Is(err, os.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return CodeStreamDestroyed
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, ErrClosed):
		return CodeChannelClosed
	}
	return ""
}

// asRPCError recovers a JSON-RPC error response from the SDK's error chain.
// The SDK keeps its wire error type internal, so the link is matched by name
// and decoded through its JSON form.
func asRPCError(err error) *RPCError {
	for link := err; link != nil; link = errors.Unwrap(link) {
		if !strings.HasSuffix(fmt.Sprintf("%T", link), ".WireError") {
			continue
		}
		payload, marshalErr := json.Marshal(link)
		if marshalErr != nil {
			return nil
		}
		var rpcErr RPCError
		if json.Unmarshal(payload, &rpcErr) != nil {
			return nil
		}
		return &rpcErr
	}
	return nil
}

func isClosedStream(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

// isProcessExit reports an error that only says the child has exited.
func isProcessExit(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
