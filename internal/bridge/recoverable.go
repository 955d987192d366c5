package bridge

import (
	"syscall"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
)

// maxCauseDepth bounds the walk down an error's cause chain.
const maxCauseDepth = 8

var recoverableCodes = map[string]struct{}{
	mcp.CodeBrokenPipe:        {},
	mcp.CodeConnectionReset:   {},
	mcp.CodeConnectionRefused: {},
	mcp.CodeStreamDestroyed:   {},
	mcp.CodeChannelClosed:     {},
}

// IsRecoverable reports whether err means the connection to the child broke,
// so that one reconnect-and-retry is worthwhile.
func IsRecoverable(err error) bool {
	_, ok := findCode(err, maxCauseDepth)
	return ok
}

// RecoverableCode returns the transport or protocol code that made err
// recoverable, or "" when it is not.
func RecoverableCode(err error) string {
	code, _ := findCode(err, maxCauseDepth)
	return code
}

func findCode(err error, depth int) (string, bool) {
	for ; err != nil && depth > 0; depth-- {
		if code, ok := directCode(err); ok {
			return code, true
		}

		switch wrapped := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range wrapped.Unwrap() {
				if code, ok := findCode(inner, depth-1); ok {
					return code, true
				}
			}
			return "", false
		case interface{ Unwrap() error }:
			err = wrapped.Unwrap()
		default:
			return "", false
		}
	}
	return "", false
}

// directCode inspects a single link without unwrapping.
func directCode(err error) (string, bool) {
	switch typed := err.(type) {
	case *mcp.RPCError:
		if typed.Code == mcp.CodeConnectionClosed {
			return "CONNECTION_CLOSED", true
		}
	case *mcp.TransportError:
		if _, ok := recoverableCodes[typed.Code]; ok {
			return typed.Code, true
		}
	case syscall.Errno:
		switch typed {
		case syscall.EPIPE:
			return mcp.CodeBrokenPipe, true
		case syscall.ECONNRESET:
			return mcp.CodeConnectionReset, true
		case syscall.ECONNREFUSED:
			return mcp.CodeConnectionRefused, true
		}
	}
	if err == mcp.ErrClosed {
		return mcp.CodeChannelClosed, true
	}
	return "", false
}
