package ratelimit

import (
	"fmt"
	"time"
)

// LimitError reports a call rejected by a rate gate.
type LimitError struct {
	Tool       string
	Mode       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Rate limit: %s tool '%s' blocked. Retry in %dms.", e.Mode, e.Tool, e.RetryAfter.Milliseconds())
}
