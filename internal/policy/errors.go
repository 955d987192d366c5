package policy

import "fmt"

// Reason identifies which write gate denied a call.
type Reason string

const (
	ReasonWriteDisabled       Reason = "write_disabled"
	ReasonToolNotAllowed      Reason = "tool_not_allowed"
	ReasonDeleteNotEnabled    Reason = "delete_not_enabled"
	ReasonSubredditRequired   Reason = "subreddit_required"
	ReasonSubredditNotAllowed Reason = "subreddit_not_allowed"
)

// DenialError is returned by Guard.EnsureToolAllowed. Verbose messages name the
// config knob involved; terse messages are operator-facing. Neither carries secrets.
type DenialError struct {
	Reason    Reason
	Tool      string
	Subreddit string
	Verbose   bool
}

func (e *DenialError) Error() string {
	if e.Verbose {
		return e.verboseMessage()
	}
	return e.terseMessage()
}

func (e *DenialError) terseMessage() string {
	switch e.Reason {
	case ReasonWriteDisabled:
		return "Write operation blocked: write mode is disabled."
	case ReasonToolNotAllowed:
		return "Write operation blocked: tool not in allowlist."
	case ReasonDeleteNotEnabled:
		return "Delete operation blocked: explicit opt-in required."
	case ReasonSubredditRequired:
		return "Write operation blocked: subreddit is required for allowlist validation."
	case ReasonSubredditNotAllowed:
		return "Write operation blocked: subreddit not in allowlist."
	default:
		return "Write operation blocked."
	}
}

func (e *DenialError) verboseMessage() string {
	switch e.Reason {
	case ReasonWriteDisabled:
		return fmt.Sprintf("Write tool '%s' is blocked: write mode is disabled. Enable write mode explicitly in gateway config.", e.Tool)
	case ReasonToolNotAllowed:
		return fmt.Sprintf("Write tool '%s' is blocked: it is not listed in write.allowed_tools.", e.Tool)
	case ReasonDeleteNotEnabled:
		return fmt.Sprintf("Write tool '%s' is blocked: delete operations require write.allow_delete=true.", e.Tool)
	case ReasonSubredditRequired:
		return fmt.Sprintf("Write tool '%s' blocked: subreddit is required for allowlist validation when write.require_subreddit_allowlist=true.", e.Tool)
	case ReasonSubredditNotAllowed:
		return fmt.Sprintf("Write tool '%s' blocked: subreddit '%s' is not in write.allowed_subreddits allowlist.", e.Tool, e.Subreddit)
	default:
		return fmt.Sprintf("Write tool '%s' is blocked.", e.Tool)
	}
}
