package gateway

import (
	"fmt"
	"strings"
)

// CredentialError blocks write tools until the missing credentials are set.
type CredentialError struct {
	Problems []string
}

func (e *CredentialError) Error() string {
	return "Write blocked: " + strings.Join(e.Problems, " ")
}

// UnknownToolError is returned for names outside the catalog.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool '%s'.", e.Tool)
}

// ParityError fails strict startup when the upstream catalog does not match.
type ParityError struct {
	Missing    []string
	Unexpected []string
	Err        error
}

func (e *ParityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("startup parity check failed: %v", e.Err)
	}
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing expected tools: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected upstream tools: "+strings.Join(e.Unexpected, ", "))
	}
	return "startup parity check failed: " + strings.Join(parts, "; ")
}

func (e *ParityError) Unwrap() error {
	return e.Err
}
