package gateway

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
)

// Outcome classifies a finished tool call for metrics and the audit ledger.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeDenied        Outcome = "denied"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeCredentials   Outcome = "credentials"
	OutcomeFailed        Outcome = "failed"
	OutcomeUnknownTool   Outcome = "unknown_tool"
)

// Metadata accompanies every result.
type Metadata struct {
	Tool         string          `json:"tool"`
	Mode         string          `json:"mode,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	Error        string          `json:"error,omitempty"`
	RetryAfterMs int64           `json:"retry_after_ms,omitempty"`
}

// Result is what callers of ExecuteTool see. Failures are results too.
type Result struct {
	ContentText string   `json:"content_text"`
	IsError     bool     `json:"is_error"`
	Outcome     Outcome  `json:"outcome"`
	Metadata    Metadata `json:"metadata"`
}

// ExtractText joins the text chunks of a tool result, using data when a chunk
// has no text. Results without any textual chunk are rendered as indented JSON.
func ExtractText(result *mcp.CallToolResult) string {
	if result == nil {
		return "null"
	}

	texts := make([]string, 0, len(result.Content))
	for _, chunk := range result.Content {
		switch {
		case chunk.Text != "":
			texts = append(texts, chunk.Text)
		case chunk.Data != "":
			texts = append(texts, chunk.Data)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}

	return indentJSON(result)
}

func indentJSON(result *mcp.CallToolResult) string {
	raw := result.Raw
	if len(raw) == 0 {
		encoded, err := json.Marshal(result)
		if err != nil {
			return ""
		}
		raw = encoded
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
