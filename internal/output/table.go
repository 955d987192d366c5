package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/SevenOfNine-ai/redditgw/internal/audit"
	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

// TableFormatter renders payloads as ASCII tables.
type TableFormatter struct{}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// FormatStatus renders the status payload as a two-column table.
func (f *TableFormatter) FormatStatus(status gateway.Status) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Field", "Value"})

	t.AppendRows([]table.Row{
		{"write enabled", yesNo(status.Mode.WriteEnabled)},
		{"delete enabled", yesNo(status.Mode.DeleteEnabled)},
		{"subreddit allowlist required", yesNo(status.Mode.RequireSubredditAllowlist)},
		{"allowed tools", list(status.Mode.AllowedTools)},
		{"allowed subreddits", list(status.Mode.AllowedSubreddits)},
	})
	t.AppendSeparator()

	bridge := status.Bridge
	t.AppendRows([]table.Row{
		{"bridge connected", yesNo(bridge.Connected)},
		{"bridge closed", yesNo(bridge.Closed)},
		{"command", strings.TrimSpace(bridge.Command + " " + strings.Join(bridge.Args, " "))},
		{"disconnects", bridge.Lifecycle.DisconnectCount},
		{"reconnects", bridge.Lifecycle.ReconnectCount},
	})
	if bridge.Lifecycle.LastDisconnectReason != "" {
		t.AppendRow(table.Row{"last disconnect", bridge.Lifecycle.LastDisconnectReason})
	}
	t.AppendSeparator()

	rate := status.RateLimit
	t.AppendRows([]table.Row{
		{"reads in window", fmt.Sprintf("%d/%d", rate.ReadInWindow, rate.ReadLimit)},
		{"writes in window", fmt.Sprintf("%d/%d", rate.WriteInWindow, rate.WriteLimit)},
		{"min write interval", rate.MinWriteInterval},
		{"last write", timestamp(rate.LastWriteAt)},
	})
	t.AppendSeparator()

	parity := status.Parity
	t.AppendRow(table.Row{"parity checked", timestamp(parity.CheckedAt)})
	if parity.UpstreamToolCount != nil {
		t.AppendRow(table.Row{"upstream tools", *parity.UpstreamToolCount})
	}
	if len(parity.MissingExpectedTools) > 0 {
		t.AppendRow(table.Row{"missing tools", list(parity.MissingExpectedTools)})
	}
	if len(parity.UnexpectedUpstreamTools) > 0 {
		t.AppendRow(table.Row{"unwrapped tools", list(parity.UnexpectedUpstreamTools)})
	}
	if parity.Error != "" {
		t.AppendRow(table.Row{"parity error", parity.Error})
	}
	t.AppendSeparator()

	t.AppendRow(table.Row{"credentials ready", yesNo(status.Credentials.Ready)})
	for _, problem := range status.Credentials.Problems {
		t.AppendRow(table.Row{"", problem})
	}

	return t.Render(), nil
}

// FormatTools renders the tool catalog.
func (f *TableFormatter) FormatTools(specs []tools.Spec) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Name", "Mode", "Description"})

	writes := 0
	for _, spec := range specs {
		mode := string(spec.Mode)
		if spec.Delete {
			mode += " (delete)"
		}
		if spec.Mode == tools.ModeWrite {
			writes++
		}
		t.AppendRow(table.Row{spec.Name, mode, spec.Description})
	}

	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d tools, %d write", len(specs), writes)})
	return t.Render(), nil
}

// FormatResult prints the result text; errors carry their outcome.
func (f *TableFormatter) FormatResult(result gateway.Result) (string, error) {
	if !result.IsError {
		return result.ContentText, nil
	}
	out := fmt.Sprintf("[%s] %s", result.Outcome, result.ContentText)
	if result.Metadata.RetryAfterMs > 0 {
		out += fmt.Sprintf(" (retry after %s)", time.Duration(result.Metadata.RetryAfterMs)*time.Millisecond)
	}
	return out, nil
}

// FormatAudit renders ledger entries, newest first as listed.
func (f *TableFormatter) FormatAudit(entries []audit.Entry) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Time", "Tool", "Mode", "Outcome", "Duration", "Message"})

	for _, e := range entries {
		t.AppendRow(table.Row{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Tool,
			e.Mode,
			e.Outcome,
			strconv.FormatInt(e.DurationMs, 10) + "ms",
			e.Message,
		})
	}

	if len(entries) == 0 {
		t.AppendFooter(table.Row{"", "", "", "no calls recorded", "", ""})
	}
	return t.Render(), nil
}

// FormatChecks renders doctor checks.
func (f *TableFormatter) FormatChecks(checks []Check) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Check", "Status", "Detail"})

	failed := 0
	for _, c := range checks {
		if c.Status == CheckFail {
			failed++
		}
		t.AppendRow(table.Row{c.Name, c.Status, c.Detail})
	}

	summary := "all checks passed"
	if failed > 0 {
		summary = fmt.Sprintf("%d failed", failed)
	}
	t.AppendFooter(table.Row{"", summary, ""})
	return t.Render(), nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func list(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func timestamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
