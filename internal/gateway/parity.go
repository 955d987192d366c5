package gateway

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ParitySnapshot is the outcome of the last upstream catalog comparison.
type ParitySnapshot struct {
	CheckedAt               *time.Time `json:"checked_at"`
	UpstreamToolCount       *int       `json:"upstream_tool_count"`
	MissingExpectedTools    []string   `json:"missing_expected_tools"`
	UnexpectedUpstreamTools []string   `json:"unexpected_upstream_tools"`
	Error                   string     `json:"error,omitempty"`
}

// Checked reports whether a comparison has run.
func (p ParitySnapshot) Checked() bool {
	return p.CheckedAt != nil
}

// OK reports whether the last comparison ran and matched.
func (p ParitySnapshot) OK() bool {
	return p.Checked() && p.Error == "" &&
		len(p.MissingExpectedTools) == 0 && len(p.UnexpectedUpstreamTools) == 0
}

func (p ParitySnapshot) clone() ParitySnapshot {
	out := p
	if p.CheckedAt != nil {
		at := *p.CheckedAt
		out.CheckedAt = &at
	}
	if p.UpstreamToolCount != nil {
		count := *p.UpstreamToolCount
		out.UpstreamToolCount = &count
	}
	out.MissingExpectedTools = slices.Clone(p.MissingExpectedTools)
	out.UnexpectedUpstreamTools = slices.Clone(p.UnexpectedUpstreamTools)
	return out
}

// CheckParity lists the upstream tools and compares them with the catalog.
// Mismatches are logged. With strict startup a mismatch or a listing failure
// is returned as a *ParityError.
func (g *Gateway) CheckParity(ctx context.Context) (ParitySnapshot, error) {
	upstream, err := g.bridge.ListTools(ctx)
	checkedAt := g.clock()

	snapshot := ParitySnapshot{
		CheckedAt:               &checkedAt,
		MissingExpectedTools:    []string{},
		UnexpectedUpstreamTools: []string{},
	}

	if err != nil {
		snapshot.Error = err.Error()
		g.storeParity(snapshot)
		g.logger.Error("Bridge parity check failed", zap.Error(err))
		if g.cfg.StrictStartup {
			return snapshot.clone(), &ParityError{Err: err}
		}
		return snapshot.clone(), nil
	}

	available := make(map[string]struct{}, len(upstream))
	for _, tool := range upstream {
		available[tool.Name] = struct{}{}
	}
	for _, name := range g.catalog.Names() {
		if _, ok := available[name]; !ok {
			snapshot.MissingExpectedTools = append(snapshot.MissingExpectedTools, name)
		}
	}
	for _, tool := range upstream {
		if _, ok := g.catalog.ModeOf(tool.Name); !ok {
			snapshot.UnexpectedUpstreamTools = append(snapshot.UnexpectedUpstreamTools, tool.Name)
		}
	}
	count := len(upstream)
	snapshot.UpstreamToolCount = &count
	g.storeParity(snapshot)

	if len(snapshot.MissingExpectedTools) > 0 {
		g.logger.Warn("MCP server missing expected tools",
			zap.String("tools", strings.Join(snapshot.MissingExpectedTools, ", ")))
	}
	if len(snapshot.UnexpectedUpstreamTools) > 0 {
		g.logger.Warn("MCP server exposes unwrapped tools",
			zap.String("tools", strings.Join(snapshot.UnexpectedUpstreamTools, ", ")))
	}

	status := g.bridge.Status()
	g.logger.Info("Gateway ready",
		zap.String("command", status.Command),
		zap.Strings("args", status.Args),
		zap.Int("upstream_tools", count))

	if g.cfg.StrictStartup && !snapshot.OK() {
		return snapshot.clone(), &ParityError{
			Missing:    slices.Clone(snapshot.MissingExpectedTools),
			Unexpected: slices.Clone(snapshot.UnexpectedUpstreamTools),
		}
	}
	return snapshot.clone(), nil
}

// Parity returns a copy of the last comparison.
func (g *Gateway) Parity() ParitySnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parity.clone()
}

func (g *Gateway) storeParity(snapshot ParitySnapshot) {
	g.mu.Lock()
	g.parity = snapshot.clone()
	g.mu.Unlock()
}
