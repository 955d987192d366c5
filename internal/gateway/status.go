package gateway

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/SevenOfNine-ai/redditgw/internal/bridge"
	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/policy"
	"github.com/SevenOfNine-ai/redditgw/internal/ratelimit"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

// ModeStatus describes the effective write policy.
type ModeStatus struct {
	WriteEnabled              bool     `json:"write_enabled"`
	DeleteEnabled             bool     `json:"delete_enabled"`
	RequireSubredditAllowlist bool     `json:"require_subreddit_allowlist"`
	AllowedTools              []string `json:"allowed_tools"`
	AllowedSubreddits         []string `json:"allowed_subreddits"`
}

// CredentialStatus reports whether write tools have what they need.
type CredentialStatus struct {
	Ready    bool     `json:"ready"`
	Problems []string `json:"problems"`
}

// Status is the polled view of the gateway. Every field is a copy.
type Status struct {
	Mode        ModeStatus         `json:"mode"`
	Bridge      bridge.Status      `json:"bridge"`
	RateLimit   ratelimit.Snapshot `json:"rate_limit"`
	Parity      ParitySnapshot     `json:"parity"`
	Credentials CredentialStatus   `json:"credentials"`
}

// Status assembles the current status payload.
func (g *Gateway) Status() Status {
	return Status{
		Mode: ModeStatus{
			WriteEnabled:              g.cfg.Write.Enabled,
			DeleteEnabled:             g.cfg.Write.AllowDelete,
			RequireSubredditAllowlist: g.cfg.Write.RequireSubredditAllowlist,
			AllowedTools:              nonNil(slices.Clone(g.cfg.Write.AllowedTools)),
			AllowedSubreddits:         nonNil(policy.NormalizeSubreddits(g.cfg.Write.AllowedSubreddits)),
		},
		Bridge:    g.bridge.Status(),
		RateLimit: g.rates.SnapshotNow(),
		Parity:    g.Parity(),
		Credentials: CredentialStatus{
			Ready:    len(g.credentialProblems) == 0,
			Problems: nonNil(slices.Clone(g.credentialProblems)),
		},
	}
}

// Ready reports whether the bridge is connected and the last parity check
// reached the upstream server.
func (g *Gateway) Ready() (bool, string) {
	status := g.bridge.Status()
	if status.Closed {
		return false, "bridge closed"
	}
	if !status.Connected {
		return false, "bridge not connected"
	}
	parity := g.Parity()
	if !parity.Checked() {
		return false, "parity not checked"
	}
	if parity.Error != "" {
		return false, "parity check failed: " + parity.Error
	}
	return true, "connected"
}

// DefaultReconcileInterval is the minimum gap between two recovery attempts.
const DefaultReconcileInterval = 5 * time.Second

// Reconcile reports readiness like Ready, but first tries to recover when the
// bridge is disconnected or the last parity check failed: it re-runs the
// parity check, which reconnects the bridge on the way. Attempts are spaced by
// the reconcile interval, and concurrent callers never start a second one.
func (g *Gateway) Reconcile(ctx context.Context) (bool, string) {
	ready, reason := g.Ready()
	if ready || g.bridge.Status().Closed {
		return ready, reason
	}

	if !g.reconciling.TryLock() {
		return ready, reason
	}
	defer g.reconciling.Unlock()

	now := g.clock()
	g.mu.Lock()
	due := g.lastReconcile.IsZero() || now.Sub(g.lastReconcile) >= g.reconcileEvery
	if due {
		g.lastReconcile = now
	}
	g.mu.Unlock()
	if !due {
		return ready, reason
	}

	g.logger.Info("Reconciling gateway readiness", zap.String("reason", reason))
	if _, err := g.CheckParity(ctx); err != nil {
		g.logger.Debug("Reconcile parity check failed", zap.Error(err))
	}
	return g.Ready()
}

// Catalog returns the tool catalog the gateway dispatches against.
func (g *Gateway) Catalog() *tools.Catalog {
	return g.catalog
}

// ListUpstreamTools returns the tools the upstream server advertises.
func (g *Gateway) ListUpstreamTools(ctx context.Context) ([]mcp.Tool, error) {
	return g.bridge.ListTools(ctx)
}

// Close shuts the bridge down. Further tool calls fail.
func (g *Gateway) Close() error {
	return g.bridge.Close()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
