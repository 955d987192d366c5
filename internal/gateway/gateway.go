// Package gateway sequences every tool call through the write guard, the rate
// policy and the bridge, and turns any failure into a tool result.
package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SevenOfNine-ai/redditgw/internal/bridge"
	"github.com/SevenOfNine-ai/redditgw/internal/config"
	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/metrics"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/policy"
	"github.com/SevenOfNine-ai/redditgw/internal/ratelimit"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

// Caller is the part of *bridge.Bridge the gateway depends on.
type Caller interface {
	CallTool(ctx context.Context, name string, params any) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	Status() bridge.Status
	Close() error
}

// CallRecord is one finished call as written to the audit ledger. Parameters
// are never included.
type CallRecord struct {
	ID        string
	Tool      string
	Mode      string
	Outcome   Outcome
	Message   string
	Duration  time.Duration
	CreatedAt time.Time
}

// Recorder persists call records.
type Recorder interface {
	Record(ctx context.Context, rec CallRecord) error
}

// Deps are the collaborators of a Gateway. Only Bridge is required.
type Deps struct {
	Bridge   Caller
	Recorder Recorder
	Logger   observability.Logger
	Catalog  *tools.Catalog
	Clock    func() time.Time
	// ReconcileInterval spaces the recovery attempts made by Reconcile.
	ReconcileInterval time.Duration
}

// Gateway is safe for concurrent use.
type Gateway struct {
	cfg      *config.Config
	bridge   Caller
	recorder Recorder
	logger   observability.Logger
	catalog  *tools.Catalog
	clock    func() time.Time

	guard *policy.Guard
	rates *ratelimit.Policy

	// credential problems are computed once at construction
	credentialProblems []string

	reconcileEvery time.Duration
	reconciling    sync.Mutex

	mu            sync.RWMutex
	parity        ParitySnapshot
	lastReconcile time.Time
}

// New builds a gateway from validated configuration and resolved credentials.
func New(cfg *config.Config, creds config.RedditEnv, deps Deps) *Gateway {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Catalog == nil {
		deps.Catalog = tools.Default()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.ReconcileInterval <= 0 {
		deps.ReconcileInterval = DefaultReconcileInterval
	}

	g := &Gateway{
		cfg:                cfg,
		bridge:             deps.Bridge,
		recorder:           deps.Recorder,
		logger:             deps.Logger,
		catalog:            deps.Catalog,
		clock:              deps.Clock,
		guard:              policy.NewGuard(cfg.Write, deps.Catalog, cfg.VerboseErrors),
		rates:              ratelimit.NewPolicy(cfg.RateLimit).WithClock(deps.Clock),
		credentialProblems: config.CredentialReadiness(cfg, creds),
		reconcileEvery:     deps.ReconcileInterval,
		parity: ParitySnapshot{
			MissingExpectedTools:    []string{},
			UnexpectedUpstreamTools: []string{},
		},
	}

	if len(g.credentialProblems) > 0 {
		g.logger.Warn("Write tools blocked until credentials are set",
			zap.String("problems", strings.Join(g.credentialProblems, " ")))
	}

	return g
}

// ExecuteTool runs one tool call. It never returns an error: gate failures and
// upstream failures come back as results with IsError set.
func (g *Gateway) ExecuteTool(ctx context.Context, name string, params any) Result {
	start := g.clock()

	result, err := g.execute(ctx, name, params)
	if err != nil {
		result = errorResult(name, g.modeOf(name), err)
	}

	g.finish(ctx, result, g.clock().Sub(start))
	return result
}

func (g *Gateway) execute(ctx context.Context, name string, params any) (Result, error) {
	mode, ok := g.catalog.ModeOf(name)
	if !ok {
		return Result{}, &UnknownToolError{Tool: name}
	}

	if mode == tools.ModeWrite {
		if len(g.credentialProblems) > 0 {
			return Result{}, &CredentialError{Problems: g.credentialProblems}
		}
		if err := g.guard.EnsureToolAllowed(name, params); err != nil {
			return Result{}, err
		}
		if rate := g.rates.CheckWriteNow(); !rate.Allowed {
			return Result{}, &ratelimit.LimitError{Tool: name, Mode: string(tools.ModeWrite), RetryAfter: rate.RetryAfter}
		}
	} else {
		if rate := g.rates.CheckReadNow(); !rate.Allowed {
			return Result{}, &ratelimit.LimitError{Tool: name, Mode: string(tools.ModeRead), RetryAfter: rate.RetryAfter}
		}
	}

	upstream, err := g.bridge.CallTool(ctx, name, params)
	if err != nil {
		return Result{}, err
	}
	if upstream == nil {
		upstream = &mcp.CallToolResult{}
	}

	outcome := OutcomeOK
	if upstream.IsError {
		outcome = OutcomeUpstreamError
	}

	return Result{
		ContentText: ExtractText(upstream),
		IsError:     upstream.IsError,
		Outcome:     outcome,
		Metadata: Metadata{
			Tool: name,
			Mode: string(mode),
			Raw:  upstream.Raw,
		},
	}, nil
}

func (g *Gateway) modeOf(name string) string {
	mode, _ := g.catalog.ModeOf(name)
	return string(mode)
}

// finish emits the metric, the log line and the audit record for one call.
func (g *Gateway) finish(ctx context.Context, result Result, elapsed time.Duration) {
	metrics.RecordToolCall(result.Metadata.Tool, result.Metadata.Mode, string(result.Outcome), elapsed)

	fields := []zap.Field{
		zap.String("tool", result.Metadata.Tool),
		zap.String("mode", result.Metadata.Mode),
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("duration", elapsed),
	}
	switch result.Outcome {
	case OutcomeOK:
		g.logger.Debug("Tool call completed", fields...)
	case OutcomeFailed:
		g.logger.Warn("Tool call failed", append(fields, zap.String("error", result.Metadata.Error))...)
	default:
		g.logger.Info("Tool call blocked", append(fields, zap.String("error", result.Metadata.Error))...)
	}

	if g.recorder == nil {
		return
	}

	rec := CallRecord{
		ID:        uuid.NewString(),
		Tool:      result.Metadata.Tool,
		Mode:      result.Metadata.Mode,
		Outcome:   result.Outcome,
		Message:   result.Metadata.Error,
		Duration:  elapsed,
		CreatedAt: g.clock(),
	}
	if err := g.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		g.logger.Warn("Failed to record tool call", zap.String("tool", rec.Tool), zap.Error(err))
	}
}

// errorResult renders err as the text result the caller sees.
func errorResult(name, mode string, err error) Result {
	message := err.Error()
	result := Result{
		ContentText: "Error: " + message,
		IsError:     true,
		Outcome:     classify(err),
		Metadata: Metadata{
			Tool:  name,
			Mode:  mode,
			Error: message,
		},
	}

	var limit *ratelimit.LimitError
	if errors.As(err, &limit) {
		result.Metadata.RetryAfterMs = limit.RetryAfter.Milliseconds()
	}

	return result
}

func classify(err error) Outcome {
	var (
		denial  *policy.DenialError
		limit   *ratelimit.LimitError
		creds   *CredentialError
		unknown *UnknownToolError
	)
	switch {
	case errors.As(err, &unknown):
		return OutcomeUnknownTool
	case errors.As(err, &creds):
		return OutcomeCredentials
	case errors.As(err, &denial):
		return OutcomeDenied
	case errors.As(err, &limit):
		return OutcomeRateLimited
	default:
		return OutcomeFailed
	}
}
