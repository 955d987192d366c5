package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SevenOfNine-ai/redditgw/internal/bridge"
	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/metrics"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/policy"
	"github.com/SevenOfNine-ai/redditgw/internal/ratelimit"
	"github.com/SevenOfNine-ai/redditgw/internal/server/middleware"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"Denial", &policy.DenialError{Reason: policy.ReasonWriteDisabled, Tool: "create_post"}, CodePolicyDenied, http.StatusForbidden},
		{"RateLimit", &ratelimit.LimitError{Tool: "get_top_posts", Mode: "read", RetryAfter: 1500 * time.Millisecond}, CodeRateLimited, http.StatusTooManyRequests},
		{"Credentials", &gateway.CredentialError{Problems: []string{"missing"}}, CodeCredentialsMissing, http.StatusPreconditionFailed},
		{"UnknownTool", &gateway.UnknownToolError{Tool: "ban_user"}, CodeNotFound, http.StatusNotFound},
		{"ConnectTimeout", fmt.Errorf("%w after 15000ms", bridge.ErrConnectTimeout), CodeTimeout, http.StatusGatewayTimeout},
		{"Closed", bridge.ErrClosed, CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"RPC", &mcp.RPCError{Code: mcp.CodeInternalError, Message: "boom"}, CodeUpstreamError, http.StatusBadGateway},
		{"Transport", &mcp.TransportError{Code: mcp.CodeBrokenPipe, Op: "write"}, CodeUpstreamError, http.StatusBadGateway},
		{"Wrapped", fmt.Errorf("list tools: %w", &mcp.RPCError{Code: -1, Message: "x"}), CodeUpstreamError, http.StatusBadGateway},
		{"Other", stderrors.New("boom"), CodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope := FromError(context.Background(), tt.err)
			require.NotNil(t, envelope)
			assert.Equal(t, tt.code, envelope.Code)
			assert.Equal(t, tt.status, HTTPStatusFromCode(envelope.Code))
			assert.NotEmpty(t, envelope.CorrelationID)
		})
	}
}

func TestFromErrorUsesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDContextKey, "req-123")

	envelope := FromError(ctx, bridge.ErrClosed)

	assert.Equal(t, "req-123", envelope.CorrelationID)
}

func TestEnsureEnvelope(t *testing.T) {
	nilEnvelope := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternalError, nilEnvelope.Code)

	existing := NewNotFoundError("gone")
	assert.Same(t, existing, EnsureEnvelope(existing))

	classified := EnsureEnvelope(&policy.DenialError{Reason: policy.ReasonToolNotAllowed, Tool: "edit_post"})
	assert.Equal(t, CodePolicyDenied, classified.Code)
}

func TestRespondWithError(t *testing.T) {
	t.Run("RateLimitSetsRetryAfter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/tools/upstream", nil)
		rec := httptest.NewRecorder()

		RespondWithError(rec, req, &ratelimit.LimitError{Tool: "get_top_posts", Mode: "read", RetryAfter: 1500 * time.Millisecond})

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))

		var body HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, CodeRateLimited, body.Error.Code)
		assert.Contains(t, body.Error.Message, "Retry in 1500ms")
		assert.NotEmpty(t, body.Error.RequestID)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/tools/get_top_posts", nil)
		rec := httptest.NewRecorder()

		RespondWithEnvelope(rec, req, WrapInvalidInput(req.Context(), stderrors.New("unexpected EOF"), "request body must be a JSON object"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unexpected EOF", body.Error.Details["wrapped_error"])
	})
}

func TestErrorMetricsUseRoutePattern(t *testing.T) {
	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)
	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	paths := []string{
		"/v1/tools/create_post",
		"/v1/tools/delete_comment",
		"/admin/users/123",
		"/wp-login.php?x=1",
	}
	for _, path := range paths {
		RespondWithEnvelope(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil), NewNotFoundError("not found"))
	}

	endpoints := map[string]int{}
	for _, m := range collector.GetMetricsByName(metrics.ErrorsByEndpointName) {
		endpoints[m.Tags["endpoint"]]++
	}
	assert.Equal(t, map[string]int{"/v1/tools/{name}": 2, "/unknown": 2}, endpoints)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(1))
	assert.Equal(t, "1", retryAfterSeconds(1000))
	assert.Equal(t, "5", retryAfterSeconds(4001))
}
