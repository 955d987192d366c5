// Package errors maps gateway failures onto gofulmen error envelopes and
// writes them as JSON responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SevenOfNine-ai/redditgw/internal/bridge"
	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/metrics"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/policy"
	"github.com/SevenOfNine-ai/redditgw/internal/ratelimit"
	"github.com/SevenOfNine-ai/redditgw/internal/server/middleware"
)

// Error codes used in envelopes.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePolicyDenied       = "POLICY_DENIED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeCredentialsMissing = "CREDENTIALS_MISSING"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeInternalError      = "INTERNAL_ERROR"
)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternalError, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// WrapInvalidInput builds an INVALID_INPUT envelope carrying the request IDs.
func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

// FromError classifies a gateway, policy, rate-limit or bridge failure.
func FromError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return EnsureEnvelope(nil)
	}

	var (
		envelope *errors.ErrorEnvelope
		denial   *policy.DenialError
		limit    *ratelimit.LimitError
		creds    *gateway.CredentialError
		unknown  *gateway.UnknownToolError
		rpcErr   *mcp.RPCError
		transErr *mcp.TransportError
	)

	switch {
	case stderrors.As(err, &envelope):
		return EnsureCorrelationID(envelope, ctx)
	case stderrors.As(err, &unknown):
		return wrap(ctx, CodeNotFound, nil, err.Error())
	case stderrors.As(err, &denial):
		env := wrap(ctx, CodePolicyDenied, nil, err.Error())
		return withContext(env, map[string]any{"reason": string(denial.Reason), "tool": denial.Tool})
	case stderrors.As(err, &limit):
		env := wrap(ctx, CodeRateLimited, nil, err.Error())
		return withContext(env, map[string]any{"mode": limit.Mode, "retry_after_ms": limit.RetryAfter.Milliseconds()})
	case stderrors.As(err, &creds):
		return wrap(ctx, CodeCredentialsMissing, nil, err.Error())
	case stderrors.Is(err, bridge.ErrConnectTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return wrap(ctx, CodeTimeout, err, "MCP server did not respond in time")
	case stderrors.Is(err, bridge.ErrClosed):
		return wrap(ctx, CodeServiceUnavailable, err, "gateway is shutting down")
	case stderrors.As(err, &rpcErr):
		env := wrap(ctx, CodeUpstreamError, nil, err.Error())
		return withContext(env, map[string]any{"rpc_code": rpcErr.Code})
	case stderrors.As(err, &transErr):
		env := wrap(ctx, CodeUpstreamError, err, "MCP transport failed")
		return withContext(env, map[string]any{"transport_code": transErr.Code})
	default:
		env := wrap(ctx, CodeInternalError, err, "unexpected error")
		env, _ = env.WithSeverity(errors.SeverityHigh)
		return env
	}
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	correlationID := extractCorrelationID(ctx)
	envelope := errors.NewErrorEnvelope(code, message).
		WithCorrelationID(correlationID).
		WithTraceID(correlationID)
	if err != nil {
		envelope = withContext(envelope, map[string]any{"wrapped_error": err.Error()})
	}
	return envelope
}

func withContext(envelope *errors.ErrorEnvelope, values map[string]any) *errors.ErrorEnvelope {
	updated, err := envelope.WithContext(values)
	if err != nil {
		return envelope
	}
	return updated
}

// extractCorrelationID gets the request ID from ctx, falling back to a new UUID.
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternalError, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	return FromError(nil, err)
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodePolicyDenied:
		return http.StatusForbidden
	case CodeCredentialsMissing:
		return http.StatusPreconditionFailed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamError:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ResponseDetails merges envelope details and context into an API-safe map.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})
	for key, value := range envelope.Details {
		details[key] = value
	}
	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError classifies err and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	RespondWithEnvelope(w, r, FromError(ctx, err))
}

// RespondWithEnvelope writes the envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromCode(envelope.Code)
	if statusCode == http.StatusTooManyRequests {
		if retry, ok := retryAfterMs(envelope); ok {
			w.Header().Set("Retry-After", retryAfterSeconds(retry))
		}
	}

	response := HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func retryAfterMs(envelope *errors.ErrorEnvelope) (int64, bool) {
	switch value := envelope.Context["retry_after_ms"].(type) {
	case int64:
		return value, true
	case int:
		return int64(value), true
	case float64:
		return int64(value), true
	default:
		return 0, false
	}
}

func retryAfterSeconds(ms int64) string {
	seconds := (ms + 999) / 1000
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}
	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch {
	case envelope.Severity == errors.SeverityCritical, envelope.Severity == errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case statusCode >= http.StatusInternalServerError:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(middleware.EndpointPattern(r), envelope.Code)
	}
}
