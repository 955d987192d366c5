package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/SevenOfNine-ai/redditgw/internal/errors"
	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

// MaxToolBodyBytes bounds the params document of one tool call.
const MaxToolBodyBytes = 1 << 20

// ToolGateway is the part of *gateway.Gateway the HTTP surface uses.
type ToolGateway interface {
	ExecuteTool(ctx context.Context, name string, params any) gateway.Result
	Status() gateway.Status
	Catalog() *tools.Catalog
	ListUpstreamTools(ctx context.Context) ([]mcp.Tool, error)
}

// ToolsHandler serves the /v1 API.
type ToolsHandler struct {
	gw ToolGateway
}

// NewToolsHandler creates a handler backed by gw.
func NewToolsHandler(gw ToolGateway) *ToolsHandler {
	return &ToolsHandler{gw: gw}
}

// ToolListResponse lists catalog tools.
type ToolListResponse struct {
	Tools []tools.Spec `json:"tools"`
}

// UpstreamToolListResponse lists tools advertised by the upstream server.
type UpstreamToolListResponse struct {
	Tools []mcp.Tool `json:"tools"`
	Count int        `json:"count"`
}

// Status handles GET /v1/status.
func (h *ToolsHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Status())
}

// List handles GET /v1/tools.
func (h *ToolsHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolListResponse{Tools: h.gw.Catalog().Specs()})
}

// ListUpstream handles GET /v1/tools/upstream.
func (h *ToolsHandler) ListUpstream(w http.ResponseWriter, r *http.Request) {
	upstream, err := h.gw.ListUpstreamTools(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if upstream == nil {
		upstream = []mcp.Tool{}
	}
	writeJSON(w, http.StatusOK, UpstreamToolListResponse{Tools: upstream, Count: len(upstream)})
}

// Call handles POST /v1/tools/{name}. Gate failures are tool results and come
// back with status 200 and is_error set.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.gw.Catalog().ModeOf(name); !ok {
		respondWithError(w, r, &gateway.UnknownToolError{Tool: name})
		return
	}

	params, err := decodeParams(http.MaxBytesReader(w, r.Body, MaxToolBodyBytes))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object"))
		return
	}

	writeJSON(w, http.StatusOK, h.gw.ExecuteTool(r.Context(), name, params))
}

// decodeParams reads one JSON object. An empty body is an empty object.
func decodeParams(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return map[string]any{}, nil
	}

	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, stderrors.New("params must not be null")
	}
	return params, nil
}
