// Package mcp is the gateway's Model Context Protocol client. Sessions run on
// the official Go SDK; this package narrows them to the calls the gateway
// makes and maps their failures onto transport and JSON-RPC error types.
package mcp

import "encoding/json"

// Implementation names a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool is one entry of a tools/list response.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content is one chunk of a tool result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallToolResult is the tools/call response. Raw holds the result object as
// received.
type CallToolResult struct {
	Content []Content       `json:"content"`
	IsError bool            `json:"isError,omitempty"`
	Raw     json.RawMessage `json:"-"`
}
