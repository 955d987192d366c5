package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SevenOfNine-ai/redditgw/internal/mcp"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   string
	}{
		{
			name: "JoinsTextChunks",
			result: &mcp.CallToolResult{Content: []mcp.Content{
				{Type: "text", Text: "first"},
				{Type: "text", Text: "second"},
			}},
			want: "first\nsecond",
		},
		{
			name: "FallsBackToData",
			result: &mcp.CallToolResult{Content: []mcp.Content{
				{Type: "text", Text: "caption"},
				{Type: "image", Data: "aGVsbG8=", MimeType: "image/png"},
			}},
			want: "caption\naGVsbG8=",
		},
		{
			name:   "IndentsRawWhenNothingTextual",
			result: &mcp.CallToolResult{Raw: json.RawMessage(`{"content":[],"isError":false}`)},
			want:   "{\n  \"content\": [],\n  \"isError\": false\n}",
		},
		{
			name:   "Nil",
			result: nil,
			want:   "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.result))
		})
	}
}

func TestExtractTextWithoutRaw(t *testing.T) {
	text := ExtractText(&mcp.CallToolResult{Content: []mcp.Content{{Type: "resource"}}})

	assert.Contains(t, text, "\"type\": \"resource\"")
}
