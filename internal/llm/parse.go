package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonBlockRe = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\n?```")
	codeBlockRe = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\n?```")
)

// ExtractToolCalls returns the tool calls requested by a response.
// Structured tool calls win; when a model emitted none but wrote a
// tool request as JSON in its text content, that embedded call is
// recovered instead. Text responses with no recoverable call return
// nil.
func ExtractToolCalls(resp *ChatResponse) []ToolCall {
	if len(resp.ToolCalls) > 0 {
		return resp.ToolCalls
	}
	if tc, ok := parseEmbeddedToolCall(resp.Content); ok {
		return []ToolCall{tc}
	}
	return nil
}

// parseEmbeddedToolCall recovers a {"name": ..., "arguments": {...}}
// object from free text. Models running without native tool-call
// support emit this shape.
func parseEmbeddedToolCall(content string) (ToolCall, bool) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return ToolCall{}, false
	}

	var embedded struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &embedded); err != nil {
		return ToolCall{}, false
	}
	if embedded.Name == "" {
		return ToolCall{}, false
	}
	args := embedded.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return ToolCall{ID: "embedded-" + embedded.Name, Name: embedded.Name, Args: args}, true
}

// extractJSON finds a JSON object in text that may contain markdown or
// other content.
func extractJSON(content string) string {
	// First try: ```json code block
	if matches := jsonBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// Second try: plain code block
	if matches := codeBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		candidate := strings.TrimSpace(matches[1])
		if strings.HasPrefix(candidate, "{") {
			return candidate
		}
	}

	// Third try: raw JSON object, matched by brace depth
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
