package agent

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"ltl/internal/domain"
)

// toolNameAliases maps names small models tend to invent onto registered tools.
var toolNameAliases = map[string]string{
	"shell":       "execute_command",
	"exec":        "execute_command",
	"run_command": "execute_command",
	"bash":        "execute_command",
	"webfetch":    "web_fetch",
	"web-fetch":   "web_fetch",
	"fetch_url":   "web_fetch",
	"websearch":   "web_search",
	"web-search":  "web_search",
	"search":      "web_search",
	"readfile":    "read_file",
	"read-file":   "read_file",
	"writefile":   "write_file",
	"write-file":  "write_file",
	"listdir":     "list_dir",
	"list-dir":    "list_dir",
	"ls":          "list_dir",
	"time":        "get_time",
	"systeminfo":  "system_info",
	"system-info": "system_info",
}

type contentCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

// toolCallsFromContent recovers tool calls that a model wrote into its text
// reply instead of the structured field. It accepts a bare object or array,
// a fenced ```json block, and JSON surrounded by prose.
func toolCallsFromContent(content string) []domain.ToolCall {
	content = strings.TrimSpace(stripRolePrefix(content))
	if content == "" {
		return nil
	}

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if calls := parseCallJSON(content); len(calls) > 0 {
		return calls
	}
	if start, end := jsonBounds(content); start >= 0 {
		return parseCallJSON(content[start:end])
	}
	return nil
}

func parseCallJSON(raw string) []domain.ToolCall {
	var parsed []contentCall

	var single contentCall
	if unmarshalLenient(raw, &single) && single.Name != "" {
		parsed = []contentCall{single}
	} else {
		var multi []contentCall
		if unmarshalLenient(raw, &multi) {
			parsed = multi
		}
	}

	var calls []domain.ToolCall
	for _, c := range parsed {
		if c.Name == "" {
			continue
		}
		args := c.Arguments
		if c.Parameters != nil {
			args = c.Parameters
		}
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, domain.ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      canonicalToolName(c.Name),
			Arguments: args,
		})
	}
	return calls
}

// unmarshalLenient retries once with invalid escape sequences removed,
// which some models emit inside format strings (e.g. "\%H").
func unmarshalLenient(raw string, v any) bool {
	if json.Unmarshal([]byte(raw), v) == nil {
		return true
	}
	return json.Unmarshal([]byte(dropInvalidEscapes(raw)), v) == nil
}

func canonicalToolName(name string) string {
	if mapped, ok := toolNameAliases[strings.ToLower(name)]; ok {
		return mapped
	}
	return name
}

// jsonBounds finds the first balanced top-level object or array in s and
// returns its [start, end) range, or -1, -1.
func jsonBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch ch {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// stripRolePrefix removes a leaked chat-template role label such as
// "assistant\n" or "Assistant: ".
func stripRolePrefix(content string) string {
	for _, p := range []string{"assistant\n", "assistant:\n", "assistant: "} {
		if len(content) >= len(p) && strings.EqualFold(content[:len(p)], p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

// dropInvalidEscapes removes the backslash from escape sequences JSON does
// not allow, inside string literals only.
func dropInvalidEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				buf.WriteByte(s[i+1])
				i++
			}
			continue
		}
		buf.WriteByte(ch)
	}
	return buf.String()
}
