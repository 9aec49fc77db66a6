package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Directive is a parsed "/tool <name> [args]" request.
type Directive struct {
	Tool string
	Args map[string]any
}

// ParseDirective accepts either a JSON object or key=value pairs after the
// tool name. Values given as key=value stay strings; the registry coerces
// them. Double quotes group values containing spaces.
func ParseDirective(text string) (Directive, error) {
	rest := strings.TrimSpace(text)
	if len(rest) < len(DirectivePrefix) || !strings.EqualFold(rest[:len(DirectivePrefix)], DirectivePrefix) {
		return Directive{}, fmt.Errorf("not a tool directive")
	}
	rest = strings.TrimSpace(rest[len(DirectivePrefix):])
	if rest == "" {
		return Directive{}, errors.New("usage: /tool <name> [json-object | key=value ...]")
	}

	name, argText, _ := strings.Cut(rest, " ")
	d := Directive{Tool: name, Args: map[string]any{}}
	argText = strings.TrimSpace(argText)
	if argText == "" {
		return d, nil
	}

	if strings.HasPrefix(argText, "{") {
		args, err := ToolArgs(name, []string{argText})
		d.Args = args
		return d, err
	}

	fields, err := splitQuoted(argText)
	if err != nil {
		return d, fmt.Errorf("arguments for %s: %w", name, err)
	}
	d.Args, err = ToolArgs(name, fields)
	return d, err
}

// ToolArgs builds the argument map for tool name from already split fields:
// either a single JSON object or key=value pairs.
func ToolArgs(name string, fields []string) (map[string]any, error) {
	args := map[string]any{}
	if len(fields) == 1 && strings.HasPrefix(strings.TrimSpace(fields[0]), "{") {
		if err := json.Unmarshal([]byte(fields[0]), &args); err != nil {
			return args, fmt.Errorf("invalid JSON arguments for %s: %w", name, err)
		}
		return args, nil
	}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return args, fmt.Errorf("argument %q for %s is not key=value", f, name)
		}
		args[k] = v
	}
	return args, nil
}

// splitQuoted splits on spaces outside double quotes and drops the quotes.
func splitQuoted(s string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuote, started := false, false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case r == ' ' && !inQuote:
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if started {
		out = append(out, cur.String())
	}
	return out, nil
}
