package action

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Request is the inbound request an action was triggered by. Cron runs use
// the zero value, so every placeholder resolves to "".
type Request struct {
	Path    string
	Body    []byte
	Query   url.Values
	Headers http.Header
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_\-]*(?:\.[^{}\s]+)?)\s*\}\}`)

// Data is the request body decoded as JSON, or the raw text when it is not
// JSON, or nil when there is no body.
func (r Request) Data() any {
	raw := bytes.TrimSpace(r.Body)
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// Expand replaces {{body}}, {{body.a.b}}, {{query.x}} and {{headers.x}} in s.
// Missing values become "". quote, when set, wraps every substituted value.
func (r Request) Expand(s string, quote func(string) string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var data any
	decoded := false
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		expr := placeholder.FindStringSubmatch(match)[1]
		root, rest, _ := strings.Cut(expr, ".")
		value := ""
		switch root {
		case "body":
			if !decoded {
				data = r.Data()
				decoded = true
			}
			value = lookup(data, rest)
		case "query":
			if rest != "" && r.Query != nil {
				value = r.Query.Get(rest)
			}
		case "headers":
			if rest != "" && r.Headers != nil {
				value = r.Headers.Get(rest)
			}
		default:
			return match
		}
		if quote != nil {
			return quote(value)
		}
		return value
	})
}

func lookup(data any, path string) string {
	cur := data
	if path != "" {
		for _, key := range strings.Split(path, ".") {
			obj, ok := cur.(map[string]any)
			if !ok {
				return ""
			}
			cur, ok = obj[key]
			if !ok {
				return ""
			}
		}
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(out)
	}
}

// expandValue applies Expand to every string inside v.
func (r Request) expandValue(v any) any {
	switch t := v.(type) {
	case string:
		return r.Expand(t, nil)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = r.expandValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.expandValue(item)
		}
		return out
	default:
		return v
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
