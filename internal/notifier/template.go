package notifier

import (
	"encoding/json"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// renderString substitutes {name}-style placeholders. Missing keys render as
// empty strings. No expression evaluation.
func renderString(tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		return vars[key]
	})
}

// renderJSON walks a JSON template tree substituting placeholders in leaf
// strings. Non-string leaves pass through untouched.
func renderJSON(raw json.RawMessage, vars map[string]string) (any, error) {
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return renderNode(tree, vars), nil
}

func renderNode(node any, vars map[string]string) any {
	switch t := node.(type) {
	case string:
		return renderString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = renderNode(v, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = renderNode(v, vars)
		}
		return out
	default:
		return node
	}
}
