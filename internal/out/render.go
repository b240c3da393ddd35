package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ggonzalez94/kadena-cli/internal/config"
	"github.com/ggonzalez94/kadena-cli/internal/model"
)

// texter is implemented by results that carry their own human rendering,
// such as balance reports and portfolios.
type texter interface {
	Text() string
}

// Render writes env to w. JSON mode prints the envelope (or only its data with
// ResultsOnly); plain mode prints one key=value line per record, nested keys
// joined with dots. --select takes dotted paths such as balance.amount.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	plain := settings.OutputMode == "plain"
	if plain && len(settings.SelectFields) == 0 && env.Error == nil {
		if t, ok := env.Data.(texter); ok {
			return renderText(w, t.Text(), settings.ResultsOnly, env.Meta)
		}
	}

	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(normalize(data), settings.SelectFields)
	}

	switch {
	case settings.ResultsOnly && !plain:
		return encodeJSON(w, data)
	case settings.ResultsOnly:
		return renderPlain(w, data)
	case !plain:
		env.Data = data
		return encodeJSON(w, env)
	}

	summary := map[string]any{
		"success": env.Success,
		"data":    data,
		"meta":    env.Meta,
	}
	if len(env.Warnings) > 0 {
		summary["warnings"] = env.Warnings
	}
	if env.Error != nil {
		summary["error"] = env.Error
	}
	return renderPlain(w, summary)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func renderText(w io.Writer, text string, resultsOnly bool, meta model.EnvelopeMeta) error {
	if _, err := fmt.Fprintln(w, text); err != nil {
		return err
	}
	if resultsOnly {
		return nil
	}
	_, err := fmt.Fprintf(w, "command=%s request_id=%s cache=%s\n", meta.Command, meta.RequestID, meta.Cache.Status)
	return err
}

func renderPlain(w io.Writer, data any) error {
	n := normalize(data)
	items, isList := n.([]any)
	if !isList {
		items = []any{n}
	}
	if isList && len(items) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, line(item)); err != nil {
			return err
		}
	}
	return nil
}

func line(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(buf)
	}
	flat := map[string]string{}
	flatten("", m, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+flat[k])
	}
	return strings.Join(parts, " ")
}

func flatten(prefix string, m map[string]any, dst map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, dst)
		case []any, nil:
			buf, _ := json.Marshal(t)
			dst[key] = string(buf)
		default:
			dst[key] = fmt.Sprint(t)
		}
	}
}

func project(data any, fields []string) any {
	switch t := data.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return t
	}
}

// projectMap keeps the selected paths. A dotted path yields a flat key, so
// "balance.amount" appears as {"balance.amount": ...}.
func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, strings.Split(f, ".")); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path []string) (any, bool) {
	v, ok := m[path[0]]
	if !ok || len(path) == 1 {
		return v, ok
	}
	child, isMap := v.(map[string]any)
	if !isMap {
		return nil, false
	}
	return lookup(child, path[1:])
}

// normalize turns structs into the generic maps and slices json produces.
func normalize(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}
