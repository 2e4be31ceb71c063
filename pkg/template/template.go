// Package template implements the tiny placeholder formatter the payload
// DSL needs: plain named placeholders ({code}, {path}, {delay}, ...) and
// indexed placeholders, either into a list ({header[0]}) or into a map
// ({lens[clen]}). A template is compiled into a *Template that can be
// executed repeatedly with different Fields values; registry.Action.Template
// compiles on first use, and Format compiles and executes in one step —
// this is the re-expression of DESIGN NOTES' "tiny formatter" item.
package template

import (
	"fmt"
	"strconv"
	"strings"
)

// Fields holds the named values a template may reference. Values are either
// plain strings/numbers, string/int slices (for indexed access), or
// map[string]string/map[string]int (for named-index access via lens[...]).
type Fields map[string]any

// Template is a pre-compiled placeholder string.
type Template struct {
	raw   string
	parts []part
}

type part struct {
	literal string
	name    string // placeholder field name, empty if literal-only
	index   string // raw index text inside [...]; empty if not indexed
}

// Compile parses tpl once, following the same brace-escaping rule as
// Python's str.format() (which every payload template here was originally
// written against): a doubled "{{" or "}}" is a literal brace, and a lone
// "{name}" / "{name[index]}" is a substitution. Payload templates for
// engines whose own syntax uses braces (Jinja/Nunjucks tags) rely on this —
// e.g. "{{{{{header[0]}+{header[1]}}}}}" renders as "{{1234+5678}}". An
// unmatched lone '{' or '}' is kept as a literal rather than erroring,
// matching the original's tolerant usage.
func Compile(tpl string) *Template {
	t := &Template{raw: tpl}
	i := 0
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}
	for i < len(tpl) {
		switch tpl[i] {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				lit.WriteByte('{')
				i++
				continue
			}
			inner := tpl[i+1 : i+1+end]
			flush()
			name, index := splitIndex(inner)
			t.parts = append(t.parts, part{name: name, index: index})
			i += end + 2
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			lit.WriteByte('}')
			i++
		default:
			lit.WriteByte(tpl[i])
			i++
		}
	}
	flush()
	return t
}

func splitIndex(inner string) (name, index string) {
	open := strings.IndexByte(inner, '[')
	if open < 0 || !strings.HasSuffix(inner, "]") {
		return inner, ""
	}
	return inner[:open], inner[open+1 : len(inner)-1]
}

// Execute substitutes fields into the compiled template. Unknown or
// unresolvable placeholders render as an empty string rather than erroring,
// matching the payload DSL's permissive formatting.
func (t *Template) Execute(fields Fields) string {
	var out strings.Builder
	for _, p := range t.parts {
		if p.name == "" {
			out.WriteString(p.literal)
			continue
		}
		out.WriteString(resolve(fields, p.name, p.index))
	}
	return out.String()
}

// Format is a convenience one-shot compile+execute, used for ad-hoc
// templates that aren't hot enough to warrant pre-compilation.
func Format(tpl string, fields Fields) string {
	return Compile(tpl).Execute(fields)
}

func resolve(fields Fields, name, index string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	if index == "" {
		return toString(v)
	}
	switch coll := v.(type) {
	case []string:
		if i, err := strconv.Atoi(index); err == nil && i >= 0 && i < len(coll) {
			return coll[i]
		}
	case []int:
		if i, err := strconv.Atoi(index); err == nil && i >= 0 && i < len(coll) {
			return strconv.Itoa(coll[i])
		}
	case map[string]string:
		return coll[index]
	case map[string]int:
		return strconv.Itoa(coll[index])
	}
	return ""
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
