// Package ffmpeg models the small slice of ffmpeg the quilt pipeline needs:
// a linear filter chain, the command line that renders it, and ffprobe.
package ffmpeg

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// OutputLabel names the pad the rendered chain is mapped from.
const OutputLabel = "out"

const (
	valueSpecials  = `\'=:`
	filterSpecials = `\'[],;`
)

// Filter is one node of a filter chain, e.g. crop=h=480:w=360.
type Filter struct {
	Name   string
	Args   []string
	KwArgs map[string]string
}

// NewFilter returns a filter with positional arguments.
func NewFilter(name string, args ...string) Filter {
	return Filter{Name: name, Args: args}
}

// With returns a copy of f with the keyword argument key set. Values are
// formatted with FormatValue.
func (f Filter) With(key string, value any) Filter {
	kw := make(map[string]string, len(f.KwArgs)+1)
	for k, v := range f.KwArgs {
		kw[k] = v
	}
	kw[key] = FormatValue(value)
	f.KwArgs = kw
	return f
}

// Arg returns the keyword argument key, or "" when unset.
func (f Filter) Arg(key string) string {
	return f.KwArgs[key]
}

// String renders f as an escaped filter description. Keyword arguments are
// emitted in key order after the positional ones.
func (f Filter) String() string {
	params := make([]string, 0, len(f.Args)+len(f.KwArgs))
	for _, a := range f.Args {
		params = append(params, escapeChars(a, valueSpecials))
	}
	keys := make([]string, 0, len(f.KwArgs))
	for k := range f.KwArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params = append(params, escapeChars(k, valueSpecials)+"="+escapeChars(f.KwArgs[k], valueSpecials))
	}

	spec := escapeChars(f.Name, valueSpecials)
	if len(params) > 0 {
		spec += "=" + strings.Join(params, ":")
	}
	return escapeChars(spec, filterSpecials)
}

// escapeChars backslash-escapes every character of chars in s. The
// backslash itself must come first in chars.
func escapeChars(s, chars string) string {
	for _, c := range chars {
		s = strings.ReplaceAll(s, string(c), `\`+string(c))
	}
	return s
}

// Graph is a linear filter chain fed by the video streams of Inputs, in order.
type Graph struct {
	Inputs  []string
	Filters []Filter
}

// Then appends filters to the chain.
func (g *Graph) Then(filters ...Filter) *Graph {
	g.Filters = append(g.Filters, filters...)
	return g
}

// Names returns the filter names in chain order.
func (g Graph) Names() []string {
	names := make([]string, len(g.Filters))
	for i, f := range g.Filters {
		names[i] = f.Name
	}
	return names
}

// Find returns the first filter called name.
func (g Graph) Find(name string) (Filter, bool) {
	for _, f := range g.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return Filter{}, false
}

// String renders the -filter_complex argument: the input pads, the chain
// and the [out] label.
func (g Graph) String() string {
	var b strings.Builder
	for i := range g.Inputs {
		fmt.Fprintf(&b, "[%d:v]", i)
	}
	if len(g.Filters) == 0 {
		b.WriteString("null")
	}
	for i, f := range g.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	b.WriteString("[" + OutputLabel + "]")
	return b.String()
}

// Dump writes the chain as a tree rooted at the output, walking back through
// each filter to the inputs.
func (g Graph) Dump(w io.Writer, output string) error {
	if _, err := fmt.Fprintf(w, "Output: [%s] %s\n", OutputLabel, output); err != nil {
		return err
	}
	level := 1
	for i := len(g.Filters) - 1; i >= 0; i-- {
		f := g.Filters[i]
		line := f.Name
		if desc := f.String(); desc != f.Name {
			line += "  " + strings.TrimPrefix(desc, f.Name+"=")
		}
		if _, err := fmt.Fprintf(w, "%sFilter: %s\n", strings.Repeat("  ", level), line); err != nil {
			return err
		}
		level++
	}
	for i, in := range g.Inputs {
		if _, err := fmt.Fprintf(w, "%sInput %d: %s\n", strings.Repeat("  ", level), i, in); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue renders a filter argument. Floats print the way ffmpeg
// expressions are usually written by hand: 1.0, 0.75, 420.0.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return FormatFloat(x)
	case float32:
		return FormatFloat(float64(x))
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// FormatFloat prints the shortest representation of f that round-trips,
// keeping a trailing ".0" on whole numbers.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".IN") {
		s += ".0"
	}
	return s
}
