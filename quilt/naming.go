package quilt

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/stevecastle/lkgquilt/ffmpeg"
)

// DefaultOutputTemplate names the quilt after its input and geometry.
const DefaultOutputTemplate = "{input_prefix}_qs{columns}x{rows}a{aspect}.png"

// printfToken matches a C printf conversion plus one leading separator.
var printfToken = regexp.MustCompile(`[_-]?%([-+0 #]{0,5})(\d*|\*)?(\.\d+)?([hlLzjt]{0,2})([diuoxXfFeEgGaAcspn%])`)

// StripPrintfSubstitutions removes printf conversions such as "_%04d".
func StripPrintfSubstitutions(name string) string {
	return printfToken.ReplaceAllString(name, "")
}

// InputPrefix is the input path without its extension or sequence token:
// "shots/frame_%04d.png" becomes "shots/frame".
func InputPrefix(path string) string {
	return StripPrintfSubstitutions(trimExt(path))
}

// trimExt drops the last extension, treating leading dots of the base name
// as part of the name.
func trimExt(path string) string {
	base := filepath.Base(path)
	if !strings.Contains(strings.TrimLeft(base, "."), ".") {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// NameFields are the placeholders available to output templates.
type NameFields struct {
	Columns     int
	Rows        int
	Aspect      float64
	Focus       float64
	Width       int
	Height      int
	InputPrefix string
}

// NewNameFields collects the template values for a quilt of opts made from
// inputs.
func NewNameFields(opts Options, inputs []string) NameFields {
	f := NameFields{
		Columns: opts.Columns,
		Rows:    opts.Rows,
		Aspect:  opts.Aspect,
		Focus:   opts.Focus,
		Width:   opts.Width,
		Height:  opts.Height,
	}
	if len(inputs) > 0 {
		f.InputPrefix = InputPrefix(inputs[0])
	}
	return f
}

func (f NameFields) lookup(name string) (any, bool) {
	switch name {
	case "columns":
		return f.Columns, true
	case "rows":
		return f.Rows, true
	case "aspect":
		return f.Aspect, true
	case "focus":
		return f.Focus, true
	case "width":
		return f.Width, true
	case "height":
		return f.Height, true
	case "input_prefix":
		return f.InputPrefix, true
	}
	return nil, false
}

// FormatOutputName expands {name} and {name:spec} placeholders in tmpl.
// {{ and }} produce literal braces. Specs follow the familiar
// [[fill]align][sign][#][0][width][,][.precision][type] mini-language.
func FormatOutputName(tmpl string, f NameFields) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed '{' in output template %q", tmpl)
			}
			field := tmpl[i+1 : i+1+end]
			i += end + 1

			name, spec, _ := strings.Cut(field, ":")
			v, ok := f.lookup(name)
			if !ok {
				return "", fmt.Errorf("unknown placeholder {%s} in output template", name)
			}
			s, err := formatField(v, spec)
			if err != nil {
				return "", fmt.Errorf("placeholder {%s}: %w", field, err)
			}
			b.WriteString(s)
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("single '}' in output template %q", tmpl)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

var specRe = regexp.MustCompile(`^(?:(.)?([<>=^]))?([-+ ])?(#)?(0)?(\d+)?(,)?(?:\.(\d+))?([bcdeEfFgGnosxX%])?$`)

// formatField renders v with a format spec. An empty spec prints ints
// plainly and floats with at least one decimal.
func formatField(v any, spec string) (string, error) {
	if spec == "" {
		if f, ok := v.(float64); ok {
			return shortFloat(f), nil
		}
		return ffmpeg.FormatValue(v), nil
	}
	m := specRe.FindStringSubmatch(spec)
	if m == nil {
		return "", fmt.Errorf("invalid format spec %q", spec)
	}
	fill, align, sign, alt, zero, width, comma, precision, typ := m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8], m[9]
	if fill == "" {
		fill = " "
	}
	if zero != "" && align == "" {
		fill, align = "0", "="
	}
	prec := -1
	if precision != "" {
		prec, _ = strconv.Atoi(precision)
	}

	var signStr, body string
	switch x := v.(type) {
	case string:
		if typ != "" && typ != "s" {
			return "", fmt.Errorf("format type %q is not valid for text", typ)
		}
		body = x
		if prec >= 0 && utf8.RuneCountInString(body) > prec {
			body = string([]rune(body)[:prec])
		}
		if align == "" {
			align = "<"
		}
	case int:
		switch typ {
		case "", "d", "n", "x", "X", "o", "b", "c":
			if prec >= 0 {
				return "", fmt.Errorf("precision is not allowed for integers")
			}
			signStr = signPrefix(x < 0, sign)
			body = formatInt(x, typ, alt != "", comma != "")
		default:
			signStr, body = formatFloatSpec(float64(x), typ, prec, sign, comma != "")
		}
	case float64:
		switch typ {
		case "d", "n", "x", "X", "o", "b", "c", "s":
			return "", fmt.Errorf("format type %q is not valid for numbers with decimals", typ)
		}
		signStr, body = formatFloatSpec(x, typ, prec, sign, comma != "")
	default:
		return "", fmt.Errorf("cannot format %T", v)
	}

	if align == "" {
		align = ">"
	}
	w, _ := strconv.Atoi(width)
	return pad(signStr, body, fill, align, w), nil
}

func signPrefix(neg bool, sign string) string {
	switch {
	case neg:
		return "-"
	case sign == "+":
		return "+"
	case sign == " ":
		return " "
	}
	return ""
}

func formatInt(x int, typ string, alt, comma bool) string {
	if typ == "c" {
		return string(rune(x))
	}
	abs := x
	if abs < 0 {
		abs = -abs
	}
	switch typ {
	case "x", "X", "b", "o":
		s := strconv.FormatInt(int64(abs), map[string]int{"x": 16, "X": 16, "b": 2, "o": 8}[typ])
		if typ == "X" {
			s = strings.ToUpper(s)
		}
		if alt {
			s = "0" + strings.ToLower(typ) + s
			if typ == "X" {
				s = "0X" + s[2:]
			}
		}
		return s
	}
	if comma {
		return humanize.Comma(int64(abs))
	}
	return strconv.Itoa(abs)
}

func formatFloatSpec(x float64, typ string, prec int, sign string, comma bool) (string, string) {
	signStr := signPrefix(math.Signbit(x) && x != 0, sign)
	abs := math.Abs(x)
	if prec < 0 && typ != "" {
		prec = 6
	}

	var body string
	switch typ {
	case "f", "F":
		body = strconv.FormatFloat(abs, 'f', prec, 64)
	case "e", "E":
		body = strconv.FormatFloat(abs, 'e', prec, 64)
	case "g", "G", "n":
		body = strconv.FormatFloat(abs, 'g', prec, 64)
	case "%":
		body = strconv.FormatFloat(abs*100, 'f', prec, 64) + "%"
	default:
		if prec >= 0 {
			body = strconv.FormatFloat(abs, 'g', prec, 64)
		} else {
			body = shortFloat(abs)
		}
	}
	if typ == "E" || typ == "G" || typ == "F" {
		body = strings.ToUpper(body)
	}
	if comma {
		body = groupThousands(body)
	}
	return signStr, body
}

// shortFloat prints the shortest decimal that reads back as f, switching to
// exponent notation below 1e-4 and from 1e16 up. Whole numbers keep a ".0".
func shortFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if f != 0 && (exp < -4 || exp >= 16) {
		return e
	}
	return ffmpeg.FormatFloat(f)
}

// groupThousands inserts commas into the integer digits of a decimal string.
func groupThousands(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(s)
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return s
	}
	return humanize.Comma(n) + s[end:]
}

func pad(sign, body, fill, align string, width int) string {
	n := width - utf8.RuneCountInString(sign) - utf8.RuneCountInString(body)
	if n <= 0 {
		return sign + body
	}
	switch align {
	case "<":
		return sign + body + strings.Repeat(fill, n)
	case "^":
		left := n / 2
		return strings.Repeat(fill, left) + sign + body + strings.Repeat(fill, n-left)
	case "=":
		return sign + strings.Repeat(fill, n) + body
	default:
		return strings.Repeat(fill, n) + sign + body
	}
}
