package notifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/speedwagon-io/hevt/internal/model"
)

const TimestampLayout = "2006-01-02 15:04:05"

// maxSpecNumber bounds width and precision in a placeholder spec.
const maxSpecNumber = 1000

var (
	ErrMalformedTemplate  = errors.New("malformed template")
	ErrUnknownPlaceholder = errors.New("unknown placeholder")
)

// Fields are the values a message template can reference, keyed by
// placeholder name: max, min, avg, max_slope, avg_slope, over, diff_area,
// avgT, maxSlopeT, diffAreaT and now.
type Fields map[string]any

func FieldsFromReport(r model.Report, at time.Time) Fields {
	return Fields{
		"max":       r.MaxTemp,
		"min":       r.MinTemp,
		"avg":       r.AvgTemp,
		"max_slope": r.MaxSlope,
		"avg_slope": r.AvgSlope,
		"over":      r.OverCount,
		"diff_area": r.DiffArea,
		"avgT":      r.AvgTempTrend,
		"maxSlopeT": r.MaxSlopeTrend,
		"diffAreaT": r.DiffAreaTrend,
		"now":       at.Format(TimestampLayout),
	}
}

// SampleFields are the stats used by a test push.
func SampleFields(at time.Time) Fields {
	return FieldsFromReport(model.Report{
		Alarm:     true,
		MaxTemp:   38.5,
		MinTemp:   26.2,
		AvgTemp:   33.0,
		MaxSlope:  1.5,
		AvgSlope:  0.8,
		OverCount: 3,
		DiffArea:  42,
	}, at)
}

// Render formats tpl and falls back to a fixed message when the template
// cannot be rendered.
func Render(tpl string, f Fields) string {
	text, err := Format(tpl, f)
	if err != nil {
		return Fallback(f)
	}
	return text
}

func Fallback(f Fields) string {
	return fmt.Sprintf("⚠️ 警報：Max=%.2f°C, Avg=%.2f°C, DiffArea=%d",
		asFloat(f["max"]), asFloat(f["avg"]), asInt(f["diff_area"]))
}

// Format expands {name} and {name:spec} placeholders. "{{" and "}}" are
// literal braces. spec follows [sign][0][width][.precision][type] with type
// one of f, F, d, e, E, g, G, s or empty.
func Format(tpl string, f Fields) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl) + 32)

	for i := 0; i < len(tpl); {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at %d", ErrMalformedTemplate, i)
			}
			field := tpl[i+1 : i+end]
			if strings.ContainsRune(field, '{') {
				return "", fmt.Errorf("%w: nested '{' at %d", ErrMalformedTemplate, i)
			}
			out, err := formatField(field, f)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("%w: single '}' at %d", ErrMalformedTemplate, i)
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), nil
}

func formatField(field string, f Fields) (string, error) {
	name, spec, _ := strings.Cut(field, ":")
	if name == "" {
		return "", fmt.Errorf("%w: empty placeholder", ErrMalformedTemplate)
	}
	v, ok := f[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlaceholder, name)
	}

	ps, err := parseSpec(spec)
	if err != nil {
		return "", err
	}
	return ps.apply(v)
}

type formatSpec struct {
	flags     string
	width     string
	precision string
	verb      byte
}

func parseSpec(spec string) (formatSpec, error) {
	var ps formatSpec
	i := 0
	if i < len(spec) && (spec[i] == '+' || spec[i] == '-' || spec[i] == ' ') {
		if spec[i] != '-' {
			ps.flags += string(spec[i])
		}
		i++
	}
	if i < len(spec) && spec[i] == '0' {
		ps.flags += "0"
		i++
	}
	start := i
	for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
		i++
	}
	ps.width = spec[start:i]
	if err := checkSpecNumber(ps.width, spec); err != nil {
		return ps, err
	}
	if i < len(spec) && spec[i] == '.' {
		i++
		start = i
		for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
			i++
		}
		if start == i {
			return ps, fmt.Errorf("%w: precision without digits in %q", ErrMalformedTemplate, spec)
		}
		ps.precision = spec[start:i]
		if err := checkSpecNumber(ps.precision, spec); err != nil {
			return ps, err
		}
	}
	if i < len(spec) {
		ps.verb = spec[i]
		i++
	}
	if i != len(spec) {
		return ps, fmt.Errorf("%w: bad format spec %q", ErrMalformedTemplate, spec)
	}
	switch ps.verb {
	case 0, 'f', 'F', 'd', 'e', 'E', 'g', 'G', 's':
	default:
		return ps, fmt.Errorf("%w: unsupported type %q", ErrMalformedTemplate, ps.verb)
	}
	return ps, nil
}

func checkSpecNumber(digits, spec string) error {
	if digits == "" {
		return nil
	}
	if len(digits) > 4 {
		return fmt.Errorf("%w: number too large in %q", ErrMalformedTemplate, spec)
	}
	if n, _ := strconv.Atoi(digits); n > maxSpecNumber {
		return fmt.Errorf("%w: number too large in %q", ErrMalformedTemplate, spec)
	}
	return nil
}

func (ps formatSpec) layout(verb byte) string {
	l := "%" + ps.flags + ps.width
	if ps.precision != "" {
		l += "." + ps.precision
	}
	return l + string(verb)
}

func (ps formatSpec) apply(v any) (string, error) {
	switch x := v.(type) {
	case float64:
		switch ps.verb {
		case 0:
			if ps.precision == "" {
				return ps.padNumber(pyFloat(x)), nil
			}
			return fmt.Sprintf(ps.layout('g'), x), nil
		case 'd':
			return "", fmt.Errorf("%w: %q cannot format a float", ErrMalformedTemplate, ps.verb)
		case 's':
			return ps.padNumber(pyFloat(x)), nil
		case 'F':
			return fmt.Sprintf(ps.layout('f'), x), nil
		default:
			return fmt.Sprintf(ps.layout(ps.verb), x), nil
		}
	case int:
		switch ps.verb {
		case 0, 'd':
			if ps.precision != "" {
				return "", fmt.Errorf("%w: precision not allowed for integers", ErrMalformedTemplate)
			}
			return fmt.Sprintf(ps.layout('d'), x), nil
		case 's':
			return ps.padNumber(strconv.Itoa(x)), nil
		case 'F':
			return fmt.Sprintf(ps.layout('f'), float64(x)), nil
		default:
			return fmt.Sprintf(ps.layout(ps.verb), float64(x)), nil
		}
	case string:
		if ps.verb != 0 && ps.verb != 's' {
			return "", fmt.Errorf("%w: %q cannot format a string", ErrMalformedTemplate, ps.verb)
		}
		if ps.precision != "" {
			n, _ := strconv.Atoi(ps.precision)
			if n < len(x) {
				x = x[:n]
			}
		}
		return ps.padString(x), nil
	}
	return fmt.Sprint(v), nil
}

// padNumber right-aligns s in the field width.
func (ps formatSpec) padNumber(s string) string {
	if fill := ps.fill(s); fill > 0 {
		return strings.Repeat(" ", fill) + s
	}
	return s
}

// padString left-aligns s in the field width.
func (ps formatSpec) padString(s string) string {
	if fill := ps.fill(s); fill > 0 {
		return s + strings.Repeat(" ", fill)
	}
	return s
}

func (ps formatSpec) fill(s string) int {
	if ps.width == "" {
		return 0
	}
	w, _ := strconv.Atoi(ps.width)
	return w - len([]rune(s))
}

// pyFloat renders a float the way the settings file users expect: shortest
// representation, always with a decimal point.
func pyFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return 0
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case float64:
		return int(x)
	}
	return 0
}
