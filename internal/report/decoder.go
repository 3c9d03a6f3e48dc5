package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/speedwagon-io/hevt/internal/model"
)

const Marker = "REPORT"

// fieldCount is the number of key=value fields after the marker.
const fieldCount = 11

// ErrNotReport is returned for lines that do not start with the marker.
// The receive loop ignores these silently.
var ErrNotReport = errors.New("report: not a report line")

// DecodeError describes a malformed report line.
type DecodeError struct {
	Field int // 1-based position after the marker, 0 for line-level problems
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("report: %v", e.Err)
	}
	return fmt.Sprintf("report: field %d (%q): %v", e.Field, e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errMissingValue = errors.New("missing '=' separator")

// Decode parses one REPORT line. Fields are positional; key names are not checked.
// Fields beyond the eleventh are ignored.
func Decode(data []byte) (model.Report, error) {
	line := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if !strings.HasPrefix(line, Marker) {
		return model.Report{}, ErrNotReport
	}

	parts := strings.Split(line, ",")
	if len(parts)-1 < fieldCount {
		return model.Report{}, &DecodeError{
			Err: fmt.Errorf("expected %d fields, got %d", fieldCount, len(parts)-1),
		}
	}

	d := fieldDecoder{parts: parts}

	var r model.Report
	r.Alarm = d.int(1) != 0
	r.MaxTemp = d.float(2)
	r.MinTemp = d.float(3)
	r.AvgTemp = d.float(4)
	r.MaxSlope = d.float(5)
	r.AvgSlope = d.float(6)
	r.OverCount = d.int(7)
	r.DiffArea = d.int(8)
	r.AvgTempTrend = d.float(9)
	r.MaxSlopeTrend = d.float(10)
	r.DiffAreaTrend = d.float(11)

	if d.err != nil {
		return model.Report{}, d.err
	}
	return r, nil
}

// fieldDecoder keeps the first error and turns later calls into no-ops.
type fieldDecoder struct {
	parts []string
	err   error
}

func (d *fieldDecoder) value(i int) (string, bool) {
	if d.err != nil {
		return "", false
	}
	_, v, ok := strings.Cut(d.parts[i], "=")
	if !ok {
		d.err = &DecodeError{Field: i, Raw: d.parts[i], Err: errMissingValue}
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (d *fieldDecoder) int(i int) int {
	v, ok := d.value(i)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		d.err = &DecodeError{Field: i, Raw: d.parts[i], Err: err}
		return 0
	}
	return n
}

func (d *fieldDecoder) float(i int) float64 {
	v, ok := d.value(i)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		d.err = &DecodeError{Field: i, Raw: d.parts[i], Err: err}
		return 0
	}
	return f
}
