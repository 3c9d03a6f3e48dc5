package report

import (
	"strconv"
	"strings"

	"github.com/speedwagon-io/hevt/internal/model"
)

// Encode renders r in the device's REPORT format.
func Encode(r model.Report) string {
	alarm := "0"
	if r.Alarm {
		alarm = "1"
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	fields := []string{
		Marker,
		"alarm=" + alarm,
		"D1=" + f(r.MaxTemp),
		"D2=" + f(r.MinTemp),
		"D3=" + f(r.AvgTemp),
		"D4=" + f(r.MaxSlope),
		"D5=" + f(r.AvgSlope),
		"D6=" + strconv.Itoa(r.OverCount),
		"D7=" + strconv.Itoa(r.DiffArea),
		"D8=" + f(r.AvgTempTrend),
		"D9=" + f(r.MaxSlopeTrend),
		"D10=" + f(r.DiffAreaTrend),
	}
	return strings.Join(fields, ",")
}
