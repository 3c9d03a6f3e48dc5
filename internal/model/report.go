package model

type AlarmState int

const (
	StateNormal AlarmState = iota
	StateOver
)

func (s AlarmState) String() string {
	if s == StateOver {
		return "over"
	}
	return "normal"
}

func (s AlarmState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Report is one decoded REPORT datagram. Field order matches the wire order.
type Report struct {
	Alarm         bool    `json:"alarm"`
	MaxTemp       float64 `json:"max_temp"`
	MinTemp       float64 `json:"min_temp"`
	AvgTemp       float64 `json:"avg_temp"`
	MaxSlope      float64 `json:"max_slope"`
	AvgSlope      float64 `json:"avg_slope"`
	OverCount     int     `json:"over_count"`
	DiffArea      int     `json:"diff_area"`
	AvgTempTrend  float64 `json:"avg_temp_trend"`
	MaxSlopeTrend float64 `json:"max_slope_trend"`
	DiffAreaTrend float64 `json:"diff_area_trend"`
}

func (r Report) State() AlarmState {
	if r.Alarm {
		return StateOver
	}
	return StateNormal
}
