package display

import (
	"sync"
	"time"

	"github.com/speedwagon-io/hevt/internal/frame"
	"github.com/speedwagon-io/hevt/internal/model"
)

// Sink receives every decoded report and every committed frame. Calls come
// from the receive loops and must not block.
type Sink interface {
	OnReport(r model.Report, at time.Time)
	OnFrame(s frame.Snapshot)
}

// Multi fans out to several sinks in order.
type Multi []Sink

func (m Multi) OnReport(r model.Report, at time.Time) {
	for _, s := range m {
		s.OnReport(r, at)
	}
}

func (m Multi) OnFrame(s frame.Snapshot) {
	for _, sink := range m {
		sink.OnFrame(s)
	}
}

type ReportView struct {
	Report     model.Report `json:"report"`
	State      string       `json:"state"`
	ReceivedAt time.Time    `json:"received_at"`
}

// State keeps the latest report and the latest frame snapshot for readers.
// A frame, its predecessor and their mask are always published together.
type State struct {
	mu     sync.RWMutex
	report *ReportView
	frame  *frame.Snapshot
}

func NewState() *State {
	return &State{}
}

func (s *State) OnReport(r model.Report, at time.Time) {
	v := &ReportView{Report: r, State: r.State().String(), ReceivedAt: at}
	s.mu.Lock()
	s.report = v
	s.mu.Unlock()
}

func (s *State) OnFrame(snap frame.Snapshot) {
	s.mu.Lock()
	s.frame = &snap
	s.mu.Unlock()
}

func (s *State) LatestReport() (ReportView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return ReportView{}, false
	}
	return *s.report, true
}

func (s *State) LatestFrame() (frame.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return frame.Snapshot{}, false
	}
	return *s.frame, true
}

// FrameView is the JSON shape of a frame snapshot: row-major pixels and mask.
type FrameView struct {
	Seq        uint64    `json:"seq"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Min        float32   `json:"min"`
	Max        float32   `json:"max"`
	DisplayMin float64   `json:"display_min"`
	DisplayMax float64   `json:"display_max"`
	Pixels     []float32 `json:"pixels"`
	Mask       []bool    `json:"mask"`
	DiffCount  int       `json:"diff_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Range is the color scale advertised to display clients.
type Range struct {
	Min float64
	Max float64
}

func NewFrameView(s frame.Snapshot, r Range) FrameView {
	current := s.Current
	minT, maxT := current.MinMax()

	mask := make([]bool, 0, model.FramePixels)
	for i := range s.Mask {
		mask = append(mask, s.Mask[i][:]...)
	}

	return FrameView{
		Seq:        s.Seq,
		Rows:       model.FrameRows,
		Cols:       model.FrameCols,
		Min:        minT,
		Max:        maxT,
		DisplayMin: r.Min,
		DisplayMax: r.Max,
		Pixels:     current.Flat(),
		Mask:       mask,
		DiffCount:  s.Mask.Count(),
		UpdatedAt:  s.UpdatedAt,
	}
}
