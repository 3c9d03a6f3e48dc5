package frame

import (
	"sync"
	"time"

	"github.com/speedwagon-io/hevt/internal/model"
)

// Snapshot is a committed frame together with its DiffMask. The fields are
// published together so readers never see a mask from another generation.
type Snapshot struct {
	Seq       uint64         `json:"seq"`
	Current   model.Frame    `json:"current"`
	Previous  model.Frame    `json:"previous"`
	Mask      model.DiffMask `json:"mask"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store holds the current and previous frame generations. Commit is called
// only by the image loop.
type Store struct {
	threshold float32

	mu   sync.RWMutex
	snap Snapshot
}

func NewStore(threshold float64) *Store {
	return &Store{threshold: float32(threshold)}
}

// Commit computes the DiffMask of f against the current frame, then shifts
// current into previous and installs f.
func (s *Store) Commit(f model.Frame, at time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	mask := model.ComputeDiffMask(&f, &s.snap.Current, s.threshold)
	s.snap = Snapshot{
		Seq:       s.snap.Seq + 1,
		Current:   f,
		Previous:  s.snap.Current,
		Mask:      mask,
		UpdatedAt: at,
	}
	return s.snap
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
