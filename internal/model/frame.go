package model

import "math"

const (
	FrameRows   = 24
	FrameCols   = 32
	FramePixels = FrameRows * FrameCols
)

// Frame is a fully assembled temperature grid, row-major.
type Frame [FrameRows][FrameCols]float32

// DiffMask marks cells whose temperature moved beyond a threshold between two frames.
type DiffMask [FrameRows][FrameCols]bool

// FrameFromFlat reshapes a row-major sample slice. Missing samples stay zero,
// extra samples are ignored.
func FrameFromFlat(flat []float32) Frame {
	var f Frame
	for i := 0; i < FramePixels && i < len(flat); i++ {
		f[i/FrameCols][i%FrameCols] = flat[i]
	}
	return f
}

func (f *Frame) Flat() []float32 {
	out := make([]float32, 0, FramePixels)
	for r := range f {
		out = append(out, f[r][:]...)
	}
	return out
}

func (f *Frame) MinMax() (float32, float32) {
	lo, hi := f[0][0], f[0][0]
	for r := range f {
		for _, v := range f[r] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

func ComputeDiffMask(current, previous *Frame, threshold float32) DiffMask {
	var m DiffMask
	for r := 0; r < FrameRows; r++ {
		for c := 0; c < FrameCols; c++ {
			d := math.Abs(float64(current[r][c]) - float64(previous[r][c]))
			m[r][c] = d > float64(threshold)
		}
	}
	return m
}

func (m *DiffMask) Count() int {
	n := 0
	for r := range m {
		for _, v := range m[r] {
			if v {
				n++
			}
		}
	}
	return n
}
