package frame

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/speedwagon-io/hevt/internal/model"
)

const sampleSize = 4

var (
	// ErrAssemblyTimeout means the attempt outlived the deadline; its samples were dropped.
	ErrAssemblyTimeout = errors.New("frame: assembly deadline exceeded")
	// ErrPeerChanged means a different sender interrupted the attempt.
	ErrPeerChanged = errors.New("frame: sender changed mid-frame")
	// ErrMisaligned means a payload was not a whole number of float32 samples.
	ErrMisaligned = errors.New("frame: payload is not a multiple of 4 bytes")
	// ErrAborted means the image socket was released or replaced mid-frame.
	ErrAborted = errors.New("frame: image socket released mid-frame")
)

type Options struct {
	Deadline time.Duration
	// LockPeer restarts the attempt when a datagram arrives from a sender other
	// than the one that began it. Off by default: the device is the only sender.
	LockPeer bool
	Now      func() time.Time
}

// Outcome reports what one datagram did to the assembly.
type Outcome struct {
	Complete bool
	Frame    model.Frame
	// Discarded is set when a partial frame was thrown away while handling the datagram.
	Discarded error
}

// Assembler rebuilds frames from an in-order stream of float32 datagrams.
// Samples are appended at the running offset; there is no reordering.
// Not safe for concurrent use: the image loop is its only caller.
type Assembler struct {
	deadline time.Duration
	lockPeer bool
	now      func() time.Time

	buf      [model.FramePixels]float32
	received int
	started  time.Time
	peer     string
	active   bool
}

func NewAssembler(opts Options) *Assembler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 2 * time.Second
	}
	return &Assembler{
		deadline: opts.Deadline,
		lockPeer: opts.LockPeer,
		now:      opts.Now,
	}
}

// Received is the number of samples in the current attempt.
func (a *Assembler) Received() int { return a.received }

// Feed appends one datagram. peer identifies the sender and is only used with LockPeer.
func (a *Assembler) Feed(payload []byte, peer string) Outcome {
	var out Outcome
	now := a.now()

	if a.active && now.Sub(a.started) > a.deadline {
		a.reset()
		out.Discarded = ErrAssemblyTimeout
		return out
	}

	if len(payload)%sampleSize != 0 {
		if a.active {
			out.Discarded = ErrMisaligned
		}
		a.reset()
		return out
	}

	if len(payload) == 0 {
		return out
	}

	if a.active && a.lockPeer && peer != a.peer {
		a.reset()
		out.Discarded = ErrPeerChanged
	}

	if !a.active {
		a.active = true
		a.started = now
		a.peer = peer
	}

	n := len(payload) / sampleSize
	if room := model.FramePixels - a.received; n > room {
		n = room
	}
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(payload[i*sampleSize:])
		a.buf[a.received+i] = math.Float32frombits(bits)
	}
	a.received += n

	if a.received == model.FramePixels {
		out.Complete = true
		out.Frame = model.FrameFromFlat(a.buf[:])
		a.reset()
	}

	return out
}

// Expire drops a stale partial frame. The image loop calls it when a receive
// times out so an abandoned attempt does not linger until the next datagram.
func (a *Assembler) Expire() bool {
	if !a.active || a.now().Sub(a.started) <= a.deadline {
		return false
	}
	a.reset()
	return true
}

// Abort drops the partial frame, if any. The image loop calls it when the
// socket it was reading from goes away so a rebound socket starts clean.
func (a *Assembler) Abort() bool {
	if !a.active {
		return false
	}
	a.reset()
	return true
}

func (a *Assembler) reset() {
	a.received = 0
	a.active = false
	a.peer = ""
	a.buf = [model.FramePixels]float32{}
}

// EncodeSamples packs samples as little-endian float32, the device's image format.
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*sampleSize)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*sampleSize:], math.Float32bits(v))
	}
	return out
}
