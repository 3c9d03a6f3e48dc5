package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady means the sockets are unbound or being rebound. Callers retry.
	ErrNotReady = errors.New("channel: sockets not ready")
	// ErrTimeout means no datagram arrived before the receive deadline.
	ErrTimeout = errors.New("channel: receive timeout")
)

// NetworkError reports a bind or send failure.
type NetworkError struct {
	Op   string
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("channel: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
