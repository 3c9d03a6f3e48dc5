package channel

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
)

type Endpoints struct {
	ReportAddr    string
	ImageAddr     string
	ReportTimeout time.Duration
	ImageTimeout  time.Duration
}

// Pair owns the report/command socket and the image socket. Rebind releases
// both before creating replacements; receivers observe ErrNotReady meanwhile.
type Pair struct {
	log *slog.Logger

	mu        sync.RWMutex
	report    *Socket
	image     *Socket
	endpoints Endpoints
	ready     atomic.Bool
}

func NewPair(log *slog.Logger) *Pair {
	return &Pair{log: log.With(slog.String("component", "channel"))}
}

func (p *Pair) Ready() bool { return p.ready.Load() }

func (p *Pair) Endpoints() Endpoints {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints
}

// Rebind closes the current sockets and binds new ones. On failure both
// sockets are released and the pair stays not ready.
func (p *Pair) Rebind(ctx context.Context, ep Endpoints) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ready.Store(false)
	p.closeLocked()

	report, err := Bind(ctx, ep.ReportAddr, ep.ReportTimeout)
	if err != nil {
		p.log.Error("failed to bind report socket", slog.String("addr", ep.ReportAddr), sl.Err(err))
		return err
	}

	image, err := Bind(ctx, ep.ImageAddr, ep.ImageTimeout)
	if err != nil {
		report.Close()
		p.log.Error("failed to bind image socket", slog.String("addr", ep.ImageAddr), sl.Err(err))
		return err
	}

	p.report = report
	p.image = image
	p.endpoints = ep
	p.ready.Store(true)

	p.log.Info("sockets bound",
		slog.String("report", report.LocalAddr().String()),
		slog.String("image", image.LocalAddr().String()),
	)
	return nil
}

func (p *Pair) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready.Store(false)
	return p.closeLocked()
}

func (p *Pair) closeLocked() error {
	var err error
	for _, s := range []*Socket{p.report, p.image} {
		if s == nil {
			continue
		}
		if e := s.Close(); e != nil && !errors.Is(e, net.ErrClosed) {
			err = errors.Join(err, e)
		}
	}
	p.report = nil
	p.image = nil
	return err
}

func (p *Pair) ReportSocket() (*Socket, error) {
	return p.socket(func() *Socket { return p.report })
}

func (p *Pair) ImageSocket() (*Socket, error) {
	return p.socket(func() *Socket { return p.image })
}

func (p *Pair) socket(pick func() *Socket) (*Socket, error) {
	if !p.ready.Load() {
		return nil, ErrNotReady
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := pick()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// SendReport sends b from the report socket, which doubles as the command socket.
func (p *Pair) SendReport(b []byte, peer *net.UDPAddr) error {
	s, err := p.ReportSocket()
	if err != nil {
		return err
	}
	return s.Send(b, peer)
}
