package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/speedwagon-io/hevt/internal/channel"
	"github.com/speedwagon-io/hevt/internal/frame"
	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
	"github.com/speedwagon-io/hevt/internal/notifier"
	"github.com/speedwagon-io/hevt/internal/report"
)

const (
	channelReport = "report"
	channelImage  = "image"

	retryDelay = 100 * time.Millisecond
)

// AlarmObserver is fed every decoded report. notifier.Notifier implements it.
type AlarmObserver interface {
	Observe(r model.Report) notifier.Decision
}

type action int

const (
	actionContinue action = iota
	actionBackoff
)

// receivePolicy maps a receive failure to what the loop does next. No
// receive failure stops a loop.
func receivePolicy(err error) action {
	switch {
	case errors.Is(err, channel.ErrTimeout):
		return actionContinue
	case errors.Is(err, channel.ErrNotReady):
		return actionBackoff
	default:
		return actionBackoff
	}
}

func (m *Manager) reportLoop(ctx context.Context) {
	defer m.wg.Done()
	buf := make([]byte, m.maxDatagram)

	for ctx.Err() == nil {
		sock, err := m.pair.ReportSocket()
		if err != nil {
			m.sleep(ctx, retryDelay)
			continue
		}

		n, peer, err := sock.Receive(buf)
		if err != nil {
			m.onReceiveError(ctx, channelReport, err)
			continue
		}

		m.handleReport(buf[:n], peer)
	}

	m.log.Debug("report loop stopped")
}

func (m *Manager) handleReport(data []byte, peer *net.UDPAddr) {
	defer m.recoverDatagram(channelReport)
	m.metrics.DatagramReceived(channelReport)

	r, err := report.Decode(data)
	if errors.Is(err, report.ErrNotReport) {
		return
	}
	if err != nil {
		m.metrics.DecodeError()
		m.log.Debug("dropping malformed report", slog.String("peer", peer.String()), sl.Err(err))
		return
	}

	m.sink.OnReport(r, m.now())
	if m.observer != nil {
		m.observer.Observe(r)
	}
}

func (m *Manager) imageLoop(ctx context.Context) {
	defer m.wg.Done()
	buf := make([]byte, m.maxDatagram)

	var current *channel.Socket
	for ctx.Err() == nil {
		sock, err := m.pair.ImageSocket()
		if err != nil {
			m.abortFrame()
			current = nil
			m.sleep(ctx, retryDelay)
			continue
		}
		if sock != current {
			// Samples never span two sockets.
			m.abortFrame()
			current = sock
		}

		n, peer, err := sock.Receive(buf)
		if err != nil {
			switch {
			case errors.Is(err, channel.ErrTimeout):
				if m.assembler.Expire() {
					m.discarded(frame.ErrAssemblyTimeout)
				}
			case errors.Is(err, channel.ErrNotReady):
				m.abortFrame()
				current = nil
			}
			m.onReceiveError(ctx, channelImage, err)
			continue
		}

		m.handleImage(buf[:n], peer)
	}

	m.log.Debug("image loop stopped")
}

func (m *Manager) handleImage(data []byte, peer *net.UDPAddr) {
	defer m.recoverDatagram(channelImage)
	m.metrics.DatagramReceived(channelImage)

	out := m.assembler.Feed(data, peer.String())
	if out.Discarded != nil {
		m.discarded(out.Discarded)
	}
	if !out.Complete {
		return
	}

	snap := m.frames.Commit(out.Frame, m.now())
	m.metrics.FrameAssembled()
	m.sink.OnFrame(snap)
}

func (m *Manager) discarded(reason error) {
	label := "other"
	switch {
	case errors.Is(reason, frame.ErrAssemblyTimeout):
		label = "timeout"
	case errors.Is(reason, frame.ErrPeerChanged):
		label = "peer_changed"
	case errors.Is(reason, frame.ErrMisaligned):
		label = "misaligned"
	case errors.Is(reason, frame.ErrAborted):
		label = "aborted"
	}
	m.metrics.FrameDiscarded(label)
	m.log.Debug("partial frame discarded", slog.String("reason", label))
}

func (m *Manager) abortFrame() {
	if m.assembler.Abort() {
		m.discarded(frame.ErrAborted)
	}
}

// recoverDatagram drops the datagram being handled if handling it panicked.
// The loop goes on with the next one.
func (m *Manager) recoverDatagram(ch string) {
	if r := recover(); r != nil {
		m.metrics.ReceiveError(ch)
		m.log.Error("dropping datagram after panic",
			slog.String("channel", ch),
			sl.Err(fmt.Errorf("panic: %v", r)),
		)
	}
}

func (m *Manager) onReceiveError(ctx context.Context, ch string, err error) {
	switch receivePolicy(err) {
	case actionContinue:
		return
	case actionBackoff:
		if !errors.Is(err, channel.ErrNotReady) {
			m.metrics.ReceiveError(ch)
			m.log.Warn("receive failed", slog.String("channel", ch), sl.Err(err))
		}
		m.sleep(ctx, retryDelay)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
