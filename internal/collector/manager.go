package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/speedwagon-io/hevt/internal/channel"
	"github.com/speedwagon-io/hevt/internal/config"
	"github.com/speedwagon-io/hevt/internal/display"
	"github.com/speedwagon-io/hevt/internal/frame"
	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/metrics"
)

const cleanupInterval = time.Hour

// Janitor prunes old records. history.Journal implements it.
type Janitor interface {
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

type Deps struct {
	Pair     *channel.Pair
	Frames   *frame.Store
	Sink     display.Sink
	Observer AlarmObserver
	Metrics  *metrics.Metrics
	Janitor  Janitor
	Now      func() time.Time
}

// NetworkStatus describes the active addressing.
type NetworkStatus struct {
	BindIP     string `json:"bind_ip"`
	DeviceIP   string `json:"device_ip"`
	ReportPort int    `json:"report_port"`
	ImagePort  int    `json:"image_port"`
	LocalIP    string `json:"local_ip"`
	Ready      bool   `json:"ready"`
}

// Manager owns the datagram channel and runs the report and image loops.
type Manager struct {
	log         *slog.Logger
	pair        *channel.Pair
	assembler   *frame.Assembler
	frames      *frame.Store
	sink        display.Sink
	observer    AlarmObserver
	metrics     *metrics.Metrics
	janitor     Janitor
	historyAge  time.Duration
	maxDatagram int
	now         func() time.Time

	netMu   sync.RWMutex
	network config.NetworkConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(log *slog.Logger, cfg *config.Config, deps Deps) *Manager {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sink := deps.Sink
	if sink == nil {
		sink = display.Multi(nil)
	}

	return &Manager{
		log:  log.With(slog.String("component", "collector")),
		pair: deps.Pair,
		assembler: frame.NewAssembler(frame.Options{
			Deadline: cfg.Frame.Deadline,
			LockPeer: cfg.Frame.LockPeer,
			Now:      now,
		}),
		frames:      deps.Frames,
		sink:        sink,
		observer:    deps.Observer,
		metrics:     deps.Metrics,
		janitor:     deps.Janitor,
		historyAge:  cfg.History.MaxAge,
		maxDatagram: cfg.Network.MaxDatagram,
		now:         now,
		network:     cfg.Network,
	}
}

// Start launches the receive loops and binds both sockets. The loops run
// even when the bind fails; they wait for a later ApplyNetwork.
func (m *Manager) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(3)
	go m.reportLoop(loopCtx)
	go m.imageLoop(loopCtx)
	go m.housekeeping(loopCtx)

	nc := m.Network()
	m.log.Info("starting receive loops",
		slog.String("report", nc.ReportAddr()),
		slog.String("image", nc.ImageAddr()),
		slog.String("device", nc.DeviceAddr()),
	)

	m.netMu.Lock()
	defer m.netMu.Unlock()
	if err := m.pair.Rebind(ctx, endpoints(nc)); err != nil {
		return fmt.Errorf("failed to bind sockets: %w", err)
	}
	return nil
}

// Stop cancels the loops, waits for them and releases the sockets.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	if err := m.pair.Close(); err != nil {
		m.log.Error("failed to close sockets", sl.Err(err))
	}
	m.log.Info("collector stopped")
}

// ApplyNetwork switches to nc: the old sockets are released, then new ones
// bound. On failure the channel stays not ready until the next successful call.
func (m *Manager) ApplyNetwork(ctx context.Context, nc config.NetworkConfig) error {
	if err := nc.Validate(); err != nil {
		return err
	}

	m.netMu.Lock()
	defer m.netMu.Unlock()

	if err := m.pair.Rebind(ctx, endpoints(nc)); err != nil {
		m.network = nc
		return err
	}
	m.network = nc

	m.log.Info("network applied",
		slog.String("bind_ip", nc.BindIP),
		slog.String("device_ip", nc.DeviceIP),
		slog.Int("report_port", nc.ReportPort),
		slog.Int("image_port", nc.ImagePort),
	)
	return nil
}

func (m *Manager) Network() config.NetworkConfig {
	m.netMu.RLock()
	defer m.netMu.RUnlock()
	return m.network
}

// DeviceAddr is where commands go; it follows ApplyNetwork.
func (m *Manager) DeviceAddr() string {
	return m.Network().DeviceAddr()
}

func (m *Manager) Status() NetworkStatus {
	nc := m.Network()
	return NetworkStatus{
		BindIP:     nc.BindIP,
		DeviceIP:   nc.DeviceIP,
		ReportPort: nc.ReportPort,
		ImagePort:  nc.ImagePort,
		LocalIP:    channel.LocalIPFor(nc.DeviceIP),
		Ready:      m.pair.Ready(),
	}
}

func (m *Manager) Ready() bool {
	return m.pair.Ready()
}

func (m *Manager) housekeeping(ctx context.Context) {
	defer m.wg.Done()

	if m.janitor == nil || m.historyAge <= 0 {
		return
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	m.cleanup(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx)
		}
	}
}

func (m *Manager) cleanup(ctx context.Context) {
	if err := m.janitor.Cleanup(ctx, m.historyAge); err != nil {
		m.log.Error("failed to cleanup push history", sl.Err(err))
	}
}

func endpoints(nc config.NetworkConfig) channel.Endpoints {
	return channel.Endpoints{
		ReportAddr:    nc.ReportAddr(),
		ImageAddr:     nc.ImageAddr(),
		ReportTimeout: nc.ReportTimeout,
		ImageTimeout:  nc.ImageTimeout,
	}
}
