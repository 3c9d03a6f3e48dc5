package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/speedwagon-io/hevt/internal/metrics"
	"github.com/speedwagon-io/hevt/internal/model"
	"github.com/speedwagon-io/hevt/internal/settings"
)

// Decision is what Observe did with one report.
type Decision string

const (
	DecisionIdle          Decision = "idle"
	DecisionFired         Decision = "fired"
	DecisionCooldown      Decision = "cooldown"
	DecisionDisabled      Decision = "disabled"
	DecisionNoCredentials Decision = "no_credentials"
	DecisionNoTargets     Decision = "no_targets"
	DecisionDropped       Decision = "dropped"
)

var (
	ErrDisabled      = errors.New("notifications are disabled")
	ErrNoCredentials = errors.New("access token is not configured")
	ErrNoTargets     = errors.New("no group or user id configured")
)

// Queue hands notifications to the transport. Dispatch must not block.
type Queue interface {
	Dispatch(n *model.Notification) bool
	PushNow(ctx context.Context, n *model.Notification) []model.PushResult
}

// Session is the alarm memory carried between reports.
type Session struct {
	LastState      model.AlarmState `json:"last_state"`
	LastNotifiedAt *time.Time       `json:"last_notified_at,omitempty"`
}

type Options struct {
	Now     func() time.Time
	Metrics *metrics.Metrics
}

// Notifier decides, per report, whether an alarm notification is due.
type Notifier struct {
	log     *slog.Logger
	store   settings.Store
	queue   Queue
	now     func() time.Time
	metrics *metrics.Metrics

	mu             sync.Mutex
	lastState      model.AlarmState
	lastNotifiedAt time.Time
	notified       bool
}

func New(log *slog.Logger, store settings.Store, queue Queue, opts Options) *Notifier {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Notifier{
		log:     log.With(slog.String("component", "notifier")),
		store:   store,
		queue:   queue,
		now:     now,
		metrics: opts.Metrics,
	}
}

// Observe runs the alarm state machine for one report. A notification is
// fired on Normal to Over, and again while Over once the cooldown since the
// last notification has elapsed. It never waits for the push.
func (n *Notifier) Observe(r model.Report) Decision {
	cfg := n.store.Snapshot()
	now := n.now()
	state := r.State()

	n.mu.Lock()
	defer n.mu.Unlock()

	prev := n.lastState
	n.lastState = state
	n.metrics.AlarmState(state == model.StateOver)

	if state != model.StateOver {
		// The episode is over; a later Over starts fresh.
		n.notified = false
		return DecisionIdle
	}

	decision := n.decideLocked(cfg, prev, now)
	if decision != DecisionFired {
		n.metrics.Decision(string(decision))
		return decision
	}

	text := Render(cfg.Template, FieldsFromReport(r, now))
	note := model.NewNotification(text, cfg.Credentials(), cfg.Targets())

	n.lastNotifiedAt = now
	n.notified = true

	if !n.queue.Dispatch(note) {
		n.log.Warn("notification dropped, dispatch queue full", slog.String("id", note.ID))
		n.metrics.Decision(string(DecisionDropped))
		return DecisionDropped
	}

	n.log.Info("alarm notification queued",
		slog.String("id", note.ID),
		slog.Int("targets", len(note.Targets)),
		slog.Bool("escalation", prev == model.StateOver),
	)
	n.metrics.Decision(string(DecisionFired))
	return DecisionFired
}

func (n *Notifier) decideLocked(cfg settings.Settings, prev model.AlarmState, now time.Time) Decision {
	if !cfg.Enabled {
		return DecisionDisabled
	}
	if cfg.Credentials().AccessToken == "" {
		return DecisionNoCredentials
	}
	if len(cfg.Targets()) == 0 {
		return DecisionNoTargets
	}

	if prev == model.StateNormal {
		return DecisionFired
	}
	if !n.notified {
		return DecisionCooldown
	}
	if now.Sub(n.lastNotifiedAt) >= cfg.CooldownDuration() {
		return DecisionFired
	}
	return DecisionCooldown
}

func (n *Notifier) Session() Session {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := Session{LastState: n.lastState}
	if n.notified {
		at := n.lastNotifiedAt
		s.LastNotifiedAt = &at
	}
	return s
}

// SendTest pushes a "[TEST]" message built from sample stats to every
// configured target and waits for the results.
func (n *Notifier) SendTest(ctx context.Context) ([]model.PushResult, error) {
	cfg := n.store.Snapshot()

	switch {
	case !cfg.Enabled:
		return nil, ErrDisabled
	case cfg.Credentials().AccessToken == "":
		return nil, ErrNoCredentials
	case len(cfg.Targets()) == 0:
		return nil, ErrNoTargets
	}

	text := "[TEST] " + Render(cfg.Template, SampleFields(n.now()))
	note := model.NewNotification(text, cfg.Credentials(), cfg.Targets())

	n.log.Info("sending test notification", slog.String("id", note.ID), slog.Int("targets", len(note.Targets)))
	return n.queue.PushNow(ctx, note), nil
}
