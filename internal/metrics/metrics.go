package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hevt"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	datagrams     *prometheus.CounterVec
	receiveErrors *prometheus.CounterVec
	decodeErrors  prometheus.Counter
	frames        prometheus.Counter
	discarded     *prometheus.CounterVec
	alarmState    prometheus.Gauge
	decisions     *prometheus.CounterVec
	queueLength   prometheus.Gauge
	queueDrops    prometheus.Counter
	pushes        *prometheus.CounterVec
	pushLatency   prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Datagrams received per channel.",
		}, []string{"channel"}),
		receiveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Receive failures other than timeouts, per channel.",
		}, []string{"channel"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_decode_errors_total",
			Help:      "Report datagrams dropped because they could not be decoded.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_assembled_total",
			Help:      "Frames fully assembled and committed.",
		}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_discarded_total",
			Help:      "Partial frames discarded, by reason.",
		}, []string{"reason"}),
		alarmState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_over",
			Help:      "1 while the last report carried the alarm flag.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifier_decisions_total",
			Help:      "Alarm notifier decisions on alarm reports, by outcome.",
		}, []string{"outcome"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notify_queue_length",
			Help:      "Notifications waiting for a dispatch worker.",
		}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_queue_dropped_total",
			Help:      "Notifications dropped because the dispatch queue was full.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_results_total",
			Help:      "Per-target push results.",
		}, []string{"result"}),
		pushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "Time to push one notification to all of its targets.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	reg.MustRegister(
		m.datagrams, m.receiveErrors, m.decodeErrors, m.frames, m.discarded,
		m.alarmState, m.decisions, m.queueLength, m.queueDrops, m.pushes, m.pushLatency,
	)

	return m
}

func (m *Metrics) DatagramReceived(channel string) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(channel).Inc()
}

func (m *Metrics) ReceiveError(channel string) {
	if m == nil {
		return
	}
	m.receiveErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) FrameAssembled() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

func (m *Metrics) FrameDiscarded(reason string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(reason).Inc()
}

func (m *Metrics) AlarmState(over bool) {
	if m == nil {
		return
	}
	if over {
		m.alarmState.Set(1)
		return
	}
	m.alarmState.Set(0)
}

func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

func (m *Metrics) QueueDropped() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

func (m *Metrics) PushResult(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.pushes.WithLabelValues("ok").Inc()
		return
	}
	m.pushes.WithLabelValues("failed").Inc()
}

func (m *Metrics) PushDuration(seconds float64) {
	if m == nil {
		return
	}
	m.pushLatency.Observe(seconds)
}
