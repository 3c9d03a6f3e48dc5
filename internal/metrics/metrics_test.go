package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DatagramReceived("report")
	m.DatagramReceived("report")
	m.DatagramReceived("image")
	if got := testutil.ToFloat64(m.datagrams.WithLabelValues("report")); got != 2 {
		t.Fatalf("expected 2 report datagrams, got %f", got)
	}

	m.FrameDiscarded("timeout")
	if got := testutil.ToFloat64(m.discarded.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("expected 1 discarded frame, got %f", got)
	}

	m.AlarmState(true)
	if got := testutil.ToFloat64(m.alarmState); got != 1 {
		t.Fatalf("expected alarm gauge 1, got %f", got)
	}
	m.AlarmState(false)
	if got := testutil.ToFloat64(m.alarmState); got != 0 {
		t.Fatalf("expected alarm gauge 0, got %f", got)
	}

	m.PushResult(true)
	m.PushResult(false)
	m.PushResult(false)
	if got := testutil.ToFloat64(m.pushes.WithLabelValues("failed")); got != 2 {
		t.Fatalf("expected 2 failed pushes, got %f", got)
	}

	m.PushDuration(0.2)
	if n := testutil.CollectAndCount(m.pushLatency); n != 1 {
		t.Fatalf("expected latency histogram to be collected, got %d", n)
	}

	m.QueueLength(3)
	if got := testutil.ToFloat64(m.queueLength); got != 3 {
		t.Fatalf("expected queue length 3, got %f", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DatagramReceived("report")
	m.DecodeError()
	m.FrameAssembled()
	m.Decision("fired")
	m.PushResult(true)
}
