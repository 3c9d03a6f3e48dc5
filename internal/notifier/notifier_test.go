package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
	"github.com/speedwagon-io/hevt/internal/settings"
)

type fakeQueue struct {
	mu      sync.Mutex
	queued  []*model.Notification
	pushed  []*model.Notification
	full    bool
	results []model.PushResult
}

func (q *fakeQueue) Dispatch(n *model.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.queued = append(q.queued, n)
	return true
}

func (q *fakeQueue) PushNow(ctx context.Context, n *model.Notification) []model.PushResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, n)
	return q.results
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func enabledSettings(cooldown string) settings.Settings {
	s := settings.Defaults()
	s.Enabled = true
	s.AccessToken = "tok"
	s.GroupID = "C1"
	s.UserID = "U1"
	s.Cooldown = settings.Cooldown(cooldown)
	return s
}

func newTestNotifier(s settings.Settings) (*Notifier, *fakeQueue, *clock, *settings.MemoryStore) {
	q := &fakeQueue{}
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := settings.NewMemoryStore(s)
	return New(sl.Discard(), store, q, Options{Now: c.Now}), q, c, store
}

func normal() model.Report { return model.Report{MaxTemp: 25, AvgTemp: 24} }
func over() model.Report   { return model.Report{Alarm: true, MaxTemp: 45, AvgTemp: 35, DiffArea: 9} }

func run(n *Notifier, c *clock, seq ...model.Report) []Decision {
	out := make([]Decision, 0, len(seq))
	for _, r := range seq {
		out = append(out, n.Observe(r))
		c.Advance(time.Second)
	}
	return out
}

func fired(ds []Decision) []int {
	var idx []int
	for i, d := range ds {
		if d == DecisionFired {
			idx = append(idx, i)
		}
	}
	return idx
}

func TestDebounceWithCooldown(t *testing.T) {
	n, q, c, _ := newTestNotifier(enabledSettings("5"))

	got := fired(run(n, c, normal(), over(), over(), over()))
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected a single firing on the first Over, got %v", got)
	}
	if len(q.queued) != 1 {
		t.Fatalf("expected 1 queued notification, got %d", len(q.queued))
	}
}

func TestDebounceWithoutCooldown(t *testing.T) {
	n, q, c, _ := newTestNotifier(enabledSettings("0"))

	got := fired(run(n, c, normal(), over(), over(), over()))
	if len(got) != 3 {
		t.Fatalf("expected a firing on every Over, got %v", got)
	}
	if len(q.queued) != 3 {
		t.Fatalf("expected 3 queued notifications, got %d", len(q.queued))
	}
}

func TestSustainedOverFiresAfterCooldown(t *testing.T) {
	n, _, c, _ := newTestNotifier(enabledSettings("3"))

	// spacing 1s: fires at t=0 (Normal->Over), then at t=3.
	got := fired(run(n, c, over(), over(), over(), over(), over()))
	if len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Fatalf("unexpected firings %v", got)
	}
}

func TestInvalidCooldownMeansNoCooldown(t *testing.T) {
	for _, cd := range []string{"abc", "-10", ""} {
		n, _, c, _ := newTestNotifier(enabledSettings(cd))
		if got := fired(run(n, c, over(), over(), over())); len(got) != 3 {
			t.Fatalf("cooldown %q: expected every Over to fire, got %v", cd, got)
		}
	}
}

func TestSuppressedFiringStillTracksState(t *testing.T) {
	s := enabledSettings("0")
	s.Enabled = false
	n, q, c, store := newTestNotifier(s)

	ds := run(n, c, normal(), over(), over())
	if len(fired(ds)) != 0 || ds[1] != DecisionDisabled {
		t.Fatalf("expected no firing while disabled, got %v", ds)
	}
	if n.Session().LastState != model.StateOver {
		t.Fatalf("state should track Over while disabled")
	}

	store.Update(enabledSettings("0"))

	if d := n.Observe(over()); d == DecisionFired {
		t.Fatalf("re-enabling during a sustained alarm must not fire immediately")
	}
	c.Advance(time.Second)

	ds = run(n, c, normal(), over())
	if got := fired(ds); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected a firing on the fresh Normal->Over, got %v", ds)
	}
	if len(q.queued) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(q.queued))
	}
}

func TestClearedTargetsSuppressFiring(t *testing.T) {
	s := enabledSettings("0")
	s.GroupID, s.UserID = "", ""
	n, q, c, store := newTestNotifier(s)

	if ds := run(n, c, normal(), over()); ds[1] != DecisionNoTargets {
		t.Fatalf("expected no_targets, got %v", ds)
	}

	s.AccessToken = ""
	s.UserID = "U1"
	store.Update(s)
	if d := n.Observe(over()); d != DecisionNoCredentials {
		t.Fatalf("expected no_credentials, got %s", d)
	}
	if len(q.queued) != 0 {
		t.Fatalf("nothing should be queued, got %d", len(q.queued))
	}
}

func TestFiredNotificationSnapshot(t *testing.T) {
	s := enabledSettings("60")
	s.Template = "Max={max:.1f} Area={diff_area} @ {now}"
	n, q, _, store := newTestNotifier(s)

	if d := n.Observe(over()); d != DecisionFired {
		t.Fatalf("expected fired, got %s", d)
	}

	s.GroupID = "C2"
	store.Update(s)

	note := q.queued[0]
	if note.Text != "Max=45.0 Area=9 @ 2024-01-01 12:00:00" {
		t.Fatalf("unexpected text %q", note.Text)
	}
	if len(note.Targets) != 2 || note.Targets[0].ID != "C1" || note.Targets[1].ID != "U1" {
		t.Fatalf("targets should be captured at decision time, got %+v", note.Targets)
	}
	if note.Credentials.AccessToken != "tok" {
		t.Fatalf("credentials not captured")
	}

	sess := n.Session()
	if sess.LastNotifiedAt == nil || !sess.LastNotifiedAt.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("lastNotifiedAt not set at decision time: %+v", sess)
	}
}

func TestDroppedNotificationStillStartsCooldown(t *testing.T) {
	n, q, c, _ := newTestNotifier(enabledSettings("5"))
	q.full = true

	ds := run(n, c, over(), over())
	if ds[0] != DecisionDropped || ds[1] != DecisionCooldown {
		t.Fatalf("unexpected decisions %v", ds)
	}
}

func TestSendTest(t *testing.T) {
	n, q, _, store := newTestNotifier(enabledSettings("60"))
	q.results = []model.PushResult{{Target: model.Target{ID: "C1"}, OK: true, StatusCode: 200}}

	results, err := n.SendTest(context.Background())
	if err != nil {
		t.Fatalf("SendTest: %v", err)
	}
	if len(results) != 1 || len(q.pushed) != 1 {
		t.Fatalf("expected one synchronous push, got %d results %d pushes", len(results), len(q.pushed))
	}
	if !strings.HasPrefix(q.pushed[0].Text, "[TEST] ⚠️ 溫度警報：Max=38.50°C") {
		t.Fatalf("unexpected test text %q", q.pushed[0].Text)
	}

	s := enabledSettings("60")
	s.Enabled = false
	store.Update(s)
	if _, err := n.SendTest(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	s = enabledSettings("60")
	s.AccessToken = " "
	store.Update(s)
	if _, err := n.SendTest(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}

	s = enabledSettings("60")
	s.GroupID, s.UserID = "", ""
	store.Update(s)
	if _, err := n.SendTest(context.Background()); !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestObserveOversizedTemplateUsesFallback(t *testing.T) {
	s := enabledSettings("0")
	s.Template = "{now:4611686018427387904}"
	n, q, _, _ := newTestNotifier(s)

	if d := n.Observe(over()); d != DecisionFired {
		t.Fatalf("expected fired, got %s", d)
	}
	if len(q.queued) != 1 {
		t.Fatalf("expected one queued notification, got %d", len(q.queued))
	}
	want := "⚠️ 警報：Max=45.00°C, Avg=35.00°C, DiffArea=9"
	if q.queued[0].Text != want {
		t.Fatalf("got %q, want %q", q.queued[0].Text, want)
	}
}
