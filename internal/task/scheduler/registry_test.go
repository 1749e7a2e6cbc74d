package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"winova/internal/eventbus"
	"winova/internal/schedule"
	"winova/internal/task/engine"
	logx "winova/pkg/logx"
)

func alertPayload(owner string) Payload {
	return Payload{Alert: &schedule.AlertScheduleSpec{OwnerID: owner, Kind: schedule.AlertComplianceDeadline, Title: "t"}}
}

func oneShotAt(at time.Time) FireSpec {
	return FireSpec{Rule: schedule.OneShot(at), FireAt: at, Enabled: true}
}

// everyRule fires at anchor, anchor+d, anchor+2d, ...
type everyRule struct {
	anchor time.Time
	d      time.Duration
}

func (r everyRule) Next(t time.Time) time.Time {
	if r.anchor.After(t) {
		return r.anchor
	}
	n := t.Sub(r.anchor)/r.d + 1
	return r.anchor.Add(n * r.d)
}

func (everyRule) Recurring() bool  { return true }
func (r everyRule) String() string { return "every@" + r.d.String() }

func every(start time.Time, d time.Duration) FireSpec {
	return FireSpec{Rule: everyRule{anchor: start, d: d}, FireAt: start, Enabled: true}
}

func newEngine(t *testing.T, workers, queue int) *engine.Service {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: workers, QueueSize: queue}, logx.Nop(), nil)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	})
	return eng
}

func newRegistry(t *testing.T, eng Enqueuer, h Handler, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(Config{Enabled: true, RequeueDelay: 5 * time.Millisecond}, eng, h, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, nil, logx.Nop(), nil)
	at := time.Now().Add(time.Hour)

	if _, err := s.Register(" ", oneShotAt(at), alertPayload("u")); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("empty id err = %v", err)
	}
	if _, err := s.Register("a", FireSpec{Enabled: true}, alertPayload("u")); !errors.Is(err, ErrNoFireTime) {
		t.Fatalf("zero fire err = %v", err)
	}
	if _, err := s.Register("a", oneShotAt(at), Payload{}); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("empty payload err = %v", err)
	}
}

func TestRegisterSameIDReplaces(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := newRegistry(t, newEngine(t, 1, 8), func(ctx context.Context, id string, p Payload) bool {
		calls.Add(1)
		return true
	}, nil)
	first := time.Now().Add(20 * time.Millisecond)
	second := time.Now().Add(time.Hour)

	h1, err := s.Register("alert:u1:x:1", oneShotAt(first), alertPayload("u1"))
	if err != nil || h1.Replaced {
		t.Fatalf("first register = %+v, %v", h1, err)
	}
	h2, err := s.Register("alert:u1:x:1", oneShotAt(second), alertPayload("u1"))
	if err != nil || !h2.Replaced {
		t.Fatalf("second register = %+v, %v", h2, err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	info, _ := s.Get("alert:u1:x:1")
	if !info.NextFire.Equal(second.UTC()) {
		t.Fatalf("NextFire = %v, want %v", info.NextFire, second)
	}

	// the replaced trigger must not fire
	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("handler calls = %d, want 0", got)
	}
}

func TestStopDisarmsAndStartRearms(t *testing.T) {
	t.Parallel()
	fired := make(chan string, 4)
	s := newRegistry(t, newEngine(t, 1, 8), func(ctx context.Context, id string, p Payload) bool {
		fired <- id
		return true
	}, nil)

	if _, err := s.Register("once", oneShotAt(time.Now().Add(20*time.Millisecond)), alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Register("tick", every(time.Now().Add(20*time.Millisecond), time.Hour), alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	select {
	case id := <-fired:
		t.Fatalf("%s fired while stopped", id)
	case <-time.After(60 * time.Millisecond):
	}
	if s.Len() != 2 || s.Snapshot().Running {
		t.Fatalf("stopped registry should keep its jobs: len=%d", s.Len())
	}

	// both are past due now and fire right after Start
	s.Start(context.Background())
	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case id := <-fired:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("after restart only fired %v", got)
		}
	}
}

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := newRegistry(t, newEngine(t, 2, 8), func(ctx context.Context, id string, p Payload) bool {
		calls.Add(1)
		return true
	}, nil)

	if _, err := s.Register("once", oneShotAt(time.Now().Add(20*time.Millisecond)), alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	eventually(t, "one-shot removal", func() bool { return s.Len() == 0 })
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler calls = %d, want 1", got)
	}
}

func TestRecurringRearmsUntilCancelled(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := newRegistry(t, newEngine(t, 2, 8), func(ctx context.Context, id string, p Payload) bool {
		calls.Add(1)
		return true
	}, nil)

	start := time.Now().Add(10 * time.Millisecond)
	spec := every(start, 10*time.Millisecond)
	if _, err := s.Register("tick", spec, alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	eventually(t, "three firings", func() bool { return calls.Load() >= 3 })

	info, ok := s.Get("tick")
	if !ok || info.Kind != KindRecurring {
		t.Fatalf("Get = %+v, %v", info, ok)
	}
	if !s.Cancel("tick") {
		t.Fatal("Cancel returned false")
	}
	eventually(t, "job removal", func() bool { return s.Len() == 0 })
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("fired after cancel: %d -> %d", after, got)
	}
	if s.Cancel("tick") {
		t.Fatal("second Cancel should report unknown id")
	}
}

func TestDisabledJobDoesNotFire(t *testing.T) {
	t.Parallel()
	fired := make(chan string, 4)
	s := newRegistry(t, newEngine(t, 1, 8), func(ctx context.Context, id string, p Payload) bool {
		fired <- id
		return true
	}, nil)

	spec := oneShotAt(time.Now().Add(10 * time.Millisecond))
	spec.Enabled = false
	if _, err := s.Register("off", spec, alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case id := <-fired:
		t.Fatalf("disabled job %s fired", id)
	case <-time.After(60 * time.Millisecond):
	}
	info, ok := s.Get("off")
	if !ok || info.Enabled || info.Status != StatusScheduled {
		t.Fatalf("disabled job should stay addressable: %+v %v", info, ok)
	}

	if !s.SetEnabled("off", true) {
		t.Fatal("SetEnabled returned false")
	}
	select {
	case id := <-fired:
		if id != "off" {
			t.Fatalf("fired %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("re-enabled past-due one-shot did not fire")
	}
}

func TestReplacementWhileFiringIsDeferredAndNeverOverlaps(t *testing.T) {
	t.Parallel()
	var inflight, maxInflight atomic.Int32
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	var releaseOnce sync.Once
	t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })

	s := newRegistry(t, newEngine(t, 4, 8), func(ctx context.Context, id string, p Payload) bool {
		n := inflight.Add(1)
		for {
			m := maxInflight.Load()
			if n <= m || maxInflight.CompareAndSwap(m, n) {
				break
			}
		}
		started <- struct{}{}
		<-release
		inflight.Add(-1)
		return true
	}, nil)

	start := time.Now().Add(10 * time.Millisecond)
	spec := every(start, 5*time.Millisecond)
	if _, err := s.Register("dup", spec, alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}

	later := time.Now().Add(time.Hour).UTC()
	h, err := s.Register("dup", oneShotAt(later), alertPayload("u2"))
	if err != nil {
		t.Fatalf("Register replacement: %v", err)
	}
	if !h.Deferred || !h.Replaced {
		t.Fatalf("handle = %+v, want deferred replacement", h)
	}
	info, _ := s.Get("dup")
	if info.Status != StatusFiring || !info.Pending {
		t.Fatalf("info = %+v, want firing with pending replacement", info)
	}

	// Several 5ms periods pass while the first firing is blocked.
	time.Sleep(40 * time.Millisecond)
	releaseOnce.Do(func() { close(release) })

	eventually(t, "replacement applied", func() bool {
		info, ok := s.Get("dup")
		return ok && info.Status == StatusScheduled && info.NextFire.Equal(later)
	})
	info, _ = s.Get("dup")
	if info.Kind != KindOneShot || info.OwnerID != "u2" {
		t.Fatalf("replacement not applied: %+v", info)
	}
	if got := maxInflight.Load(); got != 1 {
		t.Fatalf("max concurrent firings = %d, want 1", got)
	}
}

func TestCancelWhileFiringDoesNotRearm(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	s := newRegistry(t, newEngine(t, 1, 8), func(ctx context.Context, id string, p Payload) bool {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return true
	}, nil)

	start := time.Now().Add(10 * time.Millisecond)
	spec := every(start, 10*time.Millisecond)
	if _, err := s.Register("c", spec, alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
	if !s.Cancel("c") {
		t.Fatal("Cancel returned false")
	}
	close(release)
	eventually(t, "removal after firing", func() bool { return s.Len() == 0 })
	time.Sleep(40 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

type rejectingEngine struct {
	rejects atomic.Int32
	calls   atomic.Int32
}

func (e *rejectingEngine) Enqueue(t engine.Task) error {
	e.calls.Add(1)
	if e.rejects.Add(-1) >= 0 {
		return engine.ErrQueueFull
	}
	go func() { _ = t.Run(context.Background()) }()
	return nil
}

func TestRejectedSubmissionIsRequeued(t *testing.T) {
	t.Parallel()
	eng := &rejectingEngine{}
	eng.rejects.Store(2)
	var calls atomic.Int32
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()

	s := newRegistry(t, eng, func(ctx context.Context, id string, p Payload) bool {
		calls.Add(1)
		return true
	}, bus)

	if _, err := s.Register("r", oneShotAt(time.Now().Add(5*time.Millisecond)), alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	eventually(t, "dispatch after rejections", func() bool { return calls.Load() == 1 && s.Len() == 0 })
	if got := eng.calls.Load(); got != 3 {
		t.Fatalf("enqueue attempts = %d, want 3", got)
	}

	requeued := 0
	for len(events) > 0 {
		if ev := <-events; ev.Type == eventbus.JobRequeued {
			requeued++
		}
	}
	if requeued != 2 {
		t.Fatalf("requeued events = %d, want 2", requeued)
	}
}

func TestHandlerPanicStillSettles(t *testing.T) {
	t.Parallel()
	s := newRegistry(t, newEngine(t, 1, 8), func(ctx context.Context, id string, p Payload) bool {
		panic("dispatcher bug")
	}, nil)

	if _, err := s.Register("p", oneShotAt(time.Now().Add(5*time.Millisecond)), alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	eventually(t, "panicking one-shot removal", func() bool { return s.Len() == 0 })
}

func TestEarlierRegistrationFiresFirst(t *testing.T) {
	t.Parallel()
	fired := make(chan string, 4)
	s := newRegistry(t, newEngine(t, 1, 8), func(ctx context.Context, id string, p Payload) bool {
		fired <- id
		return true
	}, nil)

	if _, err := s.Register("late", oneShotAt(time.Now().Add(time.Hour)), alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Register("soon", oneShotAt(time.Now().Add(10*time.Millisecond)), alertPayload("u1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case id := <-fired:
		if id != "soon" {
			t.Fatalf("fired %s, want soon", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("earlier registration did not fire")
	}
}

func TestSnapshotOrdersByNextFire(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, nil, nil, logx.Nop(), nil)
	base := time.Now().Add(time.Hour)
	for i, id := range []string{"c", "a", "b"} {
		if _, err := s.Register(id, oneShotAt(base.Add(time.Duration(3-i)*time.Minute)), alertPayload("u1")); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	snap := s.Snapshot()
	if len(snap.Jobs) != 3 {
		t.Fatalf("jobs = %d", len(snap.Jobs))
	}
	got := []string{snap.Jobs[0].ID, snap.Jobs[1].ID, snap.Jobs[2].ID}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if snap.Timezone != "UTC" || snap.Running {
		t.Fatalf("snapshot = %+v", snap)
	}
}
