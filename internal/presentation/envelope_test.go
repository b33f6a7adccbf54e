package presentation

import (
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	fn      func()
	delay   time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{fn: f, delay: d}
	s.timers = append(s.timers, t)
	return t
}

// fireAll runs every scheduled callback, including stopped ones, to mimic a
// fire racing a cancellation.
func (s *fakeScheduler) fireAll() {
	s.mu.Lock()
	timers := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()
	for _, t := range timers {
		t.fn()
	}
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func TestEnvelopeOpensAfterDelay(t *testing.T) {
	sched := &fakeScheduler{}
	env := NewEnvelope(WithScheduler(sched))

	if got := env.Snapshot().Stage; got != StageClosed {
		t.Fatalf("expected initial stage closed, got %s", got)
	}
	if !env.Activate() {
		t.Fatalf("expected first activation to transition")
	}
	if got := env.Snapshot().Stage; got != StageOpening {
		t.Fatalf("expected opening, got %s", got)
	}
	if sched.count() != 1 || sched.timers[0].delay != DefaultOpenDelay {
		t.Fatalf("expected one timer with default delay, got %+v", sched.timers)
	}

	sched.fireAll()
	if got := env.Snapshot().Stage; got != StageOpen {
		t.Fatalf("expected open after timer, got %s", got)
	}
}

func TestEnvelopeActivateIsOneShot(t *testing.T) {
	sched := &fakeScheduler{}
	env := NewEnvelope(WithScheduler(sched), WithOpenDelay(time.Second))

	env.Activate()
	if env.Activate() {
		t.Fatalf("activation while opening must be a no-op")
	}
	if sched.count() != 1 {
		t.Fatalf("expected a single timer, got %d", sched.count())
	}

	sched.fireAll()
	if env.Activate() {
		t.Fatalf("activation once open must be a no-op")
	}
	if got := env.Snapshot().Stage; got != StageOpen {
		t.Fatalf("open must be terminal, got %s", got)
	}
	if sched.count() != 1 {
		t.Fatalf("no timer may be scheduled after open, got %d", sched.count())
	}

	// A duplicate fire must not disturb the terminal state.
	sched.fireAll()
	if got := env.Snapshot().Stage; got != StageOpen {
		t.Fatalf("expected open, got %s", got)
	}
}

func TestEnvelopeMessageToggleIsIndependent(t *testing.T) {
	sched := &fakeScheduler{}
	env := NewEnvelope(WithScheduler(sched))

	env.OpenMessage()
	if snap := env.Snapshot(); !snap.MessageOpen || snap.Stage != StageClosed {
		t.Fatalf("opening message changed envelope: %+v", snap)
	}

	env.Activate()
	env.CloseMessage()
	if snap := env.Snapshot(); snap.MessageOpen || snap.Stage != StageOpening {
		t.Fatalf("closing message changed envelope: %+v", snap)
	}

	sched.fireAll()
	env.OpenMessage()
	env.CloseMessage()
	env.OpenMessage()
	if snap := env.Snapshot(); !snap.MessageOpen || snap.Stage != StageOpen {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestEnvelopeCloseCancelsPendingTimer(t *testing.T) {
	sched := &fakeScheduler{}
	env := NewEnvelope(WithScheduler(sched))

	env.Activate()
	env.Close()
	if !sched.timers[0].stopped {
		t.Fatalf("expected pending timer to be stopped on teardown")
	}

	sched.fireAll()
	snap := env.Snapshot()
	if snap.Stage != StageOpening {
		t.Fatalf("timer fired after teardown mutated state: %s", snap.Stage)
	}
	if !snap.TornDown {
		t.Fatalf("expected torn down snapshot")
	}

	env.OpenMessage()
	if env.Snapshot().MessageOpen {
		t.Fatalf("torn down envelope must ignore message toggles")
	}
	if env.Activate() {
		t.Fatalf("torn down envelope must ignore activation")
	}
	env.Close()
}

func TestEnvelopeWithRealScheduler(t *testing.T) {
	env := NewEnvelope(WithOpenDelay(5 * time.Millisecond))
	env.Activate()

	deadline := time.Now().Add(time.Second)
	for env.Snapshot().Stage != StageOpen {
		if time.Now().After(deadline) {
			t.Fatalf("envelope never opened")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEnvelopeConcurrentActivation(t *testing.T) {
	sched := &fakeScheduler{}
	env := NewEnvelope(WithScheduler(sched))

	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if env.Activate() {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if transitions != 1 || sched.count() != 1 {
		t.Fatalf("expected exactly one transition and timer, got %d/%d", transitions, sched.count())
	}
}
