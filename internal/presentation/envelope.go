// Package presentation drives how a stored card is revealed to its recipient:
// the envelope lifecycle, the message modal, and the view model the pages render.
package presentation

import (
	"sync"
	"time"
)

// Stage is the envelope lifecycle state.
type Stage string

const (
	StageClosed  Stage = "closed"
	StageOpening Stage = "opening"
	StageOpen    Stage = "open"
)

// DefaultOpenDelay matches the length of the envelope opening animation.
const DefaultOpenDelay = 650 * time.Millisecond

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, f func()) Timer

// AfterFunc implements Scheduler.
func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer { return fn(d, f) }

// RealScheduler schedules on the runtime timer wheel.
var RealScheduler Scheduler = SchedulerFunc(func(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
})

// Snapshot is a point-in-time copy of the envelope state.
type Snapshot struct {
	Stage       Stage
	MessageOpen bool
	TornDown    bool
}

// Envelope is the closed → opening → open state machine plus the independent
// message modal flag. Methods are safe for concurrent use.
type Envelope struct {
	mu          sync.Mutex
	stage       Stage
	messageOpen bool
	tornDown    bool

	delay     time.Duration
	scheduler Scheduler
	timer     Timer
	// token identifies the live timer; a fire carrying a stale token is ignored.
	token uint64
}

// EnvelopeOption customises an Envelope.
type EnvelopeOption func(*Envelope)

// WithOpenDelay overrides how long the opening stage lasts.
func WithOpenDelay(d time.Duration) EnvelopeOption {
	return func(e *Envelope) {
		if d > 0 {
			e.delay = d
		}
	}
}

// WithScheduler injects the timer source.
func WithScheduler(s Scheduler) EnvelopeOption {
	return func(e *Envelope) {
		if s != nil {
			e.scheduler = s
		}
	}
}

// NewEnvelope returns a closed envelope with the message modal hidden.
func NewEnvelope(opts ...EnvelopeOption) *Envelope {
	e := &Envelope{
		stage:     StageClosed,
		delay:     DefaultOpenDelay,
		scheduler: RealScheduler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Activate starts opening the envelope. It only has an effect while closed
// and reports whether a transition happened.
func (e *Envelope) Activate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tornDown || e.stage != StageClosed {
		return false
	}
	e.stage = StageOpening
	e.token++
	token := e.token
	e.timer = e.scheduler.AfterFunc(e.delay, func() { e.finishOpening(token) })
	return true
}

func (e *Envelope) finishOpening(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tornDown || token != e.token || e.stage != StageOpening {
		return
	}
	e.stage = StageOpen
	e.timer = nil
}

// OpenMessage shows the message modal. The envelope stage is untouched.
func (e *Envelope) OpenMessage() {
	e.setMessage(true)
}

// CloseMessage hides the message modal. The envelope stage is untouched.
func (e *Envelope) CloseMessage() {
	e.setMessage(false)
}

func (e *Envelope) setMessage(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tornDown {
		return
	}
	e.messageOpen = open
}

// Close tears the envelope down: the pending timer is cancelled and any fire
// that races the cancellation is ignored. Close is idempotent.
func (e *Envelope) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tornDown {
		return
	}
	e.tornDown = true
	e.token++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Snapshot returns the current state.
func (e *Envelope) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Stage:       e.stage,
		MessageOpen: e.messageOpen,
		TornDown:    e.tornDown,
	}
}

// Delay reports the configured opening duration.
func (e *Envelope) Delay() time.Duration {
	return e.delay
}
