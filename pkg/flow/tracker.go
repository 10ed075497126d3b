package flow

import (
	"sync"
	"time"

	"github.com/partiture/partiture/pkg/ledger"
)

// Event is emitted for every step change and for every sub-protocol label.
type Event struct {
	FlowID string
	Flow   string
	Step   Step
	// Child is set when the event reports progress inside Step.
	Child string
	// Entry is the index of the entry being executed, or -1.
	Entry int
	Time  time.Time
}

type Observer func(Event)

// Tracker records the current step of one flow invocation and fans events
// out to its observers.
type Tracker struct {
	mu        sync.Mutex
	flowID    string
	flow      string
	lifecycle Lifecycle
	current   Step
	entry     int
	observers []Observer
}

func NewTracker(flowID, flowName string, lifecycle Lifecycle, observers ...Observer) *Tracker {
	return &Tracker{
		flowID:    flowID,
		flow:      flowName,
		lifecycle: lifecycle,
		entry:     -1,
		observers: observers,
	}
}

func (t *Tracker) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

func (t *Tracker) Lifecycle() Lifecycle {
	return t.lifecycle
}

func (t *Tracker) Current() Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// SetEntry marks which entry subsequent steps belong to.
func (t *Tracker) SetEntry(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry = i
}

// SetStep makes s the current step and returns it.
func (t *Tracker) SetStep(s Step) Step {
	t.mu.Lock()
	t.current = s
	e := t.event(s, "")
	observers := t.observers
	t.mu.Unlock()
	notify(observers, e)
	return s
}

// ChildProgress returns a callback reporting sub-protocol labels under parent.
func (t *Tracker) ChildProgress(parent Step) ledger.ProgressFunc {
	return func(label string) {
		t.mu.Lock()
		e := t.event(parent, label)
		observers := t.observers
		t.mu.Unlock()
		notify(observers, e)
	}
}

func (t *Tracker) event(s Step, child string) Event {
	return Event{
		FlowID: t.flowID,
		Flow:   t.flow,
		Step:   s,
		Child:  child,
		Entry:  t.entry,
		Time:   time.Now(),
	}
}

func notify(observers []Observer, e Event) {
	for _, o := range observers {
		o(e)
	}
}
