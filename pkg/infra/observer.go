package infra

import (
	"sync"

	"github.com/partiture/partiture/pkg/flow"
)

// Observer turns the progress events of one request into stage times and
// step durations.
type Observer struct {
	mu     sync.Mutex
	id     int
	tks    *TimeKeepers
	metric *MetricInstance
	last   *flow.Event
}

func NewObserver(id int, tks *TimeKeepers, metric *MetricInstance) *Observer {
	return &Observer{
		id:     id,
		tks:    tks,
		metric: metric,
	}
}

// Observe is a flow.Observer.
func (o *Observer) Observe(e flow.Event) {
	o.tks.keep(o.id, e)

	// child labels are reported inside a step and do not end it
	if e.Child != "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last != nil && o.metric != nil {
		o.metric.observeStep(o.last.Step.Name, e.Time.Sub(o.last.Time))
	}
	o.last = &e
}
