package infra

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partiture/partiture/pkg/flow"
	"github.com/partiture/partiture/pkg/ledger"
)

func TestMetricCounters(t *testing.T) {
	m := NewMetricInstance()
	m.AddValid("yo")
	m.AddValid("yo")
	m.AddAbort("note")

	assert.Equal(t, int32(2), m.Finalized())
	assert.Equal(t, int32(1), m.Aborted())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.flows.WithLabelValues("yo", "finalized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flows.WithLabelValues("note", "aborted")))

	m.flowStarted()
	m.flowStarted()
	m.flowEnded()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
}

func TestObserverRecordsStepDurations(t *testing.T) {
	m := NewMetricInstance()
	tks := NewTimeKeepers(1, nil)
	o := NewObserver(0, tks, m)
	base := time.Unix(100, 0)

	o.Observe(event(flow.Initialize, "", base))
	o.Observe(event(flow.ProcessInput, "", base.Add(time.Millisecond)))
	o.Observe(event(flow.Finalize, "", base.Add(2*time.Millisecond)))
	o.Observe(event(flow.Finalize, ledger.ProgressNotarising, base.Add(3*time.Millisecond)))
	o.Observe(event(flow.Done, "", base.Add(4*time.Millisecond)))

	count, err := testutil.GatherAndCount(m.Registry(), "partiture_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "one series per completed step")
	assert.Equal(t, base.UnixNano(), tks.snapshot()[0].ProposedTime)
}
