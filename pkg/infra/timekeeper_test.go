package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partiture/partiture/pkg/flow"
	"github.com/partiture/partiture/pkg/ledger"
)

func event(step flow.Step, child string, at time.Time) flow.Event {
	return flow.Event{FlowID: "f", Flow: "yo", Step: step, Child: child, Entry: 0, Time: at}
}

func TestTimeKeeperStages(t *testing.T) {
	logCh := make(chan string, 100)
	tks := NewTimeKeepers(1, logCh)
	base := time.Unix(100, 0)
	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

	tks.keep(0, event(flow.Initialize, "", at(0)))
	tks.keep(0, event(flow.SignInitialTx, "", at(1)))
	tks.keep(0, event(flow.CreateSessions, "", at(3)))
	tks.keep(0, event(flow.GatherSignatures, ledger.ProgressCollecting, at(4)))
	tks.keep(0, event(flow.VerifySignatures, "", at(10)))
	tks.keep(0, event(flow.PostExecuteTransactions, "", at(30)))
	tks.keepEndTime(0, at(31).UnixNano(), true)

	tk := tks.snapshot()[0]
	assert.Equal(t, at(0).UnixNano(), tk.ProposedTime)
	assert.Equal(t, at(3).UnixNano(), tk.SignedTime)
	assert.Equal(t, at(10).UnixNano(), tk.CollectedTime)
	assert.Equal(t, at(30).UnixNano(), tk.FinalizedTime)
	assert.True(t, tk.Valid)

	assert.InDelta(t, 0.031, tks.getAverageTotalLatency(), 1e-9)
	assert.InDelta(t, 0.003, tks.getAverageStageLatency(proposedTime, signedTime), 1e-9)
	assert.InDelta(t, 0.007, tks.getAverageStageLatency(signedTime, collectedTime), 1e-9)
	assert.InDelta(t, 0.020, tks.getAverageStageLatency(collectedTime, finalizedTime), 1e-9)

	require.Len(t, logCh, 5)
	assert.Contains(t, <-logCh, "Proposed")
}

func TestTimeKeeperSinglePartySignsAtVerification(t *testing.T) {
	tks := NewTimeKeepers(1, nil)
	base := time.Unix(100, 0)

	tks.keep(0, event(flow.Initialize, "", base))
	tks.keep(0, event(flow.VerifySignatures, "", base.Add(time.Millisecond)))
	tks.keep(0, event(flow.VerifySignatures, "", base.Add(5*time.Millisecond)))

	tk := tks.snapshot()[0]
	assert.Equal(t, tk.SignedTime, tk.CollectedTime)
	assert.Equal(t, base.Add(time.Millisecond).UnixNano(), tk.CollectedTime, "only the first occurrence is kept")
}

func TestTimeKeeperFinalizedAtLastEntry(t *testing.T) {
	tks := NewTimeKeepers(1, nil)
	base := time.Unix(100, 0)

	tks.keep(0, event(flow.PostExecuteTransactions, "", base))
	tks.keep(0, event(flow.PostExecuteTransactions, "", base.Add(time.Second)))

	assert.Equal(t, base.Add(time.Second).UnixNano(), tks.snapshot()[0].FinalizedTime)
}

func TestCommitLatencyPercentile(t *testing.T) {
	tks := NewTimeKeepers(10, nil)
	for i := 0; i < 10; i++ {
		tks.keep(i, event(flow.Initialize, "", time.Unix(0, 1)))
		tks.keepEndTime(i, int64((10-i)*1e9)+1, true)
	}

	assert.InDelta(t, 6.0, tks.getCommitLatencyOfPercentile(50), 1e-9)
	assert.InDelta(t, 10.0, tks.getCommitLatencyOfPercentile(100), 1e-9)
	assert.InDelta(t, 1.0, tks.getCommitLatencyOfPercentile(0), 1e-9)
	assert.InDelta(t, 5.5, tks.getAverageTotalLatency(), 1e-9)
}

func TestStageDuration(t *testing.T) {
	assert.Equal(t, int64(0), stageDuration(0, 10))
	assert.Equal(t, int64(0), stageDuration(10, 0))
	assert.Equal(t, int64(0), stageDuration(10, 5))
	assert.Equal(t, int64(5), stageDuration(5, 10))
}
