package infra

import (
	"fmt"
	"sort"
	"sync"

	"github.com/partiture/partiture/pkg/flow"
)

// TimeKeepers stores the stage times of every request, in nanoseconds.
type TimeKeepers struct {
	mu                  sync.Mutex
	logCh               chan<- string
	transactions        []*TimeKeeper
	totalLatency        []int64
	commitLatencySorted []int64
}

type TimeKeeper struct {
	ProposedTime  int64 // INITIALIZE
	SignedTime    int64 // the initial transaction is signed
	CollectedTime int64 // every signature is gathered and verified
	FinalizedTime int64 // the last entry is finalized
	EndTime       int64
	Valid         bool
}

func NewTimeKeepers(txNum int, logCh chan<- string) *TimeKeepers {
	tks := &TimeKeepers{
		logCh:        logCh,
		transactions: make([]*TimeKeeper, txNum),
		totalLatency: make([]int64, txNum),
	}
	for i := range tks.transactions {
		tks.transactions[i] = &TimeKeeper{}
	}
	return tks
}

func (tks *TimeKeepers) log(stage string, t int64, id int, flowID string) {
	if tks.logCh == nil {
		return
	}
	tks.logCh <- fmt.Sprintf("%-10s %d %4d %s", stage, t, id, flowID)
}

// keep records the first time a request reaches a stage. Finalization is
// recorded every time so that it ends up at the last entry.
func (tks *TimeKeepers) keep(id int, e flow.Event) {
	t := e.Time.UnixNano()

	tks.mu.Lock()
	defer tks.mu.Unlock()

	tk := tks.transactions[id]
	switch e.Step.Name {
	case flow.Initialize.Name:
		if tk.ProposedTime == 0 {
			tk.ProposedTime = t
			tks.log("Proposed", t, id, e.FlowID)
		}
	case flow.CreateSessions.Name:
		if tk.SignedTime == 0 {
			tk.SignedTime = t
			tks.log("Signed", t, id, e.FlowID)
		}
	case flow.VerifySignatures.Name:
		if tk.SignedTime == 0 {
			tk.SignedTime = t
			tks.log("Signed", t, id, e.FlowID)
		}
		if tk.CollectedTime == 0 {
			tk.CollectedTime = t
			tks.log("Collected", t, id, e.FlowID)
		}
	case flow.PostExecuteTransactions.Name:
		tk.FinalizedTime = t
		tks.log("Finalized", t, id, e.FlowID)
	}
}

func (tks *TimeKeepers) keepEndTime(id int, t int64, valid bool) {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	tk := tks.transactions[id]
	tk.EndTime = t
	tk.Valid = valid
	if tk.ProposedTime != 0 {
		tks.totalLatency[id] = t - tk.ProposedTime
	}
	tks.commitLatencySorted = nil

	status := "VALID"
	if !valid {
		status = "ABORTED"
	}
	if tks.logCh != nil {
		tks.logCh <- fmt.Sprintf("%-10s %d %4d %s", "End", t, id, status)
	}
}

func (tks *TimeKeepers) getAverageTotalLatency() float64 {
	tks.mu.Lock()
	defer tks.mu.Unlock()
	return averageSeconds(tks.totalLatency)
}

func (tks *TimeKeepers) getAverageStageLatency(from, to func(*TimeKeeper) int64) float64 {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	latencies := make([]int64, len(tks.transactions))
	for i, tk := range tks.transactions {
		latencies[i] = stageDuration(from(tk), to(tk))
	}
	return averageSeconds(latencies)
}

func averageSeconds(latencies []int64) float64 {
	if len(latencies) == 0 {
		return 0
	}
	var result int64 = 0
	for _, l := range latencies {
		result += l
	}
	return float64(result) / float64(len(latencies)) / 1e9
}

// stageDuration is zero when either end of the stage was never reached.
func stageDuration(from, to int64) int64 {
	if from == 0 || to == 0 || to < from {
		return 0
	}
	return to - from
}

func (tks *TimeKeepers) getCommitLatencyOfPercentile(p int) float64 {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	n := len(tks.totalLatency)
	if n == 0 {
		return 0
	}
	if tks.commitLatencySorted == nil {
		tks.sortCommitLatency()
	}

	index := int(float64(p) / 100.0 * float64(n))
	if index < 0 {
		index = 0
	} else if index >= n {
		index = n - 1
	}

	return float64(tks.commitLatencySorted[index]) / 1e9
}

func (tks *TimeKeepers) sortCommitLatency() {
	tks.commitLatencySorted = make([]int64, len(tks.totalLatency))
	copy(tks.commitLatencySorted, tks.totalLatency)
	sort.Slice(
		tks.commitLatencySorted,
		func(i, j int) bool {
			return tks.commitLatencySorted[i] < tks.commitLatencySorted[j]
		},
	)
}

func (tks *TimeKeepers) snapshot() []TimeKeeper {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	result := make([]TimeKeeper, len(tks.transactions))
	for i, tk := range tks.transactions {
		result[i] = *tk
	}
	return result
}

func signedTime(tk *TimeKeeper) int64    { return tk.SignedTime }
func proposedTime(tk *TimeKeeper) int64  { return tk.ProposedTime }
func collectedTime(tk *TimeKeeper) int64 { return tk.CollectedTime }
func finalizedTime(tk *TimeKeeper) int64 { return tk.FinalizedTime }
