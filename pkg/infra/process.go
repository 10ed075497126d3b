package infra

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/partiture/partiture/internal/contracts"
	"github.com/partiture/partiture/pkg/flow"
	"github.com/partiture/partiture/pkg/transport"
)

const (
	chMaxCapacity = 1e5
)

var percentiles = []int{50, 55, 60, 65, 70, 75, 80, 85, 90, 91, 92, 93, 94, 95, 96, 97, 98, 99, 100}

// Processor runs the configured workload against a freshly started network.
type Processor struct {
	config        *Config
	logger        *log.Logger
	transportOpts []transport.Option

	network     *Network
	metric      *MetricInstance
	timeKeepers *TimeKeepers

	logCh    chan string
	reportCh chan string
	doneCh   chan struct{}
}

func NewProcessor(c *Config, l *log.Logger, opts ...transport.Option) *Processor {
	logCh := make(chan string, chMaxCapacity)
	return &Processor{
		config:        c,
		logger:        l,
		transportOpts: opts,
		metric:        NewMetricInstance(),
		timeKeepers:   NewTimeKeepers(c.TxNum, logCh),
		logCh:         logCh,
		reportCh:      make(chan string, chMaxCapacity),
		doneCh:        make(chan struct{}),
	}
}

func Process(c *Config, l *log.Logger) error {
	return NewProcessor(c, l).Run(context.Background())
}

func (p *Processor) Metric() *MetricInstance {
	return p.metric
}

// WriteLogToFile receives and write the following types of log to file:
//
//	Proposed: timestamp request-id flow-id
//	Signed: timestamp request-id flow-id
//	Collected: timestamp request-id flow-id
//	Finalized: timestamp request-id flow-id
//	End: timestamp request-id [VALID/ABORTED]
//
// and the report lines to the report file.
func (p *Processor) WriteLogToFile(logFile, reportFile *os.File, printWG *sync.WaitGroup) {
	defer printWG.Done()
	defer logFile.Close()
	defer reportFile.Close()

	for {
		select {
		case s := <-p.logCh:
			logFile.WriteString(s + "\n")
		case s := <-p.reportCh:
			reportFile.WriteString(s + "\n")
		case <-p.doneCh:
			for len(p.logCh) > 0 {
				logFile.WriteString(<-p.logCh + "\n")
			}
			for len(p.reportCh) > 0 {
				reportFile.WriteString(<-p.reportCh + "\n")
			}
			return
		}
	}
}

func (p *Processor) startWriter(printWG *sync.WaitGroup) error {
	logFile, err := os.Create(p.config.LogPath)
	if err != nil {
		return errors.Wrapf(err, "fail to create log file %s", p.config.LogPath)
	}
	reportFile, err := os.Create(p.config.ReportPath)
	if err != nil {
		logFile.Close()
		return errors.Wrapf(err, "fail to create report file %s", p.config.ReportPath)
	}

	printWG.Add(1)
	go p.WriteLogToFile(logFile, reportFile, printWG)
	return nil
}

func (p *Processor) newLimiter() *rate.Limiter {
	if p.config.Rate == 0 {
		return rate.NewLimiter(rate.Inf, p.config.Burst)
	}
	return rate.NewLimiter(rate.Limit(p.config.Rate), p.config.Burst)
}

// Run executes every request of the workload as a flow invocation.
// Requests go through the following stages:
// initiator -> requestCh -> limiter -> errgroup worker -> flow
func (p *Processor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	network, err := NewNetwork(ctx, p.config, p.logger, p.transportOpts...)
	if err != nil {
		return err
	}
	p.network = network
	defer func() {
		if err := network.Close(); err != nil {
			p.logger.Warnf("Fail to close network: %v", err)
		}
	}()

	requestCh := make(chan Request, p.config.Burst)
	initiator, err := NewInitiator(p.config, requestCh)
	if err != nil {
		return err
	}

	printWG := &sync.WaitGroup{}
	if err := p.startWriter(printWG); err != nil {
		return err
	}

	if p.config.AdminAddress != "" {
		admin := NewAdminServer(p.config.AdminAddress, NewAdminHandler(p.config.TxNum, p.metric), p.logger)
		admin.StartAsync()
		defer admin.Stop()
	}

	limiter := p.newLimiter()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	p.logger.Infof("Start sending %d %s requests", p.config.TxNum, p.config.TxType)
	startTime := time.Now()
	initiator.StartAsync(gctx)

	var waitErr error
	for r := range requestCh {
		if waitErr = limiter.Wait(gctx); waitErr != nil {
			cancel()
			break
		}
		r := r
		g.Go(func() error {
			p.execute(gctx, r)
			return nil
		})
	}
	// drain what the initiator may still have buffered
	for range requestCh {
	}
	groupErr := g.Wait()

	p.logger.Infof("Finish processing requests")
	p.writeReport(time.Since(startTime))

	// Closing 'doneCh', a channel which is never sent an element, notifies WriteLogToFile to flush and return
	close(p.doneCh)
	printWG.Wait()

	if waitErr != nil {
		return errors.Wrap(waitErr, "stopped before every request was sent")
	}
	return groupErr
}

// execute runs one request. Failed flows are counted as aborted and do not
// stop the other requests.
func (p *Processor) execute(ctx context.Context, r Request) {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	p.metric.flowStarted()
	defer p.metric.flowEnded()

	flowName, err := p.call(ctx, r)
	p.timeKeepers.keepEndTime(r.ID, time.Now().UnixNano(), err == nil)

	if err != nil {
		p.metric.AddAbort(flowName)
		p.logger.WithField("request", r.ID).Warnf("Request aborted: %v", err)
		return
	}
	p.metric.AddValid(flowName)
}

func (p *Processor) call(ctx context.Context, r Request) (string, error) {
	node := p.network.Initiator()
	observer := NewObserver(r.ID, p.timeKeepers, p.metric)
	opts := []flow.Option{
		flow.WithSyncMode(p.config.SyncMode),
		flow.WithObserver(observer.Observe),
		flow.WithLogger(p.logger),
	}

	recipient, ok := node.Identities().PartyFromName(r.Recipient)
	if !ok {
		return r.Type, errors.Errorf("unknown recipient %s", r.Recipient)
	}

	switch r.Type {
	case TxTypeNote:
		_, err := contracts.NewNoteFlow(node, opts...).Call(ctx, contracts.NoteTransfer{
			Recipient: recipient,
			Text:      r.Message,
		})
		return contracts.NoteFlow, err
	default:
		_, err := contracts.NewYoFlow(node, opts...).Call(ctx, contracts.Yo{
			Recipient: recipient,
			Message:   r.Message,
			Anonymous: r.Anonymous,
		})
		return contracts.YoFlow, err
	}
}

func milliseconds(ns int64) float64 {
	return float64(ns) / float64(1e6)
}

func perSecond(n int32, d time.Duration) float64 {
	if d <= 0 {
		return math.Inf(1)
	}
	return float64(n) * 1e9 / float64(d.Nanoseconds())
}

func (p *Processor) writeReport(duration time.Duration) {
	all := int32(p.config.TxNum)
	valid := p.metric.Finalized()
	aborted := all - valid
	tks := p.timeKeepers

	p.reportCh <- fmt.Sprintf("ALL Transactions: %d", all)
	p.reportCh <- fmt.Sprintf("VALID Transactions: %d", valid)
	p.reportCh <- fmt.Sprintf("ABORTED Transactions: %d", aborted)
	p.reportCh <- fmt.Sprintf("Duration: %.3fs", float64(duration.Milliseconds())/float64(1e3))
	p.reportCh <- fmt.Sprintf("TPS: %.3f", perSecond(all, duration))
	p.reportCh <- fmt.Sprintf("Effective TPS: %.3f", perSecond(valid, duration))
	p.reportCh <- fmt.Sprintf("Abort Rate: %.3f%%", float64(aborted)/float64(all)*100)
	p.reportCh <- fmt.Sprintf("Average Flow Latency: %.3fs", tks.getAverageTotalLatency())
	p.reportCh <- fmt.Sprintf("Average Sign Latency: %.3fs", tks.getAverageStageLatency(proposedTime, signedTime))
	p.reportCh <- fmt.Sprintf("Average Collect Latency: %.3fs", tks.getAverageStageLatency(signedTime, collectedTime))
	p.reportCh <- fmt.Sprintf("Average Finalize Latency: %.3fs", tks.getAverageStageLatency(collectedTime, finalizedTime))

	for _, i := range percentiles {
		p.reportCh <- fmt.Sprintf("Flow Latency [%d%%]: %.3fs", i, tks.getCommitLatencyOfPercentile(i))
	}

	p.reportCh <- fmt.Sprintf("id    sign(ms) collect(ms) finalize(ms) status")
	for i, tk := range tks.snapshot() {
		status := "VALID"
		if !tk.Valid {
			status = "ABORTED"
		}
		p.reportCh <- fmt.Sprintf("%-5d %8.2f %11.2f %12.2f %s",
			i,
			milliseconds(stageDuration(tk.ProposedTime, tk.SignedTime)),
			milliseconds(stageDuration(tk.SignedTime, tk.CollectedTime)),
			milliseconds(stageDuration(tk.CollectedTime, tk.FinalizedTime)),
			status,
		)
	}
}
