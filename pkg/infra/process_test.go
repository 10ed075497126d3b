package infra

import (
	"context"
	"io"
	"io/ioutil"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/partiture/partiture/internal/contracts"
	"github.com/partiture/partiture/pkg/flow"
	"github.com/partiture/partiture/pkg/transport"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func processConfig(t *testing.T, txType string, txNum int) *Config {
	dir := t.TempDir()
	c := &Config{
		Parties:        []Party{{Name: "alice", Address: "bufnet-alice"}, {Name: "bob", Address: "bufnet-bob"}, {Name: "carol", Address: "bufnet-carol"}},
		Notary:         "notary",
		Initiator:      "alice",
		TxType:         txType,
		TxNum:          txNum,
		AnonymousRatio: 0.3,
		Burst:          txNum,
		Concurrency:    4,
		Timeout:        10 * time.Second,
		Seed:           3,
		LogPath:        filepath.Join(dir, "log.transactions"),
		ReportPath:     filepath.Join(dir, "report.txt"),
		WorkloadPath:   filepath.Join(dir, "workload.txt"),
	}
	c.setDefaults()
	require.NoError(t, c.validate())
	return c
}

func readLines(t *testing.T, path string) []string {
	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func runProcessor(t *testing.T, c *Config, opts ...transport.Option) *Processor {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := NewProcessor(c, quietLogger(), opts...)
	require.NoError(t, p.Run(ctx))
	return p
}

func assertAllValid(t *testing.T, c *Config, p *Processor) {
	assert.Equal(t, int32(c.TxNum), p.Metric().Finalized())
	assert.Equal(t, int32(0), p.Metric().Aborted())

	report := readLines(t, c.ReportPath)
	assert.Equal(t, "ALL Transactions: "+strconv.Itoa(c.TxNum), report[0])
	assert.Equal(t, "VALID Transactions: "+strconv.Itoa(c.TxNum), report[1])
	assert.Equal(t, "ABORTED Transactions: 0", report[2])
	assert.Equal(t, "Abort Rate: 0.000%", report[6])
	assert.Len(t, report, 11+len(percentiles)+1+c.TxNum)
	for _, line := range report[len(report)-c.TxNum:] {
		assert.True(t, strings.HasSuffix(line, " VALID"), line)
	}

	assert.Len(t, readLines(t, c.WorkloadPath), c.TxNum)

	ends := 0
	for _, line := range readLines(t, c.LogPath) {
		if strings.HasPrefix(line, "End") {
			ends++
			assert.True(t, strings.HasSuffix(line, "VALID"), line)
		}
	}
	assert.Equal(t, c.TxNum, ends)
}

func TestProcessYoOverMemory(t *testing.T) {
	c := processConfig(t, TxTypeYo, 12)
	p := runProcessor(t, c)
	assertAllValid(t, c, p)

	bob, ok := p.network.Node("bob")
	require.True(t, ok)
	carol, ok := p.network.Node("carol")
	require.True(t, ok)
	// responders record the finalized transaction after the initiator returns
	assert.Eventually(t, func() bool {
		received := len(bob.Vault().Unconsumed(contracts.YoContract)) + len(carol.Vault().Unconsumed(contracts.YoContract))
		return received == c.TxNum
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProcessMixedWithForcedSync(t *testing.T) {
	c := processConfig(t, TxTypeMixed, 10)
	c.SyncMode = flow.IdentitySyncForce
	c.Rate = 1000
	assertAllValid(t, c, runProcessor(t, c))
}

func TestProcessNoteWithRedisNotary(t *testing.T) {
	mr := miniredis.RunT(t)
	c := processConfig(t, TxTypeNote, 6)
	c.Uniqueness = UniquenessRedis
	c.RedisAddress = mr.Addr()
	require.NoError(t, c.validate())

	p := runProcessor(t, c)
	assertAllValid(t, c, p)
	assert.Len(t, mr.Keys(), c.TxNum, "one spent note per request")
}

func TestProcessOverGRPC(t *testing.T) {
	c := processConfig(t, TxTypeMixed, 6)
	c.Transport = TransportGRPC

	listeners := make(map[string]*bufconn.Listener)
	for _, party := range c.Parties {
		listeners[party.Address] = bufconn.Listen(1024 * 1024)
	}
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		return listeners[addr].DialContext(ctx)
	}

	p := runProcessor(t, c,
		transport.WithListener(func(addr string) (net.Listener, error) { return listeners[addr], nil }),
		transport.WithDialOptions(grpc.WithContextDialer(dialer)),
	)
	assertAllValid(t, c, p)
}

func TestProcessUnreachableRedis(t *testing.T) {
	c := processConfig(t, TxTypeNote, 1)
	c.Uniqueness = UniquenessRedis
	c.RedisAddress = "127.0.0.1:1"

	err := NewProcessor(c, quietLogger()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail to connect to redis")
}

func TestWriteReportCountsAborts(t *testing.T) {
	c := &Config{TxNum: 2}
	p := NewProcessor(c, quietLogger())
	p.timeKeepers.keepEndTime(0, 10, true)
	p.timeKeepers.keepEndTime(1, 20, false)
	p.metric.AddValid("yo")
	p.metric.AddAbort("yo")

	p.writeReport(time.Second)
	close(p.reportCh)

	var report []string
	for line := range p.reportCh {
		report = append(report, line)
	}
	assert.Equal(t, "VALID Transactions: 1", report[1])
	assert.Equal(t, "ABORTED Transactions: 1", report[2])
	assert.Equal(t, "TPS: 2.000", report[4])
	assert.Equal(t, "Effective TPS: 1.000", report[5])
	assert.Equal(t, "Abort Rate: 50.000%", report[6])
	assert.True(t, strings.HasSuffix(report[len(report)-1], " ABORTED"))
	assert.True(t, strings.HasSuffix(report[len(report)-2], " VALID"))
}
