package infra

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
)

var (
	chs = []rune("qwertyuiopasdfghjklzxcvbnmQWERTYUIOPASDFGHJKLZXCVBNM1234567890")
)

const messageLength = 16

// Request is one flow invocation of the workload.
type Request struct {
	ID        int
	Type      string // ['yo', 'note']
	Recipient string
	Message   string
	Anonymous bool // only meaningful for yo's
}

func (r Request) String() string {
	return fmt.Sprintf("%d %s %s %t %s", r.ID, r.Type, r.Recipient, r.Anonymous, r.Message)
}

type WorkloadGenerator struct {
	rnd        *rand.Rand
	config     *Config
	recipients []string
}

func newRand(seed int) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(seed)))
}

func NewWorkloadGenerator(c *Config) *WorkloadGenerator {
	wg := &WorkloadGenerator{
		rnd:    newRand(c.Seed),
		config: c,
	}
	for _, p := range c.Parties {
		if p.Name != c.Initiator {
			wg.recipients = append(wg.recipients, p.Name)
		}
	}
	return wg
}

// Generate returns config.TxNum requests. Equal seeds give equal workloads.
func (wg *WorkloadGenerator) Generate() []Request {
	requests := make([]Request, wg.config.TxNum)
	for i := range requests {
		requests[i] = wg.generateRequest(i)
	}
	return requests
}

func (wg *WorkloadGenerator) generateRequest(id int) Request {
	r := Request{
		ID:        id,
		Type:      wg.selectType(),
		Recipient: wg.recipients[wg.rnd.Intn(len(wg.recipients))],
		Message:   wg.getName(messageLength),
	}
	if r.Type == TxTypeYo {
		r.Anonymous = wg.rnd.Float64() < wg.config.AnonymousRatio
	}
	return r
}

func (wg *WorkloadGenerator) selectType() string {
	if wg.config.TxType != TxTypeMixed {
		return wg.config.TxType
	}
	if wg.rnd.Intn(2) == 0 {
		return TxTypeYo
	}
	return TxTypeNote
}

func (wg *WorkloadGenerator) getName(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = chs[wg.rnd.Intn(len(chs))]
	}
	return string(b)
}

func writeWorkloadToFile(path string, requests []Request) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "fail to create workload file %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, r := range requests {
		if _, err := fmt.Fprintln(w, r.String()); err != nil {
			return errors.Wrapf(err, "fail to write workload file %s", path)
		}
	}
	return errors.Wrapf(w.Flush(), "fail to flush workload file %s", path)
}
