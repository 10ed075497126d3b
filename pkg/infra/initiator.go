package infra

import (
	"context"
)

type Initiator struct {
	requests []Request
	outCh    chan<- Request
}

// NewInitiator generates the workload and saves it to config.WorkloadPath.
func NewInitiator(c *Config, outCh chan<- Request) (*Initiator, error) {
	requests := NewWorkloadGenerator(c).Generate()
	if err := writeWorkloadToFile(c.WorkloadPath, requests); err != nil {
		return nil, err
	}
	return &Initiator{
		requests: requests,
		outCh:    outCh,
	}, nil
}

// StartAsync feeds every request to outCh and closes it afterwards.
func (it *Initiator) StartAsync(ctx context.Context) {
	go func() {
		defer close(it.outCh)
		for _, r := range it.requests {
			select {
			case it.outCh <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (it *Initiator) Requests() []Request {
	return it.requests
}
