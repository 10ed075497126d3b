package ledger

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const memoryBuffer = 16

// MemoryTransport connects endpoints living in the same process.
type MemoryTransport struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
	logger    *log.Entry
}

func NewMemoryTransport(logger *log.Logger) *MemoryTransport {
	return &MemoryTransport{
		endpoints: make(map[string]Endpoint),
		logger:    logger.WithField("transport", "memory"),
	}
}

func (t *MemoryTransport) Register(ep Endpoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	name := ep.Identity().Name
	if _, ok := t.endpoints[name]; ok {
		return errors.Errorf("endpoint %s already registered", name)
	}
	t.endpoints[name] = ep
	return nil
}

func (t *MemoryTransport) Open(ctx context.Context, from Party, flowName string, to Party) (Session, error) {
	t.mu.RLock()
	ep, ok := t.endpoints[to.Name]
	t.mu.RUnlock()
	if !ok {
		return nil, NewFlowError("no route to %s", to)
	}

	local, remote := newMemorySessionPair(from, to)
	go func() {
		defer remote.Close()
		if err := ep.Accept(context.Background(), flowName, remote); err != nil {
			t.logger.Debugf("Responder %s for %s ended with: %v", to, flowName, err)
		}
	}()
	return local, nil
}

type memorySession struct {
	id           string
	counterparty Party
	in           chan []byte
	out          chan []byte
	done         chan struct{}
	once         *sync.Once
}

func newMemorySessionPair(initiator, responder Party) (*memorySession, *memorySession) {
	id := uuid.NewString()
	a := make(chan []byte, memoryBuffer)
	b := make(chan []byte, memoryBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	local := &memorySession{id: id, counterparty: responder, in: b, out: a, done: done, once: once}
	remote := &memorySession{id: id, counterparty: initiator, in: a, out: b, done: done, once: once}
	return local, remote
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) Counterparty() Party {
	return s.counterparty
}

// Send copies msg through its wire form so both ends never share memory.
func (s *memorySession) Send(ctx context.Context, msg *Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "error marshaling message")
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- raw:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memorySession) Receive(ctx context.Context) (*Message, error) {
	select {
	case raw := <-s.in:
		return decodeMessage(raw)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		select {
		case raw := <-s.in:
			return decodeMessage(raw)
		default:
			return nil, ErrSessionClosed
		}
	}
}

func (s *memorySession) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func decodeMessage(raw []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling message")
	}
	return msg, nil
}
