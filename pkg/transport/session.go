package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const drainTimeout = 5 * time.Second

type stream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
}

// streamSession is a session over one gRPC stream, seen from either end.
// A single reader goroutine owns RecvMsg and feeds inbox.
type streamSession struct {
	id           string
	flowName     string
	counterparty ledger.Party
	signer       Signer
	stream       stream
	closeFn      func() error

	inbox   chan *ledger.Message
	readErr error // set before inbox is closed
	read    chan struct{}
	closed  chan struct{}

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newStreamSession(id, flowName string, counterparty ledger.Party, signer Signer, st stream, closeFn func() error) *streamSession {
	s := &streamSession{
		id:           id,
		flowName:     flowName,
		counterparty: counterparty,
		signer:       signer,
		stream:       st,
		closeFn:      closeFn,
		inbox:        make(chan *ledger.Message),
		read:         make(chan struct{}),
		closed:       make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// readLoop reads until the stream fails. Messages arriving after Close are
// dropped so that the counterparty can finish the stream.
func (s *streamSession) readLoop() {
	defer close(s.read)
	defer close(s.inbox)
	for {
		msg, err := s.receive()
		if err != nil {
			s.readErr = err
			return
		}
		select {
		case s.inbox <- msg:
		case <-s.closed:
		}
	}
}

func (s *streamSession) ID() string {
	return s.id
}

func (s *streamSession) Counterparty() ledger.Party {
	return s.counterparty
}

func (s *streamSession) Send(ctx context.Context, msg *ledger.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := sealFrame(s.signer, frameMessage, s.id, s.flowName, msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.stream.SendMsg(env); err != nil {
		if err == io.EOF {
			return ledger.ErrSessionClosed
		}
		return errors.Wrapf(err, "error sending to %s", s.counterparty)
	}
	return nil
}

func (s *streamSession) Receive(ctx context.Context) (*ledger.Message, error) {
	select {
	case msg, ok := <-s.inbox:
		if !ok {
			return nil, s.readErr
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *streamSession) receive() (*ledger.Message, error) {
	env := &common.Envelope{}
	if err := s.stream.RecvMsg(env); err != nil {
		if err == io.EOF || status.Code(err) == codes.Canceled {
			return nil, ledger.ErrSessionClosed
		}
		return nil, ledger.NewFlowError("session with %s failed: %v", s.counterparty, err)
	}
	f, err := openFrame(env, &s.counterparty)
	if err != nil {
		return nil, err
	}
	if f.kind != frameMessage || f.msg == nil {
		return nil, errors.Errorf("unexpected frame %d from %s", f.kind, s.counterparty)
	}
	return f.msg, nil
}

func (s *streamSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.closeFn()
	})
	return s.closeErr
}

// drain waits for the reader to see the end of the stream so that frames
// sent before CloseSend are delivered.
func (s *streamSession) drain() {
	select {
	case <-s.read:
	case <-time.After(drainTimeout):
	}
}
