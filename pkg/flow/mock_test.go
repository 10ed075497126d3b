package flow

import (
	"context"
	"io"

	"github.com/partiture/partiture/pkg/ledger"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// MockService mocks the ledger as seen by flows.
type MockService struct {
	mock.Mock
}

func (m *MockService) OurIdentity() ledger.Party {
	args := m.Called()
	return args.Get(0).(ledger.Party)
}

func (m *MockService) IsOurKey(key ledger.PublicKey) bool {
	args := m.Called(key)
	return args.Bool(0)
}

func (m *MockService) WellKnownParty(ctx context.Context, p ledger.Party) (ledger.Party, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(ledger.Party), args.Error(1)
}

func (m *MockService) FreshConfidentialIdentity(ctx context.Context) (ledger.Party, error) {
	args := m.Called(ctx)
	return args.Get(0).(ledger.Party), args.Error(1)
}

func (m *MockService) Notaries() []ledger.Party {
	args := m.Called()
	return args.Get(0).([]ledger.Party)
}

func (m *MockService) Sign(ctx context.Context, b *ledger.Builder, keys []ledger.PublicKey) (*ledger.SignedTransaction, error) {
	args := m.Called(ctx, b, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SignedTransaction), args.Error(1)
}

func (m *MockService) OpenSession(ctx context.Context, flowName string, p ledger.Party) (ledger.Session, error) {
	args := m.Called(ctx, flowName, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ledger.Session), args.Error(1)
}

func (m *MockService) SyncIdentities(ctx context.Context, sessions []ledger.Session, tx *ledger.WireTransaction) error {
	args := m.Called(ctx, sessions, tx)
	return args.Error(0)
}

func (m *MockService) CollectSignatures(ctx context.Context, stx *ledger.SignedTransaction, sessions []ledger.Session, ourKeys []ledger.PublicKey) (*ledger.SignedTransaction, error) {
	args := m.Called(ctx, stx, sessions, ourKeys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SignedTransaction), args.Error(1)
}

func (m *MockService) VerifySignatures(ctx context.Context, stx *ledger.SignedTransaction, exclude ...ledger.PublicKey) error {
	args := m.Called(ctx, stx, exclude)
	return args.Error(0)
}

func (m *MockService) Verify(ctx context.Context, b *ledger.Builder) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockService) Finalize(ctx context.Context, stx *ledger.SignedTransaction, sessions []ledger.Session) (*ledger.SignedTransaction, error) {
	args := m.Called(ctx, stx, sessions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SignedTransaction), args.Error(1)
}

func (m *MockService) ReceiveProposal(ctx context.Context, s ledger.Session) (*ledger.SignedTransaction, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SignedTransaction), args.Error(1)
}

func (m *MockService) VerifyTransaction(ctx context.Context, tx *ledger.WireTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockService) SignProposal(ctx context.Context, stx *ledger.SignedTransaction) (*ledger.SignedTransaction, error) {
	args := m.Called(ctx, stx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SignedTransaction), args.Error(1)
}

func (m *MockService) SendSignatures(ctx context.Context, s ledger.Session, stx *ledger.SignedTransaction) error {
	args := m.Called(ctx, s, stx)
	return args.Error(0)
}

func (m *MockService) Reject(ctx context.Context, s ledger.Session, cause error) error {
	args := m.Called(ctx, s, cause)
	return args.Error(0)
}

func (m *MockService) ReceiveFinalized(ctx context.Context, s ledger.Session, txID string) (*ledger.SignedTransaction, error) {
	args := m.Called(ctx, s, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SignedTransaction), args.Error(1)
}

type stubSession struct {
	id           string
	counterparty ledger.Party
	sent         []*ledger.Message
}

func (s *stubSession) ID() string {
	return s.id
}

func (s *stubSession) Counterparty() ledger.Party {
	return s.counterparty
}

func (s *stubSession) Close() error {
	return nil
}

func (s *stubSession) Send(_ context.Context, msg *ledger.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubSession) Receive(context.Context) (*ledger.Message, error) {
	return nil, ledger.ErrSessionClosed
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEnv(svc ledger.Service, mode IdentitySyncMode, call *CallContext, observers ...Observer) *Env {
	return &Env{
		FlowID:   "test",
		FlowName: "test-flow",
		Ledger:   svc,
		SyncMode: mode,
		Tracker:  NewTracker("test", "test-flow", SimpleInitiatingLifecycle, observers...),
		Logger:   log.NewEntry(quietLogger()),
		Call:     call,
	}
}
