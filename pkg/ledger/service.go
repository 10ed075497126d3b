package ledger

import "context"

type MessageKind int32

const (
	MessageIdentitySync MessageKind = iota + 1
	MessageProposal
	MessageSignatures
	MessageReject
	MessageFinalized
)

func (k MessageKind) String() string {
	switch k {
	case MessageIdentitySync:
		return "IdentitySync"
	case MessageProposal:
		return "Proposal"
	case MessageSignatures:
		return "Signatures"
	case MessageReject:
		return "Reject"
	case MessageFinalized:
		return "Finalized"
	}
	return "Unknown"
}

// Message is a frame exchanged over a session.
type Message struct {
	Kind       MessageKind        `json:"kind"`
	Tx         *SignedTransaction `json:"tx,omitempty"`
	Signatures []Signature        `json:"signatures,omitempty"`
	Identities []IdentityMapping  `json:"identities,omitempty"`
	Error      string             `json:"error,omitempty"`
	ErrorID    int64              `json:"errorId,omitempty"`
}

// Session is a conversation channel with one counterparty.
type Session interface {
	ID() string
	Counterparty() Party
	Send(ctx context.Context, msg *Message) error
	// Receive returns ErrSessionClosed once the counterparty has closed the
	// session and every pending message was delivered.
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// Endpoint is a node reachable through a Transport.
type Endpoint interface {
	Identity() Party
	SignBytes(data []byte) ([]byte, error)
	Accept(ctx context.Context, flowName string, s Session) error
}

type Transport interface {
	Register(ep Endpoint) error
	Open(ctx context.Context, from Party, flowName string, to Party) (Session, error)
}

// Identity covers the identity operations of a node.
type Identity interface {
	OurIdentity() Party
	IsOurKey(key PublicKey) bool
	WellKnownParty(ctx context.Context, p Party) (Party, error)
	FreshConfidentialIdentity(ctx context.Context) (Party, error)
	Notaries() []Party
}

// Initiator covers what a node does when driving a transaction.
type Initiator interface {
	Sign(ctx context.Context, b *Builder, keys []PublicKey) (*SignedTransaction, error)
	OpenSession(ctx context.Context, flowName string, p Party) (Session, error)
	SyncIdentities(ctx context.Context, sessions []Session, tx *WireTransaction) error
	CollectSignatures(ctx context.Context, stx *SignedTransaction, sessions []Session, ourKeys []PublicKey) (*SignedTransaction, error)
	VerifySignatures(ctx context.Context, stx *SignedTransaction, exclude ...PublicKey) error
	Verify(ctx context.Context, b *Builder) error
	Finalize(ctx context.Context, stx *SignedTransaction, sessions []Session) (*SignedTransaction, error)
}

// Responder covers what a node does when asked to sign.
type Responder interface {
	ReceiveProposal(ctx context.Context, s Session) (*SignedTransaction, error)
	VerifyTransaction(ctx context.Context, tx *WireTransaction) error
	SignProposal(ctx context.Context, stx *SignedTransaction) (*SignedTransaction, error)
	SendSignatures(ctx context.Context, s Session, stx *SignedTransaction) error
	Reject(ctx context.Context, s Session, cause error) error
	ReceiveFinalized(ctx context.Context, s Session, txID string) (*SignedTransaction, error)
}

// Service is the ledger as seen by flows.
type Service interface {
	Identity
	Initiator
	Responder
}
