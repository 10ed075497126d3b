package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ResponderFunc serves one session opened by a counterparty.
type ResponderFunc func(ctx context.Context, s Session) error

// Node is a ledger participant: it owns keys, verifies and records
// transactions, and talks to other nodes through a Transport.
type Node struct {
	identity   Party
	legal      *KeyPair
	network    *Network
	identities *IdentityService
	vault      *Vault
	logger     *log.Entry

	mu         sync.RWMutex
	keys       map[PublicKey]*KeyPair
	responders map[string]ResponderFunc
}

func newNode(name string, network *Network) (*Node, error) {
	legal, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	n := &Node{
		identity:   Party{Name: name, Key: legal.Public},
		legal:      legal,
		network:    network,
		identities: NewIdentityService(),
		vault:      NewVault(),
		logger:     network.logger.WithField("node", name),
		keys:       map[PublicKey]*KeyPair{legal.Public: legal},
		responders: make(map[string]ResponderFunc),
	}
	n.identities.RegisterWellKnown(n.identity)
	return n, nil
}

func (n *Node) Identity() Party {
	return n.identity
}

func (n *Node) OurIdentity() Party {
	return n.identity
}

func (n *Node) Vault() *Vault {
	return n.vault
}

func (n *Node) Identities() *IdentityService {
	return n.identities
}

func (n *Node) Logger() *log.Entry {
	return n.logger
}

// RegisterResponder installs the handler run for sessions opened under flowName.
func (n *Node) RegisterResponder(flowName string, fn ResponderFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responders[flowName] = fn
}

func (n *Node) IsOurKey(key PublicKey) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.keys[key]
	return ok
}

func (n *Node) keyPair(key PublicKey) (*KeyPair, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	kp, ok := n.keys[key]
	return kp, ok
}

func (n *Node) SignBytes(data []byte) ([]byte, error) {
	return n.legal.Sign(data).Bytes, nil
}

func (n *Node) WellKnownParty(_ context.Context, p Party) (Party, error) {
	wk, ok := n.identities.WellKnownParty(p)
	if !ok {
		return Party{}, &ResolutionError{Party: p}
	}
	return wk, nil
}

// FreshConfidentialIdentity creates a new anonymous key owned by this node.
func (n *Node) FreshConfidentialIdentity(_ context.Context) (Party, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return Party{}, err
	}
	n.mu.Lock()
	n.keys[kp.Public] = kp
	n.mu.Unlock()
	n.identities.RegisterAnonymous(kp.Public, n.identity)
	return Anonymous(kp.Public), nil
}

func (n *Node) Notaries() []Party {
	return n.network.notaryParties()
}

func (n *Node) isRelevant(s State) bool {
	for _, p := range s.Participants {
		if n.IsOurKey(p.Key) {
			return true
		}
	}
	return false
}

// Sign produces the initial signed transaction using the given local keys,
// or the legal identity key when none are given.
func (n *Node) Sign(_ context.Context, b *Builder, keys []PublicKey) (*SignedTransaction, error) {
	tx, err := b.ToWireTransaction()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		keys = []PublicKey{n.legal.Public}
	}
	stx := &SignedTransaction{Tx: tx}
	for _, k := range keys {
		kp, ok := n.keyPair(k)
		if !ok {
			return nil, &SignatureError{TxID: tx.ID, Reason: fmt.Sprintf("no local signing key for %s", k.Short())}
		}
		stx = stx.WithAdditionalSignatures(kp.Sign([]byte(tx.ID)))
	}
	return stx, nil
}

func (n *Node) OpenSession(ctx context.Context, flowName string, p Party) (Session, error) {
	wk, err := n.WellKnownParty(ctx, p)
	if err != nil {
		return nil, err
	}
	if wk.Key == n.identity.Key {
		return nil, errors.Errorf("cannot open a session with ourselves")
	}
	return n.network.transport.Open(ctx, n.identity, flowName, wk)
}

// SyncIdentities sends proofs for every confidential key of ours used by tx.
func (n *Node) SyncIdentities(ctx context.Context, sessions []Session, tx *WireTransaction) error {
	reportProgress(ctx, ProgressSyncingIdentities)
	keys := Keys(tx.Participants())
	for _, cmd := range tx.Commands {
		keys = append(keys, cmd.Signers...)
	}
	var mappings []IdentityMapping
	seen := newKeySet()
	for _, k := range keys {
		if seen.has(k) || k == n.identity.Key || !n.IsOurKey(k) {
			continue
		}
		seen[k] = struct{}{}
		mappings = append(mappings, IdentityMapping{
			Key:   k,
			Owner: n.identity,
			Proof: n.legal.Sign(identityProofPayload(k)).Bytes,
		})
	}
	for _, s := range sessions {
		msg := &Message{Kind: MessageIdentitySync, Identities: mappings}
		if err := s.Send(ctx, msg); err != nil {
			return errors.Wrapf(err, "error syncing identities with %s", s.Counterparty())
		}
	}
	n.logger.Debugf("Synced %d identities with %d sessions", len(mappings), len(sessions))
	return nil
}

// CollectSignatures sends the proposal to every session and gathers the
// signatures each counterparty owes.
func (n *Node) CollectSignatures(ctx context.Context, stx *SignedTransaction, sessions []Session, ourKeys []PublicKey) (*SignedTransaction, error) {
	reportProgress(ctx, ProgressCollecting)
	if err := stx.CheckSignaturesAreValid(); err != nil {
		return nil, err
	}
	var exclude []PublicKey
	if stx.Tx.Notary != nil {
		exclude = append(exclude, stx.Tx.Notary.Key)
	}

	for _, s := range sessions {
		if err := s.Send(ctx, &Message{Kind: MessageProposal, Tx: stx}); err != nil {
			return nil, errors.Wrapf(err, "error sending proposal to %s", s.Counterparty())
		}
	}

	collected := stx
	for _, s := range sessions {
		expected := n.owedBy(ctx, s.Counterparty(), stx.MissingSigners(exclude...))
		msg, err := s.Receive(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "error receiving signatures from %s", s.Counterparty())
		}
		switch msg.Kind {
		case MessageSignatures:
		case MessageReject:
			return nil, &FlowError{Message: msg.Error, ErrorID: msg.ErrorID}
		default:
			return nil, NewFlowError("unexpected %s from %s while collecting signatures", msg.Kind, s.Counterparty())
		}
		for _, sig := range msg.Signatures {
			if !expected.has(sig.By) {
				return nil, &SignatureError{
					TxID:    stx.ID(),
					Invalid: []PublicKey{sig.By},
					Reason:  fmt.Sprintf("%s returned a signature by unexpected key %s", s.Counterparty(), sig.By.Short()),
				}
			}
			if !sig.By.Verify([]byte(stx.ID()), sig.Bytes) {
				return nil, &SignatureError{
					TxID:    stx.ID(),
					Invalid: []PublicKey{sig.By},
					Reason:  fmt.Sprintf("%s returned an invalid signature by %s", s.Counterparty(), sig.By.Short()),
				}
			}
		}
		collected = collected.WithAdditionalSignatures(msg.Signatures...)
	}

	reportProgress(ctx, ProgressVerifyingCollected)
	if err := collected.VerifySignaturesExcept(exclude...); err != nil {
		return nil, err
	}
	return collected, nil
}

func (n *Node) owedBy(ctx context.Context, counterparty Party, missing []PublicKey) keySet {
	owed := newKeySet()
	for _, k := range missing {
		if n.IsOurKey(k) {
			continue
		}
		owner, err := n.WellKnownParty(ctx, Anonymous(k))
		if err != nil || owner.Key == counterparty.Key {
			owed[k] = struct{}{}
		}
	}
	return owed
}

func (n *Node) VerifySignatures(_ context.Context, stx *SignedTransaction, exclude ...PublicKey) error {
	return stx.VerifySignaturesExcept(exclude...)
}

func (n *Node) Verify(ctx context.Context, b *Builder) error {
	tx, err := b.ToWireTransaction()
	if err != nil {
		return err
	}
	return n.VerifyTransaction(ctx, tx)
}

func (n *Node) VerifyTransaction(_ context.Context, tx *WireTransaction) error {
	return n.network.contracts.Verify(tx)
}

// Finalize notarises stx when needed, records it and sends it to every session.
func (n *Node) Finalize(ctx context.Context, stx *SignedTransaction, sessions []Session) (*SignedTransaction, error) {
	var exclude []PublicKey
	if stx.Tx.NeedsNotary() {
		if stx.Tx.Notary == nil {
			return nil, errors.Errorf("transaction %s needs a notary but has none", stx.ID())
		}
		exclude = append(exclude, stx.Tx.Notary.Key)
	}
	if err := stx.VerifySignaturesExcept(exclude...); err != nil {
		return nil, err
	}
	if err := n.VerifyTransaction(ctx, stx.Tx); err != nil {
		return nil, err
	}

	if stx.Tx.NeedsNotary() {
		reportProgress(ctx, ProgressNotarising)
		notary, ok := n.network.notary(stx.Tx.Notary.Key)
		if !ok {
			return nil, NewFlowError("unknown notary %s", stx.Tx.Notary)
		}
		sig, err := notary.Notarise(ctx, stx)
		if err != nil {
			return nil, err
		}
		stx = stx.WithAdditionalSignatures(sig)
	}
	if err := stx.VerifyRequiredSignatures(); err != nil {
		return nil, err
	}

	reportProgress(ctx, ProgressRecording)
	n.vault.Record(stx, n.isRelevant)

	reportProgress(ctx, ProgressBroadcasting)
	for _, s := range sessions {
		if err := s.Send(ctx, &Message{Kind: MessageFinalized, Tx: stx}); err != nil {
			return stx, errors.Wrapf(err, "error broadcasting %s to %s", stx.ID(), s.Counterparty())
		}
	}
	n.logger.Debugf("Finalized %s with %d sessions", stx.ID(), len(sessions))
	return stx, nil
}

// ReceiveProposal registers any identity mappings sent ahead of the proposal
// and returns the proposed transaction.
func (n *Node) ReceiveProposal(ctx context.Context, s Session) (*SignedTransaction, error) {
	for {
		msg, err := s.Receive(ctx)
		if err != nil {
			return nil, err
		}
		switch msg.Kind {
		case MessageIdentitySync:
			if err := n.registerMappings(s.Counterparty(), msg.Identities); err != nil {
				return nil, err
			}
		case MessageProposal:
			if msg.Tx == nil || msg.Tx.Tx == nil {
				return nil, NewFlowError("empty proposal from %s", s.Counterparty())
			}
			if err := msg.Tx.CheckSignaturesAreValid(); err != nil {
				return nil, err
			}
			return msg.Tx, nil
		default:
			return nil, NewFlowError("unexpected %s from %s while waiting for a proposal", msg.Kind, s.Counterparty())
		}
	}
}

func (n *Node) registerMappings(from Party, mappings []IdentityMapping) error {
	for _, m := range mappings {
		if m.Owner.Key != from.Key || !m.Valid() {
			return &SignatureError{Reason: fmt.Sprintf("invalid identity proof for %s from %s", m.Key.Short(), from)}
		}
		n.identities.RegisterAnonymous(m.Key, m.Owner)
	}
	return nil
}

// SignProposal adds signatures for every required signer we own.
func (n *Node) SignProposal(_ context.Context, stx *SignedTransaction) (*SignedTransaction, error) {
	var sigs []Signature
	for _, k := range stx.MissingSigners() {
		if kp, ok := n.keyPair(k); ok {
			sigs = append(sigs, kp.Sign([]byte(stx.ID())))
		}
	}
	return stx.WithAdditionalSignatures(sigs...), nil
}

func (n *Node) SendSignatures(ctx context.Context, s Session, stx *SignedTransaction) error {
	var ours []Signature
	for _, sig := range stx.Sigs {
		if n.IsOurKey(sig.By) {
			ours = append(ours, sig)
		}
	}
	return s.Send(ctx, &Message{Kind: MessageSignatures, Signatures: ours})
}

// Reject sends the cause back verbatim, keeping its error ID when it has one.
func (n *Node) Reject(ctx context.Context, s Session, cause error) error {
	msg := &Message{Kind: MessageReject, Error: cause.Error()}
	var ferr *FlowError
	if errors.As(cause, &ferr) {
		msg.ErrorID = ferr.ErrorID
	} else {
		msg.ErrorID = NewFlowError("%s", cause).ErrorID
	}
	return s.Send(ctx, msg)
}

// ReceiveFinalized waits for the finalized form of txID, or any transaction when txID is empty.
func (n *Node) ReceiveFinalized(ctx context.Context, s Session, txID string) (*SignedTransaction, error) {
	msg, err := s.Receive(ctx)
	if err != nil {
		return nil, err
	}
	switch msg.Kind {
	case MessageFinalized:
	case MessageReject:
		return nil, &FlowError{Message: msg.Error, ErrorID: msg.ErrorID}
	default:
		return nil, NewFlowError("unexpected %s from %s while waiting for finality", msg.Kind, s.Counterparty())
	}
	stx := msg.Tx
	if stx == nil || stx.Tx == nil {
		return nil, NewFlowError("empty finalized transaction from %s", s.Counterparty())
	}
	if txID != "" && stx.ID() != txID {
		return nil, NewFlowError("expected finalized %s but received %s", txID, stx.ID())
	}
	if err := stx.VerifyRequiredSignatures(); err != nil {
		return nil, err
	}
	n.vault.Record(stx, n.isRelevant)
	return stx, nil
}

// Accept runs the responder registered for flowName on s.
func (n *Node) Accept(ctx context.Context, flowName string, s Session) error {
	n.mu.RLock()
	fn, ok := n.responders[flowName]
	n.mu.RUnlock()
	if !ok {
		err := NewFlowError("%s has no responder for %s", n.identity, flowName)
		if serr := n.Reject(ctx, s, err); serr != nil {
			n.logger.Warnf("Fail to reject session %s: %v", s.ID(), serr)
		}
		return err
	}
	return fn(ctx, s)
}
