package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// State is a fact on the ledger, shared between its participants.
type State struct {
	Contract     string            `json:"contract"`
	Participants []Party           `json:"participants"`
	Data         map[string]string `json:"data,omitempty"`
}

type StateRef struct {
	TxID  string `json:"txId"`
	Index int    `json:"index"`
}

func (r StateRef) String() string {
	return fmt.Sprintf("%s(%d)", r.TxID, r.Index)
}

type StateAndRef struct {
	State State    `json:"state"`
	Ref   StateRef `json:"ref"`
}

type Command struct {
	Name    string      `json:"name"`
	Signers []PublicKey `json:"signers"`
}

// TimeWindow bounds when a transaction may be notarised. A zero bound is open.
type TimeWindow struct {
	From  time.Time `json:"from,omitempty"`
	Until time.Time `json:"until,omitempty"`
}

func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// WireTransaction is the immutable content of a transaction.
type WireTransaction struct {
	ID          string        `json:"id"`
	Notary      *Party        `json:"notary,omitempty"`
	Inputs      []StateAndRef `json:"inputs,omitempty"`
	Outputs     []State       `json:"outputs,omitempty"`
	Commands    []Command     `json:"commands,omitempty"`
	Attachments []string      `json:"attachments,omitempty"`
	TimeWindow  *TimeWindow   `json:"timeWindow,omitempty"`
	Salt        string        `json:"salt"`
}

func computeID(tx *WireTransaction) (string, error) {
	content := *tx
	content.ID = ""
	raw, err := json.Marshal(&content)
	if err != nil {
		return "", errors.Wrap(err, "error marshaling transaction")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// NeedsNotary reports whether the transaction consumes states or is time bound.
func (tx *WireTransaction) NeedsNotary() bool {
	return len(tx.Inputs) > 0 || tx.TimeWindow != nil
}

// RequiredSigners is the union of the command signers, plus the notary when
// notarisation is needed.
func (tx *WireTransaction) RequiredSigners() []PublicKey {
	var keys []PublicKey
	seen := newKeySet()
	for _, cmd := range tx.Commands {
		for _, k := range cmd.Signers {
			if seen.has(k) {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	if tx.Notary != nil && tx.NeedsNotary() && !seen.has(tx.Notary.Key) {
		keys = append(keys, tx.Notary.Key)
	}
	return keys
}

// Participants returns every participant of the input and output states.
func (tx *WireTransaction) Participants() []Party {
	var parties []Party
	for _, in := range tx.Inputs {
		parties = append(parties, in.State.Participants...)
	}
	for _, out := range tx.Outputs {
		parties = append(parties, out.Participants...)
	}
	return DistinctParties(parties)
}

func (tx *WireTransaction) OutRef(index int) StateAndRef {
	return StateAndRef{
		State: tx.Outputs[index],
		Ref:   StateRef{TxID: tx.ID, Index: index},
	}
}

func (tx *WireTransaction) OutRefs() []StateAndRef {
	refs := make([]StateAndRef, 0, len(tx.Outputs))
	for i := range tx.Outputs {
		refs = append(refs, tx.OutRef(i))
	}
	return refs
}

type Signature struct {
	By    PublicKey `json:"by"`
	Bytes []byte    `json:"bytes"`
}

// SignedTransaction is a wire transaction with the signatures gathered so far.
type SignedTransaction struct {
	Tx   *WireTransaction `json:"tx"`
	Sigs []Signature      `json:"sigs"`
}

func (s *SignedTransaction) ID() string {
	return s.Tx.ID
}

// Signers returns the keys that signed the transaction.
func (s *SignedTransaction) Signers() []PublicKey {
	keys := make([]PublicKey, 0, len(s.Sigs))
	for _, sig := range s.Sigs {
		keys = append(keys, sig.By)
	}
	return keys
}

// WithAdditionalSignatures returns a copy carrying the extra signatures.
// Signatures by keys that already signed are ignored.
func (s *SignedTransaction) WithAdditionalSignatures(sigs ...Signature) *SignedTransaction {
	signed := newKeySet(s.Signers()...)
	out := &SignedTransaction{
		Tx:   s.Tx,
		Sigs: append([]Signature(nil), s.Sigs...),
	}
	for _, sig := range sigs {
		if signed.has(sig.By) {
			continue
		}
		signed[sig.By] = struct{}{}
		out.Sigs = append(out.Sigs, sig)
	}
	return out
}

// SignaturesBy returns the signatures made by any of the given keys.
func (s *SignedTransaction) SignaturesBy(keys ...PublicKey) []Signature {
	wanted := newKeySet(keys...)
	var sigs []Signature
	for _, sig := range s.Sigs {
		if wanted.has(sig.By) {
			sigs = append(sigs, sig)
		}
	}
	return sigs
}

// CheckSignaturesAreValid verifies every present signature against the transaction ID.
func (s *SignedTransaction) CheckSignaturesAreValid() error {
	id, err := computeID(s.Tx)
	if err != nil {
		return err
	}
	if id != s.Tx.ID {
		return &SignatureError{TxID: s.Tx.ID, Reason: fmt.Sprintf("transaction %s does not match its content", s.Tx.ID)}
	}
	var invalid []PublicKey
	for _, sig := range s.Sigs {
		if !sig.By.Verify([]byte(s.Tx.ID), sig.Bytes) {
			invalid = append(invalid, sig.By)
		}
	}
	if len(invalid) > 0 {
		return &SignatureError{
			TxID:    s.Tx.ID,
			Invalid: invalid,
			Reason:  fmt.Sprintf("invalid signatures on transaction %s by %v", s.Tx.ID, shortKeys(invalid)),
		}
	}
	return nil
}

// MissingSigners returns the required signers that have not signed yet,
// ignoring the excluded keys.
func (s *SignedTransaction) MissingSigners(exclude ...PublicKey) []PublicKey {
	skip := newKeySet(exclude...)
	signed := newKeySet(s.Signers()...)
	var missing []PublicKey
	for _, k := range s.Tx.RequiredSigners() {
		if skip.has(k) || signed.has(k) {
			continue
		}
		missing = append(missing, k)
	}
	return missing
}

// VerifySignaturesExcept checks that every present signature is valid and that
// all required signers other than the excluded keys have signed.
func (s *SignedTransaction) VerifySignaturesExcept(exclude ...PublicKey) error {
	if err := s.CheckSignaturesAreValid(); err != nil {
		return err
	}
	if missing := s.MissingSigners(exclude...); len(missing) > 0 {
		return &SignatureError{
			TxID:    s.Tx.ID,
			Missing: missing,
			Reason:  fmt.Sprintf("missing signatures on transaction %s for keys %v", s.Tx.ID, shortKeys(missing)),
		}
	}
	return nil
}

func (s *SignedTransaction) VerifyRequiredSignatures() error {
	return s.VerifySignaturesExcept()
}

func shortKeys(keys []PublicKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Short())
	}
	return out
}
