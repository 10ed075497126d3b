package flow

import (
	"github.com/hashicorp/go-multierror"
	"github.com/partiture/partiture/pkg/ledger"
)

// Metadata is an arbitrary key-value bag attached to a call or an entry.
type Metadata struct {
	Meta map[string]interface{}
}

// AddMeta stores value under key and returns the previous value, if any.
func (m *Metadata) AddMeta(key string, value interface{}) interface{} {
	if m.Meta == nil {
		m.Meta = make(map[string]interface{})
	}
	prev := m.Meta[key]
	m.Meta[key] = value
	return prev
}

func (m *Metadata) GetMeta(key string) interface{} {
	return m.Meta[key]
}

// TxEntry holds everything needed to drive one transaction to finality.
type TxEntry struct {
	Builder       *ledger.Builder
	Participants  []ledger.Party
	Initial       *ledger.SignedTransaction
	CounterSigned *ledger.SignedTransaction
	Finalized     *ledger.SignedTransaction
	Others        map[string]*ledger.SignedTransaction
	Metadata
}

// NewTxEntry creates an entry whose participants are those tracked by b.
func NewTxEntry(b *ledger.Builder) TxEntry {
	return TxEntry{
		Builder:      b,
		Participants: b.Participants(),
	}
}

// AddOther stores an auxiliary transaction and returns the one it replaced.
func (e *TxEntry) AddOther(key string, stx *ledger.SignedTransaction) *ledger.SignedTransaction {
	if e.Others == nil {
		e.Others = make(map[string]*ledger.SignedTransaction)
	}
	prev := e.Others[key]
	e.Others[key] = stx
	return prev
}

// CallContext is the working set of one flow invocation.
type CallContext struct {
	Entries  []TxEntry
	Sessions *SessionSet
	Metadata
}

func NewCallContext(entries ...TxEntry) *CallContext {
	return &CallContext{
		Entries:  entries,
		Sessions: NewSessionSet(),
	}
}

// NewCallContextFromBuilders creates one entry per builder.
func NewCallContextFromBuilders(builders ...*ledger.Builder) *CallContext {
	entries := make([]TxEntry, 0, len(builders))
	for _, b := range builders {
		entries = append(entries, NewTxEntry(b))
	}
	return NewCallContext(entries...)
}

// SessionSet keeps at most one open session per well-known counterparty.
type SessionSet struct {
	sessions []ledger.Session
	byKey    map[ledger.PublicKey]ledger.Session
}

func NewSessionSet() *SessionSet {
	return &SessionSet{byKey: make(map[ledger.PublicKey]ledger.Session)}
}

func (s *SessionSet) Get(wellKnown ledger.Party) (ledger.Session, bool) {
	session, ok := s.byKey[wellKnown.Key]
	return session, ok
}

func (s *SessionSet) Add(session ledger.Session) {
	key := session.Counterparty().Key
	if _, ok := s.byKey[key]; ok {
		return
	}
	s.byKey[key] = session
	s.sessions = append(s.sessions, session)
}

func (s *SessionSet) All() []ledger.Session {
	return append([]ledger.Session(nil), s.sessions...)
}

func (s *SessionSet) Len() int {
	return len(s.sessions)
}

// Close closes every session and forgets them.
func (s *SessionSet) Close() error {
	var result error
	for _, session := range s.sessions {
		if err := session.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.sessions = nil
	s.byKey = make(map[ledger.PublicKey]ledger.Session)
	return result
}
