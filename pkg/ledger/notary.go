package ledger

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// UniquenessProvider commits the consumption of input states. It fails with a
// NotaryError listing the conflicting refs when any input was already spent
// by another transaction.
type UniquenessProvider interface {
	Commit(ctx context.Context, refs []StateRef, txID string) error
}

type MemoryUniqueness struct {
	mu    sync.Mutex
	spent map[StateRef]string
}

func NewMemoryUniqueness() *MemoryUniqueness {
	return &MemoryUniqueness{spent: make(map[StateRef]string)}
}

func (m *MemoryUniqueness) Commit(_ context.Context, refs []StateRef, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var conflicts []StateRef
	for _, ref := range refs {
		if by, ok := m.spent[ref]; ok && by != txID {
			conflicts = append(conflicts, ref)
		}
	}
	if len(conflicts) > 0 {
		return newNotaryError(txID, conflicts, "input states of %s already consumed: %v", txID, conflicts)
	}
	for _, ref := range refs {
		m.spent[ref] = txID
	}
	return nil
}

// Notary guards against double spends and checks time windows.
type Notary struct {
	party      Party
	keys       *KeyPair
	uniqueness UniquenessProvider
	clock      func() time.Time
	logger     *log.Entry
}

func NewNotary(name string, uniqueness UniquenessProvider, logger *log.Logger) (*Notary, error) {
	keys, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if uniqueness == nil {
		uniqueness = NewMemoryUniqueness()
	}
	return &Notary{
		party:      Party{Name: name, Key: keys.Public},
		keys:       keys,
		uniqueness: uniqueness,
		clock:      time.Now,
		logger:     logger.WithField("notary", name),
	}, nil
}

func (n *Notary) Party() Party {
	return n.party
}

// Notarise checks stx and returns the notary signature over it.
func (n *Notary) Notarise(ctx context.Context, stx *SignedTransaction) (Signature, error) {
	tx := stx.Tx
	if tx.Notary == nil || tx.Notary.Key != n.party.Key {
		return Signature{}, newNotaryError(tx.ID, nil, "transaction %s is not assigned to notary %s", tx.ID, n.party)
	}
	if err := stx.VerifySignaturesExcept(n.party.Key); err != nil {
		return Signature{}, err
	}
	if tx.TimeWindow != nil && !tx.TimeWindow.Contains(n.clock()) {
		return Signature{}, newNotaryError(tx.ID, nil, "transaction %s is outside its time window", tx.ID)
	}

	refs := make([]StateRef, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		refs = append(refs, in.Ref)
	}
	if err := n.uniqueness.Commit(ctx, refs, tx.ID); err != nil {
		n.logger.Warnf("Fail to commit inputs of %s: %v", tx.ID, err)
		return Signature{}, err
	}
	n.logger.Debugf("Notarised %s with %d inputs", tx.ID, len(refs))
	return n.keys.Sign([]byte(tx.ID)), nil
}
