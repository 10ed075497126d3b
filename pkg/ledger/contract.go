package ledger

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Contract decides whether a transaction is valid for the states it governs.
type Contract interface {
	Verify(tx *WireTransaction) error
}

type ContractFunc func(tx *WireTransaction) error

func (f ContractFunc) Verify(tx *WireTransaction) error {
	return f(tx)
}

// Contracts is the registry used to verify transactions by contract name.
type Contracts struct {
	mu     sync.RWMutex
	byName map[string]Contract
}

func NewContracts() *Contracts {
	return &Contracts{byName: make(map[string]Contract)}
}

func (c *Contracts) Register(name string, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[name] = contract
}

// Verify runs every contract referenced by the inputs or outputs of tx.
func (c *Contracts) Verify(tx *WireTransaction) error {
	var names []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for _, in := range tx.Inputs {
		add(in.State.Contract)
	}
	for _, out := range tx.Outputs {
		add(out.Contract)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range names {
		contract, ok := c.byName[name]
		if !ok {
			return &VerificationError{
				TxID:     tx.ID,
				Contract: name,
				Reason:   fmt.Sprintf("no contract registered for %s", name),
			}
		}
		if err := contract.Verify(tx); err != nil {
			var verr *VerificationError
			if errors.As(err, &verr) {
				return &VerificationError{TxID: tx.ID, Contract: name, Reason: verr.Reason}
			}
			return &VerificationError{TxID: tx.ID, Contract: name, Reason: err.Error()}
		}
	}
	return nil
}
