package ledger

import "sync"

// Vault stores finalized transactions and the states still unconsumed.
type Vault struct {
	mu         sync.RWMutex
	txs        map[string]*SignedTransaction
	order      []string
	unconsumed map[StateRef]StateAndRef
}

func NewVault() *Vault {
	return &Vault{
		txs:        make(map[string]*SignedTransaction),
		unconsumed: make(map[StateRef]StateAndRef),
	}
}

// Record stores stx once. Outputs accepted by relevant become unconsumed states.
func (v *Vault) Record(stx *SignedTransaction, relevant func(State) bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.txs[stx.ID()]; ok {
		return false
	}
	v.txs[stx.ID()] = stx
	v.order = append(v.order, stx.ID())
	for _, in := range stx.Tx.Inputs {
		delete(v.unconsumed, in.Ref)
	}
	for _, out := range stx.Tx.OutRefs() {
		if relevant == nil || relevant(out.State) {
			v.unconsumed[out.Ref] = out
		}
	}
	return true
}

func (v *Vault) Transaction(id string) (*SignedTransaction, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	stx, ok := v.txs[id]
	return stx, ok
}

// Transactions returns the recorded transactions in recording order.
func (v *Vault) Transactions() []*SignedTransaction {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*SignedTransaction, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.txs[id])
	}
	return out
}

// Unconsumed returns the unconsumed states of a contract, or all of them when contract is empty.
func (v *Vault) Unconsumed(contract string) []StateAndRef {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []StateAndRef
	for _, id := range v.order {
		for i := range v.txs[id].Tx.Outputs {
			ref := StateRef{TxID: id, Index: i}
			sr, ok := v.unconsumed[ref]
			if !ok || (contract != "" && sr.State.Contract != contract) {
				continue
			}
			out = append(out, sr)
		}
	}
	return out
}
