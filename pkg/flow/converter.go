package flow

import (
	"context"

	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
)

// InputConverter turns the input of a flow into its call context.
type InputConverter[IN any] interface {
	ConvertInput(ctx context.Context, env *Env, input IN) (*CallContext, error)
}

type InputConverterFunc[IN any] func(ctx context.Context, env *Env, input IN) (*CallContext, error)

func (f InputConverterFunc[IN]) ConvertInput(ctx context.Context, env *Env, input IN) (*CallContext, error) {
	return f(ctx, env, input)
}

// OutputConverter turns the executed call context into the flow result.
type OutputConverter[OUT any] interface {
	ConvertOutput(ctx context.Context, env *Env, call *CallContext) (OUT, error)
}

type OutputConverterFunc[OUT any] func(ctx context.Context, env *Env, call *CallContext) (OUT, error)

func (f OutputConverterFunc[OUT]) ConvertOutput(ctx context.Context, env *Env, call *CallContext) (OUT, error) {
	return f(ctx, env, call)
}

// ErrMissingFinalized is returned by output converters when an entry has
// no finalized transaction.
var ErrMissingFinalized = errors.New("could not find a finalized transaction while converting output")

// FinalizedTxs returns the finalized transaction of every entry. Entries
// without one are skipped when AllowMissing is set.
type FinalizedTxs struct {
	AllowMissing bool
}

func (c FinalizedTxs) ConvertOutput(_ context.Context, _ *Env, call *CallContext) ([]*ledger.SignedTransaction, error) {
	var txs []*ledger.SignedTransaction
	for i, e := range call.Entries {
		if e.Finalized == nil {
			if c.AllowMissing {
				continue
			}
			return nil, errors.Wrapf(ErrMissingFinalized, "entry %d", i)
		}
		txs = append(txs, e.Finalized)
	}
	return txs, nil
}

// SingleFinalizedTx expects exactly one finalized transaction.
type SingleFinalizedTx struct{}

func (SingleFinalizedTx) ConvertOutput(ctx context.Context, env *Env, call *CallContext) (*ledger.SignedTransaction, error) {
	txs, err := FinalizedTxs{}.ConvertOutput(ctx, env, call)
	if err != nil {
		return nil, err
	}
	if len(txs) != 1 {
		return nil, errors.Errorf("expected a single finalized transaction, found %d", len(txs))
	}
	return txs[0], nil
}

// OutputStates returns the outputs of every finalized transaction that pass Filter.
type OutputStates struct {
	Filter func(ledger.State) bool
}

func (c OutputStates) ConvertOutput(ctx context.Context, env *Env, call *CallContext) ([]ledger.StateAndRef, error) {
	txs, err := FinalizedTxs{}.ConvertOutput(ctx, env, call)
	if err != nil {
		return nil, err
	}
	var states []ledger.StateAndRef
	for _, stx := range txs {
		for _, out := range stx.Tx.OutRefs() {
			if c.Filter == nil || c.Filter(out.State) {
				states = append(states, out)
			}
		}
	}
	return states, nil
}

// TypedOutputStates returns the outputs governed by Contract.
type TypedOutputStates struct {
	Contract string
}

func (c TypedOutputStates) ConvertOutput(ctx context.Context, env *Env, call *CallContext) ([]ledger.StateAndRef, error) {
	return OutputStates{Filter: func(s ledger.State) bool { return s.Contract == c.Contract }}.ConvertOutput(ctx, env, call)
}

// TypedOutputSingleState expects exactly one output governed by Contract.
type TypedOutputSingleState struct {
	Contract string
}

func (c TypedOutputSingleState) ConvertOutput(ctx context.Context, env *Env, call *CallContext) (ledger.StateAndRef, error) {
	states, err := TypedOutputStates(c).ConvertOutput(ctx, env, call)
	if err != nil {
		return ledger.StateAndRef{}, err
	}
	if len(states) != 1 {
		return ledger.StateAndRef{}, errors.Errorf("expected a single %s output, found %d", c.Contract, len(states))
	}
	return states[0], nil
}
