package flow

import (
	"context"

	"github.com/partiture/partiture/pkg/ledger"
)

// SimpleTxStrategy signs, gathers counterparty signatures when there are
// counterparties, verifies and finalizes each entry.
type SimpleTxStrategy struct{}

func (SimpleTxStrategy) Lifecycle() Lifecycle {
	return SimpleInitiatingLifecycle
}

func (s SimpleTxStrategy) ExecuteFor(ctx context.Context, env *Env, index int, entry TxEntry) (TxEntry, error) {
	logger := env.Logger.WithField("entry", index)

	env.Step(SignInitialTx)
	ours, theirs := PartitionOursAndTheirs(env.Ledger, entry.Participants)
	keys := env.OurParticipatingKeys(ctx, ours)
	initial, err := env.Ledger.Sign(ctx, entry.Builder, keys)
	if err != nil {
		return entry, err
	}
	entry.Initial = initial
	logger.Debugf("Signed %s, ours: %v, counterparties: %v", initial.ID(), ours, theirs)

	var sessions []ledger.Session
	if len(theirs) > 0 {
		env.Step(CreateSessions)
		var opened []ledger.Session
		sessions, opened, err = env.createSessions(ctx, theirs)
		if err != nil {
			return entry, err
		}

		if env.SyncMode.shouldSync(ours, len(sessions)) {
			env.Step(SyncIdentities)
			if err := env.Ledger.SyncIdentities(env.WithChildProgress(ctx, SyncIdentities), sessions, initial.Tx); err != nil {
				return entry, err
			}
		}
		if len(opened) > 0 {
			if err := env.Hooks.postCreateSessions(ctx, env, opened); err != nil {
				return entry, err
			}
		}

		env.Step(GatherSignatures)
		counterSigned, err := env.Ledger.CollectSignatures(env.WithChildProgress(ctx, GatherSignatures), initial, sessions, keys)
		if err != nil {
			return entry, err
		}
		entry.CounterSigned = counterSigned
	}

	signed := entry.CounterSigned
	if signed == nil {
		signed = entry.Initial
	}

	env.Step(VerifySignatures)
	var exclude []ledger.PublicKey
	if notary := entry.Builder.Notary(); notary != nil {
		exclude = append(exclude, notary.Key)
	}
	if err := env.Ledger.VerifySignatures(ctx, signed, exclude...); err != nil {
		return entry, err
	}

	env.Step(VerifyTransactionData)
	if err := env.Ledger.Verify(ctx, entry.Builder); err != nil {
		return entry, err
	}

	env.Step(Finalize)
	finalized, err := env.Ledger.Finalize(env.WithChildProgress(ctx, Finalize), signed, sessions)
	if err != nil {
		return entry, err
	}
	entry.Finalized = finalized
	logger.Infof("Finalized %s", finalized.ID())

	env.Step(PostExecuteTransactions)
	err = env.Hooks.postExecuteFor(ctx, env, EntryResult{
		Index:    index,
		Entry:    entry,
		Ours:     ours,
		Theirs:   theirs,
		Sessions: sessions,
	})
	return entry, err
}
