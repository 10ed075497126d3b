package flow

import "context"

// TxStrategy drives one entry from its builder to a finalized transaction.
// It returns the entry with every field it managed to fill in, even on failure.
type TxStrategy interface {
	Lifecycle() Lifecycle
	ExecuteFor(ctx context.Context, env *Env, index int, entry TxEntry) (TxEntry, error)
}

// Execute runs s over every entry of the call in order and stops at the
// first failure. Entries already finalized stay finalized.
func Execute(ctx context.Context, s TxStrategy, env *Env) error {
	for i := range env.Call.Entries {
		if env.Tracker != nil {
			env.Tracker.SetEntry(i)
		}
		updated, err := s.ExecuteFor(ctx, env, i, env.Call.Entries[i])
		env.Call.Entries[i] = updated
		if err != nil {
			step := ""
			if env.Tracker != nil {
				step = env.Tracker.Current().Name
			}
			return newExecutionError(step, i, err)
		}
	}
	if env.Tracker != nil {
		env.Tracker.SetEntry(-1)
	}
	return nil
}
