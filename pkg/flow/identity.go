package flow

import (
	"context"

	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
)

// WellKnownParty returns p unchanged when it already has a name, otherwise
// asks the identity service for the owner of its key.
func WellKnownParty(ctx context.Context, ids ledger.Identity, p ledger.Party) (ledger.Party, error) {
	if !p.IsAnonymous() {
		return p, nil
	}
	return ids.WellKnownParty(ctx, p)
}

func WellKnownParties(ctx context.Context, ids ledger.Identity, parties []ledger.Party) ([]ledger.Party, error) {
	out := make([]ledger.Party, 0, len(parties))
	for _, p := range parties {
		wk, err := WellKnownParty(ctx, ids, p)
		if err != nil {
			return nil, err
		}
		out = append(out, wk)
	}
	return ledger.DistinctParties(out), nil
}

// PartitionOursAndTheirs splits distinct parties by whether we own their key.
func PartitionOursAndTheirs(ids ledger.Identity, parties []ledger.Party) (ours, theirs []ledger.Party) {
	for _, p := range ledger.DistinctParties(parties) {
		if ids.IsOurKey(p.Key) {
			ours = append(ours, p)
		} else {
			theirs = append(theirs, p)
		}
	}
	return ours, theirs
}

// CounterParties returns the parties we do not own.
func CounterParties(ids ledger.Identity, parties []ledger.Party) []ledger.Party {
	_, theirs := PartitionOursAndTheirs(ids, parties)
	return theirs
}

func FirstNotary(ids ledger.Identity) (ledger.Party, error) {
	notaries := ids.Notaries()
	if len(notaries) == 0 {
		return ledger.Party{}, errors.New("no notary found")
	}
	return notaries[0], nil
}

func NotaryByName(ids ledger.Identity, name string) (ledger.Party, error) {
	for _, n := range ids.Notaries() {
		if n.Name == name {
			return n, nil
		}
	}
	return ledger.Party{}, errors.Errorf("no notary named %s", name)
}
