package ledger

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func moveTx(t *testing.T, notary Party, owner Party, ownerKeys *KeyPair, ref StateRef) *SignedTransaction {
	b := NewBuilder(&notary)
	b.AddInputState(StateAndRef{State: State{Contract: "note", Participants: []Party{owner}}, Ref: ref})
	b.AddOutputState(State{Contract: "note", Participants: []Party{owner}})
	b.AddCommand("Move", owner.Key)
	tx, err := b.ToWireTransaction()
	require.NoError(t, err)
	return (&SignedTransaction{Tx: tx}).WithAdditionalSignatures(ownerKeys.Sign([]byte(tx.ID)))
}

func testUniqueness(t *testing.T, u UniquenessProvider) {
	ctx := context.Background()
	notary, err := NewNotary("notary", u, quietLogger())
	require.NoError(t, err)
	alice, aliceKeys := newParty(t, "alice")
	ref := StateRef{TxID: "issue", Index: 0}

	first := moveTx(t, notary.Party(), alice, aliceKeys, ref)
	sig, err := notary.Notarise(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, notary.Party().Key, sig.By)
	assert.NoError(t, first.WithAdditionalSignatures(sig).VerifyRequiredSignatures())

	_, err = notary.Notarise(ctx, first)
	assert.NoError(t, err, "re-notarising the same transaction is idempotent")

	second := moveTx(t, notary.Party(), alice, aliceKeys, ref)
	_, err = notary.Notarise(ctx, second)
	var nerr *NotaryError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, []StateRef{ref}, nerr.Conflicts)
	var ferr *FlowError
	assert.ErrorAs(t, err, &ferr)
}

func TestMemoryUniqueness(t *testing.T) {
	testUniqueness(t, NewMemoryUniqueness())
}

func TestRedisUniqueness(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	testUniqueness(t, NewRedisUniqueness(client, "partiture:", quietLogger()))
}

func TestRedisUniquenessReleasesOnConflict(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	u := NewRedisUniqueness(client, "p:", quietLogger())
	spent := StateRef{TxID: "a", Index: 0}
	fresh := StateRef{TxID: "b", Index: 0}

	require.NoError(t, u.Commit(ctx, []StateRef{spent}, "tx1"))
	err = u.Commit(ctx, []StateRef{fresh, spent}, "tx2")
	require.Error(t, err)
	assert.False(t, mr.Exists("p:spent:"+fresh.String()))
	assert.NoError(t, u.Commit(ctx, []StateRef{fresh}, "tx3"))
}

func TestRedisUniquenessWarnsWhenReleaseFails(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	logger, hook := logtest.NewNullLogger()
	u := NewRedisUniqueness(client, "p:", logger)
	mr.Close()

	u.release(context.Background(), []string{"p:spent:a(0)"})

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "Fail to release")
}

func TestNotaryRejectsWrongNotaryAndTimeWindow(t *testing.T) {
	ctx := context.Background()
	notary, err := NewNotary("notary", nil, quietLogger())
	require.NoError(t, err)
	other, _ := newParty(t, "other")
	alice, aliceKeys := newParty(t, "alice")

	_, err = notary.Notarise(ctx, moveTx(t, other, alice, aliceKeys, StateRef{TxID: "x"}))
	assert.Error(t, err)

	notaryParty := notary.Party()
	b := NewBuilder(&notaryParty)
	b.AddOutputState(State{Contract: "note", Participants: []Party{alice}})
	b.AddCommand("Issue", alice.Key)
	b.SetTimeWindowAround(time.Now().Add(-time.Hour), time.Minute)
	tx, err := b.ToWireTransaction()
	require.NoError(t, err)
	stx := (&SignedTransaction{Tx: tx}).WithAdditionalSignatures(aliceKeys.Sign([]byte(tx.ID)))
	_, err = notary.Notarise(ctx, stx)
	var nerr *NotaryError
	assert.ErrorAs(t, err, &nerr)
}
