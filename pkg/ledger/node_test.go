package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFlow = "test-flow"

func testNetwork(t *testing.T) (*Network, *Node, *Node, *Notary) {
	contracts := NewContracts()
	contracts.Register("yo", ContractFunc(func(tx *WireTransaction) error {
		return Require(len(tx.Outputs) == 1, "There can be only one output state.")
	}))
	contracts.Register("note", ContractFunc(func(tx *WireTransaction) error { return nil }))
	network := NewNetwork(contracts, nil, quietLogger())
	notary, err := network.AddNotary("notary", nil)
	require.NoError(t, err)
	alice, err := network.AddNode("alice")
	require.NoError(t, err)
	bob, err := network.AddNode("bob")
	require.NoError(t, err)
	return network, alice, bob, notary
}

// signingResponder signs every proposal and waits for the finalized transaction.
func signingResponder(node *Node, done chan<- *SignedTransaction) ResponderFunc {
	return func(ctx context.Context, s Session) error {
		stx, err := node.ReceiveProposal(ctx, s)
		if err != nil {
			return err
		}
		if err := node.VerifyTransaction(ctx, stx.Tx); err != nil {
			return node.Reject(ctx, s, err)
		}
		signed, err := node.SignProposal(ctx, stx)
		if err != nil {
			return err
		}
		if err := node.SendSignatures(ctx, s, signed); err != nil {
			return err
		}
		final, err := node.ReceiveFinalized(ctx, s, signed.ID())
		if err != nil {
			return err
		}
		done <- final
		return nil
	}
}

func TestNodeTwoPartyExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, alice, bob, _ := testNetwork(t)
	done := make(chan *SignedTransaction, 1)
	bob.RegisterResponder(testFlow, signingResponder(bob, done))

	b := NewBuilder(nil)
	b.AddOutputState(State{Contract: "yo", Participants: []Party{alice.Identity(), bob.Identity()}})
	b.AddCommandFromParticipants("Send")

	initial, err := alice.Sign(ctx, b, []PublicKey{alice.Identity().Key})
	require.NoError(t, err)
	session, err := alice.OpenSession(ctx, testFlow, bob.Identity())
	require.NoError(t, err)
	defer session.Close()

	var labels []string
	ctx = WithProgress(ctx, func(label string) { labels = append(labels, label) })
	signed, err := alice.CollectSignatures(ctx, initial, []Session{session}, []PublicKey{alice.Identity().Key})
	require.NoError(t, err)
	assert.ElementsMatch(t, []PublicKey{alice.Identity().Key, bob.Identity().Key}, signed.Signers())

	final, err := alice.Finalize(ctx, signed, []Session{session})
	require.NoError(t, err)
	assert.Equal(t, []string{ProgressCollecting, ProgressVerifyingCollected, ProgressRecording, ProgressBroadcasting}, labels)

	got := <-done
	assert.Equal(t, final.ID(), got.ID())
	_, ok := bob.Vault().Transaction(final.ID())
	assert.True(t, ok)
	assert.Len(t, alice.Vault().Unconsumed("yo"), 1)
}

func TestNodeRejectIsPropagatedVerbatim(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, alice, bob, _ := testNetwork(t)
	bob.RegisterResponder(testFlow, signingResponder(bob, make(chan *SignedTransaction, 1)))

	b := NewBuilder(nil)
	b.AddOutputState(State{Contract: "yo", Participants: []Party{alice.Identity(), bob.Identity()}})
	b.AddOutputState(State{Contract: "yo", Participants: []Party{alice.Identity(), bob.Identity()}})
	b.AddCommandFromParticipants("Send")

	initial, err := alice.Sign(ctx, b, nil)
	require.NoError(t, err)
	session, err := alice.OpenSession(ctx, testFlow, bob.Identity())
	require.NoError(t, err)
	defer session.Close()

	_, err = alice.CollectSignatures(ctx, initial, []Session{session}, nil)
	var ferr *FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "There can be only one output state.", ferr.Message)
	assert.NotZero(t, ferr.ErrorID)
}

func TestNodeUnknownResponder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, alice, bob, _ := testNetwork(t)

	session, err := alice.OpenSession(ctx, "missing", bob.Identity())
	require.NoError(t, err)
	msg, err := session.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageReject, msg.Kind)
}

func TestNodeIdentitySync(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, alice, bob, _ := testNetwork(t)
	done := make(chan *SignedTransaction, 1)
	bob.RegisterResponder(testFlow, signingResponder(bob, done))

	conf, err := alice.FreshConfidentialIdentity(ctx)
	require.NoError(t, err)
	assert.True(t, conf.IsAnonymous())
	_, err = bob.WellKnownParty(ctx, conf)
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)

	b := NewBuilder(nil)
	b.AddOutputState(State{Contract: "yo", Participants: []Party{conf, bob.Identity()}})
	b.AddCommandFromParticipants("Send")
	initial, err := alice.Sign(ctx, b, []PublicKey{conf.Key})
	require.NoError(t, err)

	session, err := alice.OpenSession(ctx, testFlow, bob.Identity())
	require.NoError(t, err)
	defer session.Close()
	require.NoError(t, alice.SyncIdentities(ctx, []Session{session}, initial.Tx))
	signed, err := alice.CollectSignatures(ctx, initial, []Session{session}, []PublicKey{conf.Key})
	require.NoError(t, err)
	_, err = alice.Finalize(ctx, signed, []Session{session})
	require.NoError(t, err)
	<-done

	owner, err := bob.WellKnownParty(ctx, conf)
	require.NoError(t, err)
	assert.Equal(t, alice.Identity(), owner)
}

func TestNodeFinalizeNotarisesInputs(t *testing.T) {
	ctx := context.Background()
	_, alice, _, notary := testNetwork(t)
	notaryParty := notary.Party()

	issue := NewBuilder(&notaryParty)
	issue.AddOutputState(State{Contract: "note", Participants: []Party{alice.Identity()}})
	issue.AddCommand("Issue", alice.Identity().Key)
	issued, err := alice.Sign(ctx, issue, nil)
	require.NoError(t, err)
	issued, err = alice.Finalize(ctx, issued, nil)
	require.NoError(t, err)
	assert.Len(t, issued.Sigs, 1)

	move := func() *SignedTransaction {
		b := NewBuilder(&notaryParty)
		b.AddInputState(issued.Tx.OutRef(0))
		b.AddOutputState(State{Contract: "note", Participants: []Party{alice.Identity()}})
		b.AddCommand("Move", alice.Identity().Key)
		stx, err := alice.Sign(ctx, b, nil)
		require.NoError(t, err)
		return stx
	}
	moved, err := alice.Finalize(ctx, move(), nil)
	require.NoError(t, err)
	assert.Contains(t, moved.Signers(), notaryParty.Key)
	assert.Len(t, alice.Vault().Unconsumed("note"), 1)

	_, err = alice.Finalize(ctx, move(), nil)
	var nerr *NotaryError
	assert.ErrorAs(t, err, &nerr)
}
