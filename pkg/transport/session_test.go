package transport

import (
	"context"
	"io"
	"testing"

	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanStream delivers queued envelopes and reports io.EOF once in is closed.
type chanStream struct {
	in chan *common.Envelope
}

func (c *chanStream) SendMsg(m interface{}) error {
	return nil
}

func (c *chanStream) RecvMsg(m interface{}) error {
	env, ok := <-c.in
	if !ok {
		return io.EOF
	}
	out := m.(*common.Envelope)
	out.Payload = env.Payload
	out.Signature = env.Signature
	return nil
}

func TestReceiveAfterCancelKeepsMessages(t *testing.T) {
	alice := newTestSigner(t, "alice")
	bob := newTestSigner(t, "bob")
	st := &chanStream{in: make(chan *common.Envelope, 2)}
	s := newStreamSession("session-1", "yo", alice.party, bob, st, func() error { return nil })

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Receive(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	for _, text := range []string{"first", "second"} {
		env, err := sealFrame(alice, frameMessage, "session-1", "yo", &ledger.Message{Kind: ledger.MessageReject, Error: text})
		require.NoError(t, err)
		st.in <- env
	}

	ctx := context.Background()
	msg, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Error)
	msg, err = s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Error)

	close(st.in)
	_, err = s.Receive(ctx)
	assert.ErrorIs(t, err, ledger.ErrSessionClosed)
	_, err = s.Receive(ctx)
	assert.ErrorIs(t, err, ledger.ErrSessionClosed, "the end of the stream is sticky")
	assert.NoError(t, s.Close())
}

func TestReceiveRejectsFramesFromOtherParties(t *testing.T) {
	alice := newTestSigner(t, "alice")
	bob := newTestSigner(t, "bob")
	mallory := newTestSigner(t, "mallory")
	st := &chanStream{in: make(chan *common.Envelope, 1)}
	s := newStreamSession("session-1", "yo", alice.party, bob, st, func() error { return nil })

	env, err := sealFrame(mallory, frameMessage, "session-1", "yo", &ledger.Message{Kind: ledger.MessageReject})
	require.NoError(t, err)
	st.in <- env

	_, err = s.Receive(context.Background())
	assert.Error(t, err)
	close(st.in)
}
