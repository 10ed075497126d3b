package transport

import (
	"encoding/json"

	"github.com/gogo/protobuf/proto"
	protov1 "github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/msp"
	"github.com/osdi23p228/fabric/protoutil"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
)

const (
	// frameOpen starts a session; its channel id carries the flow name.
	frameOpen common.HeaderType = 1000 + iota
	// frameMessage carries a ledger message as JSON.
	frameMessage
)

// frame is the decoded content of an envelope.
type frame struct {
	kind      common.HeaderType
	flowName  string
	sessionID string
	creator   ledger.Party
	msg       *ledger.Message
}

// Signer signs frames on behalf of a local party.
type Signer interface {
	Identity() ledger.Party
	SignBytes(data []byte) ([]byte, error)
}

func serializeIdentity(p ledger.Party) ([]byte, error) {
	id := &msp.SerializedIdentity{
		Mspid:   p.Name,
		IdBytes: []byte(p.Key),
	}
	raw, err := proto.Marshal(id)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling identity")
	}
	return raw, nil
}

func deserializeIdentity(raw []byte) (ledger.Party, error) {
	id := &msp.SerializedIdentity{}
	if err := proto.Unmarshal(raw, id); err != nil {
		return ledger.Party{}, errors.Wrap(err, "error unmarshaling identity")
	}
	return ledger.Party{Name: id.Mspid, Key: ledger.PublicKey(id.IdBytes)}, nil
}

// sealFrame wraps msg in an envelope signed by signer.
func sealFrame(signer Signer, kind common.HeaderType, sessionID, flowName string, msg *ledger.Message) (*common.Envelope, error) {
	var data []byte
	if msg != nil {
		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, errors.Wrap(err, "error marshaling message")
		}
		data = raw
	}

	creator, err := serializeIdentity(signer.Identity())
	if err != nil {
		return nil, err
	}
	nonce, err := protoutil.CreateNonce()
	if err != nil {
		return nil, err
	}

	chdr := protoutil.MakeChannelHeader(kind, 0, flowName, 0)
	chdr.TxId = sessionID
	shdr := protoutil.MakeSignatureHeader(creator, nonce)
	payload := &common.Payload{
		Header: protoutil.MakePayloadHeader(chdr, shdr),
		Data:   data,
	}
	payloadBytes, err := protov1.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling payload")
	}

	signature, err := signer.SignBytes(payloadBytes)
	if err != nil {
		return nil, err
	}
	return &common.Envelope{Payload: payloadBytes, Signature: signature}, nil
}

// openFrame checks the envelope signature against its creator and decodes it.
// When expected is set the creator must carry the same key.
func openFrame(env *common.Envelope, expected *ledger.Party) (*frame, error) {
	payload, err := protoutil.UnmarshalPayload(env.Payload)
	if err != nil {
		return nil, err
	}
	if payload.Header == nil {
		return nil, errors.New("envelope has no header")
	}
	chdr, err := protoutil.UnmarshalChannelHeader(payload.Header.ChannelHeader)
	if err != nil {
		return nil, err
	}
	shdr, err := protoutil.UnmarshalSignatureHeader(payload.Header.SignatureHeader)
	if err != nil {
		return nil, err
	}
	creator, err := deserializeIdentity(shdr.Creator)
	if err != nil {
		return nil, err
	}
	if expected != nil && creator.Key != expected.Key {
		return nil, errors.Errorf("frame signed by %s, expected %s", creator, *expected)
	}
	if !creator.Key.Verify(env.Payload, env.Signature) {
		return nil, &ledger.SignatureError{Reason: "invalid frame signature by " + creator.String()}
	}

	f := &frame{
		kind:      common.HeaderType(chdr.Type),
		flowName:  chdr.ChannelId,
		sessionID: chdr.TxId,
		creator:   creator,
	}
	if len(payload.Data) > 0 {
		msg := &ledger.Message{}
		if err := json.Unmarshal(payload.Data, msg); err != nil {
			return nil, errors.Wrap(err, "error unmarshaling message")
		}
		f.msg = msg
	}
	return f, nil
}
