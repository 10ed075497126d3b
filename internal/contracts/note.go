package contracts

import (
	"context"

	"github.com/partiture/partiture/pkg/flow"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	NoteContract = "note"
	NoteFlow     = "note"
	IssueCommand = "Issue"
	MoveCommand  = "Move"
)

func NewNoteState(owner ledger.Party, text string) ledger.State {
	return ledger.State{
		Contract:     NoteContract,
		Participants: []ledger.Party{owner},
		Data:         map[string]string{"text": text},
	}
}

// VerifyNote accepts issuing notes and moving them to a new owner. The text
// of a note never changes.
func VerifyNote(tx *ledger.WireTransaction) error {
	if err := ledger.Require(len(tx.Commands) == 1, "There must be a single note command."); err != nil {
		return err
	}
	cmd := tx.Commands[0]
	signers := make(map[ledger.PublicKey]struct{}, len(cmd.Signers))
	for _, k := range cmd.Signers {
		signers[k] = struct{}{}
	}
	switch cmd.Name {
	case IssueCommand:
		if err := ledger.Require(len(tx.Inputs) == 0, "Issuing a note consumes nothing."); err != nil {
			return err
		}
		if err := ledger.Require(len(tx.Outputs) > 0, "Issuing creates at least one note."); err != nil {
			return err
		}
		for _, out := range tx.Outputs {
			if err := ledger.Require(len(out.Participants) == 1, "A note has a single owner."); err != nil {
				return err
			}
			_, ok := signers[out.Participants[0].Key]
			if err := ledger.Require(ok, "The issuer must sign."); err != nil {
				return err
			}
		}
		return nil
	case MoveCommand:
		if err := ledger.Require(len(tx.Inputs) == 1 && len(tx.Outputs) == 1, "Moving consumes one note and creates one note."); err != nil {
			return err
		}
		in, out := tx.Inputs[0].State, tx.Outputs[0]
		if err := ledger.Require(in.Contract == NoteContract, "Only notes can be moved."); err != nil {
			return err
		}
		if err := ledger.Require(len(out.Participants) == 1 && len(in.Participants) == 1, "A note has a single owner."); err != nil {
			return err
		}
		if err := ledger.Require(in.Data["text"] == out.Data["text"], "The text of a note cannot change."); err != nil {
			return err
		}
		_, oldSigned := signers[in.Participants[0].Key]
		_, newSigned := signers[out.Participants[0].Key]
		return ledger.Require(oldSigned && newSigned, "Both owners must sign a move.")
	}
	return errors.Errorf("unknown note command %s", cmd.Name)
}

// NoteTransfer issues a note to ourselves and moves it to Recipient within
// one call. The move spends the issued output before it is finalized,
// relying on entries being executed in order.
type NoteTransfer struct {
	Recipient ledger.Party
	Text      string
}

func noteInput(_ context.Context, env *flow.Env, in NoteTransfer) (*flow.CallContext, error) {
	notary, err := flow.FirstNotary(env.Ledger)
	if err != nil {
		return nil, err
	}
	me := env.Ledger.OurIdentity()

	issue := ledger.NewBuilder(&notary)
	issue.AddOutputState(NewNoteState(me, in.Text))
	issue.AddCommand(IssueCommand, me.Key)
	issued, err := issue.ToWireTransaction()
	if err != nil {
		return nil, err
	}

	move := ledger.NewBuilder(&notary)
	move.AddInputState(issued.OutRef(0))
	move.AddOutputState(NewNoteState(in.Recipient, in.Text))
	move.AddCommandFromParticipants(MoveCommand)

	call := flow.NewCallContextFromBuilders(issue, move)
	call.Entries[1].AddMeta("issuedBy", issued.ID)
	return call, nil
}

// NewNoteFlow returns the moved note.
func NewNoteFlow(svc ledger.Service, opts ...flow.Option) *flow.Flow[NoteTransfer, ledger.StateAndRef] {
	out := flow.OutputConverterFunc[ledger.StateAndRef](func(ctx context.Context, env *flow.Env, call *flow.CallContext) (ledger.StateAndRef, error) {
		last := flow.NewCallContext(call.Entries[len(call.Entries)-1])
		return flow.TypedOutputSingleState{Contract: NoteContract}.ConvertOutput(ctx, env, last)
	})
	return flow.New[NoteTransfer, ledger.StateAndRef](NoteFlow, svc, flow.InputConverterFunc[NoteTransfer](noteInput), out, opts...)
}

func NewNoteResponder(svc ledger.Service, logger *log.Logger) *flow.ResponderFlow {
	return flow.NewResponderFlow(svc, flow.TypeCheckingResponderStrategy(NoteContract), logger)
}

// Register installs every contract of this package.
func Register(c *ledger.Contracts) {
	c.Register(YoContract, ledger.ContractFunc(VerifyYo))
	c.Register(NoteContract, ledger.ContractFunc(VerifyNote))
}

// RegisterResponders installs the responders of every flow of this package on node.
func RegisterResponders(node *ledger.Node, logger *log.Logger) {
	node.RegisterResponder(YoFlow, NewYoResponder(node, logger).Handler())
	node.RegisterResponder(NoteFlow, NewNoteResponder(node, logger).Handler())
}
