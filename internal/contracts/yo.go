package contracts

import (
	"context"

	"github.com/partiture/partiture/pkg/flow"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	YoContract = "yo"
	YoFlow     = "yo"
	YoCommand  = "Send"
)

// NewYoState sends msg from sender to recipient.
func NewYoState(sender, recipient ledger.Party, msg string) ledger.State {
	return ledger.State{
		Contract:     YoContract,
		Participants: []ledger.Party{sender, recipient},
		Data:         map[string]string{"yo": msg},
	}
}

// VerifyYo accepts a single new yo between two distinct parties, signed by the sender.
func VerifyYo(tx *ledger.WireTransaction) error {
	if err := ledger.Require(len(tx.Commands) == 1 && tx.Commands[0].Name == YoCommand, "There must be a single Send command."); err != nil {
		return err
	}
	if err := ledger.Require(len(tx.Inputs) == 0, "There can be no inputs when Yo'ing other parties."); err != nil {
		return err
	}
	if err := ledger.Require(len(tx.Outputs) == 1, "There must be one output: The Yo!"); err != nil {
		return err
	}
	yo := tx.Outputs[0]
	if err := ledger.Require(len(yo.Participants) == 2, "A Yo has a sender and a recipient."); err != nil {
		return err
	}
	sender, recipient := yo.Participants[0], yo.Participants[1]
	if err := ledger.Require(sender.Key != recipient.Key, "No sending Yo's to yourself!"); err != nil {
		return err
	}
	signed := false
	for _, k := range tx.Commands[0].Signers {
		if k == sender.Key {
			signed = true
		}
	}
	return ledger.Require(signed, "The Yo! must be signed by the sender.")
}

// Yo is the input of the yo flow.
type Yo struct {
	Recipient ledger.Party
	Message   string
	// Anonymous sends from a fresh confidential identity.
	Anonymous bool
}

func yoInput(ctx context.Context, env *flow.Env, in Yo) (*flow.CallContext, error) {
	sender := env.Ledger.OurIdentity()
	if in.Anonymous {
		conf, err := env.Ledger.FreshConfidentialIdentity(ctx)
		if err != nil {
			return nil, err
		}
		sender = conf
	}
	notary, err := flow.FirstNotary(env.Ledger)
	if err != nil {
		return nil, err
	}
	b := ledger.NewBuilder(&notary)
	b.AddOutputState(NewYoState(sender, in.Recipient, in.Message))
	b.AddCommandFromParticipants(YoCommand)
	return flow.NewCallContextFromBuilders(b), nil
}

// NewYoFlow sends a yo and returns the finalized transaction.
func NewYoFlow(svc ledger.Service, opts ...flow.Option) *flow.Flow[Yo, *ledger.SignedTransaction] {
	return flow.New[Yo, *ledger.SignedTransaction](YoFlow, svc, flow.InputConverterFunc[Yo](yoInput), flow.SingleFinalizedTx{}, opts...)
}

// NewYoResponder only signs proposals whose outputs are yos.
func NewYoResponder(svc ledger.Service, logger *log.Logger) *flow.ResponderFlow {
	strategy := flow.TypeCheckingResponderStrategy(YoContract)
	check := strategy.Check
	strategy.Check = func(ctx context.Context, svc ledger.Service, stx *ledger.SignedTransaction) error {
		if err := check(ctx, svc, stx); err != nil {
			return err
		}
		for _, out := range stx.Tx.Outputs {
			if len(out.Participants) != 2 || !svc.IsOurKey(out.Participants[1].Key) {
				return errors.New("Yo must be addressed to us")
			}
		}
		return nil
	}
	return flow.NewResponderFlow(svc, strategy, logger)
}
