package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

// Builder accumulates the components of a transaction and keeps track of
// the participants of every state it references.
type Builder struct {
	notary       *Party
	inputs       []StateAndRef
	outputs      []State
	commands     []Command
	attachments  []string
	window       *TimeWindow
	salt         string
	participants []Party
}

func NewBuilder(notary *Party) *Builder {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		panic(errors.Wrap(err, "error getting random bytes"))
	}
	b := &Builder{salt: hex.EncodeToString(salt)}
	if notary != nil {
		n := *notary
		b.notary = &n
	}
	return b
}

func (b *Builder) Notary() *Party {
	return b.notary
}

// SetNotary fails when a different notary was already chosen.
func (b *Builder) SetNotary(notary Party) error {
	if b.notary != nil && b.notary.Key != notary.Key {
		return errors.Errorf("transaction already uses notary %s", b.notary)
	}
	b.notary = &notary
	return nil
}

func (b *Builder) AddInputState(in StateAndRef) *Builder {
	b.inputs = append(b.inputs, in)
	b.addParticipants(in.State.Participants)
	return b
}

func (b *Builder) AddOutputState(out State) *Builder {
	b.outputs = append(b.outputs, out)
	b.addParticipants(out.Participants)
	return b
}

func (b *Builder) AddCommand(name string, signers ...PublicKey) *Builder {
	b.commands = append(b.commands, Command{Name: name, Signers: signers})
	return b
}

// AddCommandFromParticipants adds a command signed by every participant known so far.
func (b *Builder) AddCommandFromParticipants(name string) *Builder {
	return b.AddCommand(name, Keys(b.participants)...)
}

func (b *Builder) AddAttachment(id string) *Builder {
	b.attachments = append(b.attachments, id)
	return b
}

func (b *Builder) SetTimeWindow(w TimeWindow) *Builder {
	b.window = &w
	return b
}

// SetTimeWindowAround opens a window of the given tolerance on each side of t.
func (b *Builder) SetTimeWindowAround(t time.Time, tolerance time.Duration) *Builder {
	return b.SetTimeWindow(TimeWindow{From: t.Add(-tolerance), Until: t.Add(tolerance)})
}

func (b *Builder) Participants() []Party {
	return append([]Party(nil), b.participants...)
}

func (b *Builder) Inputs() []StateAndRef {
	return append([]StateAndRef(nil), b.inputs...)
}

func (b *Builder) Outputs() []State {
	return append([]State(nil), b.outputs...)
}

func (b *Builder) Commands() []Command {
	return append([]Command(nil), b.commands...)
}

func (b *Builder) Copy() *Builder {
	c := &Builder{
		inputs:       b.Inputs(),
		outputs:      b.Outputs(),
		commands:     b.Commands(),
		attachments:  append([]string(nil), b.attachments...),
		salt:         b.salt,
		participants: b.Participants(),
	}
	if b.notary != nil {
		n := *b.notary
		c.notary = &n
	}
	if b.window != nil {
		w := *b.window
		c.window = &w
	}
	return c
}

func (b *Builder) addParticipants(parties []Party) {
	b.participants = DistinctParties(append(b.participants, parties...))
}

// ToWireTransaction freezes the builder into a transaction with a stable ID.
func (b *Builder) ToWireTransaction() (*WireTransaction, error) {
	tx := &WireTransaction{
		Notary:      b.notary,
		Inputs:      b.Inputs(),
		Outputs:     b.Outputs(),
		Commands:    b.Commands(),
		Attachments: append([]string(nil), b.attachments...),
		TimeWindow:  b.window,
		Salt:        b.salt,
	}
	if len(tx.Commands) == 0 {
		return nil, errors.New("transaction must have at least one command")
	}
	if tx.NeedsNotary() && tx.Notary == nil {
		return nil, errors.New("transaction with inputs or a time window must have a notary")
	}
	id, err := computeID(tx)
	if err != nil {
		return nil, err
	}
	tx.ID = id
	return tx, nil
}
