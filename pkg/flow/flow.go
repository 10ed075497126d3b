package flow

import (
	"context"

	"github.com/google/uuid"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Flow orchestrates one call: it converts the input into a call context,
// runs the strategy over every entry and converts the result.
type Flow[IN, OUT any] struct {
	name     string
	service  ledger.Service
	input    InputConverter[IN]
	output   OutputConverter[OUT]
	settings settings
}

type settings struct {
	strategy      TxStrategy
	syncMode      IdentitySyncMode
	accountsAware bool
	hooks         Hooks
	observers     []Observer
	logger        *log.Logger
}

type Option func(*settings)

func WithStrategy(s TxStrategy) Option {
	return func(o *settings) {
		o.strategy = s
	}
}

func WithSyncMode(m IdentitySyncMode) Option {
	return func(o *settings) {
		o.syncMode = m
	}
}

// WithAccountsAware also signs with the well-known keys owning our
// confidential participants.
func WithAccountsAware(enabled bool) Option {
	return func(o *settings) {
		o.accountsAware = enabled
	}
}

func WithHooks(h Hooks) Option {
	return func(o *settings) {
		o.hooks = h
	}
}

func WithObserver(obs Observer) Option {
	return func(o *settings) {
		o.observers = append(o.observers, obs)
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *settings) {
		o.logger = logger
	}
}

// New creates a flow. A nil converter makes Call fail at the matching step.
func New[IN, OUT any](name string, service ledger.Service, in InputConverter[IN], out OutputConverter[OUT], opts ...Option) *Flow[IN, OUT] {
	s := settings{
		strategy: SimpleTxStrategy{},
		logger:   log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Flow[IN, OUT]{
		name:     name,
		service:  service,
		input:    in,
		output:   out,
		settings: s,
	}
}

func (f *Flow[IN, OUT]) Name() string {
	return f.name
}

// Call runs the flow and returns its output.
func (f *Flow[IN, OUT]) Call(ctx context.Context, input IN) (OUT, error) {
	out, _, err := f.Run(ctx, input)
	return out, err
}

// Run is Call that also returns the call context, which carries the
// partial progress of every entry when the strategy fails.
func (f *Flow[IN, OUT]) Run(ctx context.Context, input IN) (OUT, *CallContext, error) {
	var zero OUT
	id := uuid.NewString()
	tracker := NewTracker(id, f.name, f.settings.strategy.Lifecycle(), f.settings.observers...)
	env := &Env{
		FlowID:        id,
		FlowName:      f.name,
		Ledger:        f.service,
		SyncMode:      f.settings.syncMode,
		AccountsAware: f.settings.accountsAware,
		Hooks:         f.settings.hooks,
		Tracker:       tracker,
		Logger: f.settings.logger.WithFields(log.Fields{
			"flow":  f.name,
			"id":    id,
			"party": f.service.OurIdentity().Name,
		}),
	}
	defer func() {
		if env.Call == nil || env.Call.Sessions == nil {
			return
		}
		if err := env.Call.Sessions.Close(); err != nil {
			env.Logger.Warnf("Fail to close sessions: %v", err)
		}
	}()

	env.Step(Initialize)
	if err := env.Hooks.initialize(ctx, env); err != nil {
		return zero, nil, err
	}

	env.Step(ProcessInput)
	if f.input == nil {
		return zero, nil, errors.Errorf("flow %s requires an input converter", f.name)
	}
	call, err := f.input.ConvertInput(ctx, env, input)
	if err != nil {
		return zero, nil, errors.Wrap(err, "error converting input")
	}
	if call == nil {
		return zero, nil, errors.Errorf("flow %s: input converter returned no call context", f.name)
	}
	if call.Sessions == nil {
		call.Sessions = NewSessionSet()
	}
	env.Call = call

	env.Step(PostProcessInput)
	if err := env.Hooks.postProcessInput(ctx, env); err != nil {
		return zero, call, err
	}

	env.Step(ExecuteTransactions)
	if err := Execute(ctx, f.settings.strategy, env); err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			return zero, call, err
		}
		if err := env.Hooks.handleFailure(ctx, env, execErr); err != nil {
			return zero, call, err
		}
	}

	env.Step(ProcessOutput)
	if f.output == nil {
		return zero, call, errors.Errorf("flow %s requires an output converter", f.name)
	}
	out, err := f.output.ConvertOutput(ctx, env, call)
	if err != nil {
		return zero, call, errors.Wrap(err, "error converting output")
	}
	env.Step(Done)
	return out, call, nil
}
