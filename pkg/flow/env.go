package flow

import (
	"context"

	"github.com/partiture/partiture/pkg/ledger"
	log "github.com/sirupsen/logrus"
)

// Hooks are optional callbacks invoked at fixed points of a flow.
type Hooks struct {
	Initialize         func(ctx context.Context, env *Env) error
	PostProcessInput   func(ctx context.Context, env *Env) error
	// PostCreateSessions receives the sessions newly opened for an entry.
	// It does not run when every session was reused.
	PostCreateSessions func(ctx context.Context, env *Env, sessions []ledger.Session) error
	PostExecuteFor     func(ctx context.Context, env *Env, result EntryResult) error
	// HandleFailure receives strategy failures. Returning nil swallows the
	// failure and lets the flow process its output. Without a handler the
	// failure is returned as is.
	HandleFailure func(ctx context.Context, env *Env, err *ExecutionError) error
}

// EntryResult describes an entry that reached finality.
type EntryResult struct {
	Index    int
	Entry    TxEntry
	Ours     []ledger.Party
	Theirs   []ledger.Party
	Sessions []ledger.Session
}

// Env is what a strategy sees of the running flow.
type Env struct {
	FlowID        string
	FlowName      string
	Ledger        ledger.Service
	SyncMode      IdentitySyncMode
	AccountsAware bool
	Hooks         Hooks
	Tracker       *Tracker
	Logger        *log.Entry
	Call          *CallContext
}

// Step moves the tracker to s.
func (env *Env) Step(s Step) {
	if env.Tracker != nil {
		env.Tracker.SetStep(s)
	}
}

// WithChildProgress returns a context reporting sub-protocol progress under s.
func (env *Env) WithChildProgress(ctx context.Context, s Step) context.Context {
	if env.Tracker == nil {
		return ctx
	}
	return ledger.WithProgress(ctx, env.Tracker.ChildProgress(s))
}

// OurParticipatingKeys returns the keys we sign with. Accounts-aware flows
// also sign with the well-known key owning each confidential key.
func (env *Env) OurParticipatingKeys(ctx context.Context, ours []ledger.Party) []ledger.PublicKey {
	keys := ledger.Keys(ours)
	if !env.AccountsAware {
		return keys
	}
	seen := make(map[ledger.PublicKey]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for _, p := range ours {
		owner, err := WellKnownParty(ctx, env.Ledger, p)
		if err != nil || !env.Ledger.IsOurKey(owner.Key) {
			continue
		}
		if _, ok := seen[owner.Key]; ok {
			continue
		}
		seen[owner.Key] = struct{}{}
		keys = append(keys, owner.Key)
	}
	return keys
}

// CreateSessions returns one session per well-known counterparty, reusing
// the sessions already opened by this call.
func (env *Env) CreateSessions(ctx context.Context, counterParties []ledger.Party) ([]ledger.Session, error) {
	sessions, _, err := env.createSessions(ctx, counterParties)
	return sessions, err
}

// createSessions also returns the sessions it had to open.
func (env *Env) createSessions(ctx context.Context, counterParties []ledger.Party) (sessions, opened []ledger.Session, err error) {
	if env.Call.Sessions == nil {
		env.Call.Sessions = NewSessionSet()
	}
	seen := make(map[ledger.PublicKey]struct{})
	for _, p := range counterParties {
		wk, err := WellKnownParty(ctx, env.Ledger, p)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := seen[wk.Key]; ok {
			continue
		}
		seen[wk.Key] = struct{}{}
		if s, ok := env.Call.Sessions.Get(wk); ok {
			sessions = append(sessions, s)
			continue
		}
		s, err := env.Ledger.OpenSession(ctx, env.FlowName, wk)
		if err != nil {
			return nil, nil, err
		}
		env.Logger.Debugf("Opened session %s with %s", s.ID(), wk)
		env.Call.Sessions.Add(s)
		sessions = append(sessions, s)
		opened = append(opened, s)
	}
	return sessions, opened, nil
}

func (h Hooks) initialize(ctx context.Context, env *Env) error {
	if h.Initialize == nil {
		return nil
	}
	return h.Initialize(ctx, env)
}

func (h Hooks) postProcessInput(ctx context.Context, env *Env) error {
	if h.PostProcessInput == nil {
		return nil
	}
	return h.PostProcessInput(ctx, env)
}

func (h Hooks) postCreateSessions(ctx context.Context, env *Env, sessions []ledger.Session) error {
	if h.PostCreateSessions == nil {
		return nil
	}
	return h.PostCreateSessions(ctx, env, sessions)
}

func (h Hooks) postExecuteFor(ctx context.Context, env *Env, result EntryResult) error {
	if h.PostExecuteFor == nil {
		return nil
	}
	return h.PostExecuteFor(ctx, env, result)
}

func (h Hooks) handleFailure(ctx context.Context, env *Env, err *ExecutionError) error {
	if h.HandleFailure == nil {
		env.Logger.Errorf("%s: %v", err.Msg, err.Err)
		return err
	}
	return h.HandleFailure(ctx, env, err)
}
