package flow

import (
	"context"
	"fmt"

	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SignProcedure receives one proposal on a session, validates it and
// returns it signed by us. A rejected proposal has already been reported
// to the counterparty when the error is returned.
type SignProcedure func(ctx context.Context, session ledger.Session) (*ledger.SignedTransaction, error)

// ResponderStrategy builds the validation and signing procedure of a responder.
type ResponderStrategy interface {
	SigningProcedure(svc ledger.Service, logger *log.Entry) SignProcedure
}

// CheckFunc inspects a proposal before it is signed.
type CheckFunc func(ctx context.Context, svc ledger.Service, stx *ledger.SignedTransaction) error

// VerifyContracts is the default check: the proposal must pass contract verification.
func VerifyContracts(ctx context.Context, svc ledger.Service, stx *ledger.SignedTransaction) error {
	return svc.VerifyTransaction(ctx, stx.Tx)
}

// SimpleResponderStrategy signs every proposal accepted by Check.
type SimpleResponderStrategy struct {
	Check CheckFunc
}

func (s SimpleResponderStrategy) SigningProcedure(svc ledger.Service, logger *log.Entry) SignProcedure {
	check := s.Check
	if check == nil {
		check = VerifyContracts
	}
	return func(ctx context.Context, session ledger.Session) (*ledger.SignedTransaction, error) {
		proposed, err := svc.ReceiveProposal(ctx, session)
		if err != nil {
			return nil, err
		}
		if err := check(ctx, svc, proposed); err != nil {
			logger.Warnf("Rejecting %s from %s: %v", proposed.ID(), session.Counterparty(), err)
			if rerr := svc.Reject(ctx, session, err); rerr != nil {
				logger.Warnf("Fail to send rejection of %s: %v", proposed.ID(), rerr)
			}
			return nil, err
		}
		signed, err := svc.SignProposal(ctx, proposed)
		if err != nil {
			return nil, err
		}
		if err := svc.SendSignatures(ctx, session, signed); err != nil {
			return nil, err
		}
		return signed, nil
	}
}

// TypeCheckingResponderStrategy verifies contracts and requires every output
// to be governed by one of the given contracts.
func TypeCheckingResponderStrategy(contracts ...string) SimpleResponderStrategy {
	allowed := make(map[string]struct{}, len(contracts))
	for _, c := range contracts {
		allowed[c] = struct{}{}
	}
	return SimpleResponderStrategy{
		Check: func(ctx context.Context, svc ledger.Service, stx *ledger.SignedTransaction) error {
			if err := VerifyContracts(ctx, svc, stx); err != nil {
				return err
			}
			for _, out := range stx.Tx.Outputs {
				if _, ok := allowed[out.Contract]; !ok {
					return &ledger.VerificationError{
						TxID:     stx.ID(),
						Contract: out.Contract,
						Reason:   fmt.Sprintf("Output must be one of %v, found %s", contracts, out.Contract),
					}
				}
			}
			return nil
		},
	}
}

// ResponderFlow serves the counterparty side of a flow. It keeps signing
// proposals on the same session until the initiator closes it.
type ResponderFlow struct {
	service  ledger.Service
	strategy ResponderStrategy
	logger   *log.Entry
	// PreSign runs before each proposal is received.
	PreSign func(ctx context.Context, session ledger.Session) error
	// OnFinalized runs for every transaction received after finality.
	OnFinalized func(ctx context.Context, stx *ledger.SignedTransaction)
}

func NewResponderFlow(svc ledger.Service, strategy ResponderStrategy, logger *log.Logger) *ResponderFlow {
	if strategy == nil {
		strategy = SimpleResponderStrategy{}
	}
	return &ResponderFlow{
		service:  svc,
		strategy: strategy,
		logger:   logger.WithField("party", svc.OurIdentity().Name),
	}
}

func (r *ResponderFlow) Call(ctx context.Context, session ledger.Session) error {
	logger := r.logger.WithField("session", session.ID())
	procedure := r.strategy.SigningProcedure(r.service, logger)
	for {
		if r.PreSign != nil {
			if err := r.PreSign(ctx, session); err != nil {
				return err
			}
		}
		signed, err := procedure(ctx, session)
		if errors.Is(err, ledger.ErrSessionClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		finalized, err := r.service.ReceiveFinalized(ctx, session, signed.ID())
		if err != nil {
			return errors.Wrapf(err, "error waiting for finality of %s", signed.ID())
		}
		logger.Debugf("Received finalized %s", finalized.ID())
		if r.OnFinalized != nil {
			r.OnFinalized(ctx, finalized)
		}
	}
}

// Handler adapts the responder to a node's responder registry.
func (r *ResponderFlow) Handler() ledger.ResponderFunc {
	return r.Call
}
