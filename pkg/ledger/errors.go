package ledger

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
)

// ErrSessionClosed is returned when the other side of a session has gone away.
var ErrSessionClosed = errors.New("session closed")

// ResolutionError reports an anonymous party with no known well-known owner.
type ResolutionError struct {
	Party Party
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s to a well-known party", e.Party)
}

// SignatureError reports invalid or missing signatures.
type SignatureError struct {
	TxID    string
	Missing []PublicKey
	Invalid []PublicKey
	Reason  string
}

func (e *SignatureError) Error() string {
	return e.Reason
}

// VerificationError reports a contract rejecting a transaction.
type VerificationError struct {
	TxID     string
	Contract string
	Reason   string
}

func (e *VerificationError) Error() string {
	return e.Reason
}

// FlowError is a failure that crosses a session boundary. The ErrorID lets
// both sides correlate the same failure.
type FlowError struct {
	Message string
	ErrorID int64
}

func NewFlowError(format string, args ...interface{}) *FlowError {
	return &FlowError{
		Message: fmt.Sprintf(format, args...),
		ErrorID: rand.Int63(),
	}
}

func (e *FlowError) Error() string {
	return e.Message
}

// NotaryError reports a notarisation refusal.
type NotaryError struct {
	TxID      string
	Conflicts []StateRef
	flowErr   *FlowError
}

func newNotaryError(txID string, conflicts []StateRef, format string, args ...interface{}) *NotaryError {
	return &NotaryError{
		TxID:      txID,
		Conflicts: conflicts,
		flowErr:   NewFlowError(format, args...),
	}
}

func (e *NotaryError) Error() string {
	return e.flowErr.Error()
}

func (e *NotaryError) Unwrap() error {
	return e.flowErr
}

// Require returns a VerificationError with the given reason unless cond holds.
func Require(cond bool, reason string) error {
	if cond {
		return nil
	}
	return &VerificationError{Reason: reason}
}
