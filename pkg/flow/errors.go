package flow

import (
	"fmt"

	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
)

const (
	msgStrategyFailed = "Failed to execute strategy"
	msgExecuteFailed  = "Failed to execute"
)

// ExecutionError wraps a failure of the transaction strategy. Err is the
// original cause, untouched. ErrorID is set when the cause crossed a
// session boundary.
type ExecutionError struct {
	Msg     string
	Step    string
	Entry   int
	ErrorID *int64
	Err     error
}

func newExecutionError(step string, entry int, err error) *ExecutionError {
	e := &ExecutionError{Msg: msgExecuteFailed, Step: step, Entry: entry, Err: err}
	var ferr *ledger.FlowError
	if errors.As(err, &ferr) {
		id := ferr.ErrorID
		e.Msg = msgStrategyFailed
		e.ErrorID = &id
	}
	return e
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Msg, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Cause() error {
	return e.Err
}
