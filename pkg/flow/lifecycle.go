package flow

import "github.com/partiture/partiture/pkg/ledger"

// Step is a named stage of a flow. Children are the labels reported by the
// sub-protocol running during the step.
type Step struct {
	Name     string
	Label    string
	Children []string
}

var (
	Initialize              = Step{Name: "INITIALIZE", Label: "Initializing."}
	ProcessInput            = Step{Name: "PROCESS_INPUT", Label: "Processing input."}
	PostProcessInput        = Step{Name: "POST_PROCESS_INPUT", Label: "Post-processing input."}
	ExecuteTransactions     = Step{Name: "EXECUTE_TRANSACTIONS", Label: "Executing transactions."}
	SignInitialTx           = Step{Name: "SIGN_INITIAL_TX", Label: "Signing initial transaction."}
	CreateSessions          = Step{Name: "CREATE_SESSIONS", Label: "Creating counterparty sessions."}
	SyncIdentities          = Step{Name: "SYNC_IDENTITIES", Label: "Syncing identities.", Children: []string{ledger.ProgressSyncingIdentities}}
	GatherSignatures        = Step{Name: "GATHER_SIGNATURES", Label: "Gathering counterparty signatures.", Children: []string{ledger.ProgressCollecting, ledger.ProgressVerifyingCollected}}
	VerifySignatures        = Step{Name: "VERIFY_SIGNATURES", Label: "Verifying signatures."}
	VerifyTransactionData   = Step{Name: "VERIFY_TRANSACTION_DATA", Label: "Verifying transaction data."}
	Finalize                = Step{Name: "FINALIZE", Label: "Finalizing transaction.", Children: []string{ledger.ProgressNotarising, ledger.ProgressRecording, ledger.ProgressBroadcasting}}
	PostExecuteTransactions = Step{Name: "POST_EXECUTE_TRANSACTIONS", Label: "Post-processing executed transactions."}
	ProcessOutput           = Step{Name: "PROCESS_OUTPUT", Label: "Processing output."}
	Done                    = Step{Name: "DONE", Label: "Done."}
)

// Lifecycle is the ordered list of steps a flow reports.
type Lifecycle []Step

// SimpleInitiatingLifecycle is the lifecycle of flows driven by SimpleTxStrategy.
var SimpleInitiatingLifecycle = Lifecycle{
	Initialize,
	ProcessInput,
	PostProcessInput,
	ExecuteTransactions,
	SignInitialTx,
	CreateSessions,
	SyncIdentities,
	GatherSignatures,
	VerifySignatures,
	VerifyTransactionData,
	Finalize,
	PostExecuteTransactions,
	ProcessOutput,
	Done,
}

func (l Lifecycle) Index(name string) int {
	for i, s := range l {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func (l Lifecycle) Names() []string {
	names := make([]string, 0, len(l))
	for _, s := range l {
		names = append(names, s.Name)
	}
	return names
}
