package ledger

import "context"

const (
	ProgressSyncingIdentities  = "Syncing identities."
	ProgressCollecting         = "Collecting signatures from counterparties."
	ProgressVerifyingCollected = "Verifying collected signatures."
	ProgressNotarising         = "Requesting signature by notary service."
	ProgressRecording          = "Recording transaction."
	ProgressBroadcasting       = "Broadcasting transaction to participants."
)

// ProgressFunc receives the labels of sub-protocol progress.
type ProgressFunc func(label string)

type progressKey struct{}

func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func reportProgress(ctx context.Context, label string) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(label)
	}
}
