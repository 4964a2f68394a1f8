// Package treasury wraps the on-chain treasury contract. Every write blocks
// until a transaction receipt is available or the configured deadline passes;
// a deadline hit is an OnchainFailure, not a hang.
package treasury

import (
	"context"
	"fmt"
)

// Client is the synchronous treasury surface used by settlement.
type Client interface {
	// RequestPayment logs a payment intent on-chain and returns the tx hash.
	RequestPayment(ctx context.Context, payee string, amount int64, token string) (string, error)
	// ExecutePayment transfers from the treasury to the payee and returns the tx hash.
	ExecutePayment(ctx context.Context, payer, payee string, amount int64, token string) (string, error)
	// GetBalance reads the treasury balance for a token. Read-only, no transaction.
	GetBalance(ctx context.Context, token string) (int64, error)
}

// OnchainFailure marks a treasury call that reverted, timed out, or could not
// reach the network. Settlement records these per step instead of aborting.
type OnchainFailure struct {
	Op     string
	Reason string
	Err    error
}

func (e *OnchainFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("treasury %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("treasury %s: %s", e.Op, e.Reason)
}

func (e *OnchainFailure) Unwrap() error { return e.Err }
