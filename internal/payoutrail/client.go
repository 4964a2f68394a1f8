// Package payoutrail wraps the external fiat disbursement service. The
// deployment default is a deterministic mock, but callers must treat every
// call as a fallible remote operation.
package payoutrail

import (
	"context"
	"fmt"
)

// Status is the rail-side lifecycle of a withdrawal.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Withdrawal is the rail's handle for an initiated payout.
type Withdrawal struct {
	ID     string `json:"withdrawalId"`
	Status Status `json:"status"`
}

// Client is the payout rail surface used by settlement.
type Client interface {
	// InitiateWithdrawal starts a fiat payout and returns the rail's handle.
	InitiateWithdrawal(ctx context.Context, amount int64, currency, recipient string) (*Withdrawal, error)
	// GetStatus reports the current rail-side status of a withdrawal.
	GetStatus(ctx context.Context, withdrawalID string) (Status, error)
}

// RailFailure marks a payout call that was rejected or could not reach the
// rail. Settlement records these per step instead of aborting.
type RailFailure struct {
	Op     string
	Reason string
	Err    error
}

func (e *RailFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payout rail %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("payout rail %s: %s", e.Op, e.Reason)
}

func (e *RailFailure) Unwrap() error { return e.Err }
