package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the settlement lifecycle of a payroll aggregate. Transitions are
// forward-only; PAID and FAILED are terminal.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusOnchainPaid    Status = "ONCHAIN_PAID"
	StatusRailProcessing Status = "RAIL_PROCESSING"
	StatusPaid           Status = "PAID"
	StatusFailed         Status = "FAILED"
)

var forward = map[Status]Status{
	StatusPending:        StatusOnchainPaid,
	StatusOnchainPaid:    StatusRailProcessing,
	StatusRailProcessing: StatusPaid,
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// CanTransition reports whether moving from s to next is legal. FAILED is
// reachable from any non-terminal state; every other move follows the fixed
// forward chain.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return forward[s] == next
}

// Payroll is one settlement unit. Total equals the sum of its outbound
// payment amounts, fixed at creation.
type Payroll struct {
	ID            snowflake.ID   `json:"id"`
	Total         int64          `json:"total"`
	Currency      string         `json:"currency"`
	Status        Status         `json:"status"`
	Payer         string         `json:"payer,omitempty"`
	TxRequestHash string         `json:"txRequestHash,omitempty"`
	TxExecuteHash string         `json:"txExecuteHash,omitempty"`
	WithdrawalID  string         `json:"withdrawalId,omitempty"`
	StepErrors    datatypes.JSON `json:"stepErrors,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// OutboundPayment is one recipient's share of a payroll. Its status mirrors
// the parent aggregate.
type OutboundPayment struct {
	ID        snowflake.ID `json:"id"`
	PayrollID snowflake.ID `json:"payrollId"`
	Amount    int64        `json:"amount"`
	Currency  string       `json:"currency"`
	Recipient string       `json:"recipient"`
	Status    Status       `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// StepError records one failed settlement step.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// Outcome tags a settlement result so callers cannot mistake a partial
// failure for success.
type Outcome string

const (
	OutcomeSettled         Outcome = "settled"
	OutcomePartiallyFailed Outcome = "partially_failed"
)

// RecipientInput is one payee line in an execution request.
type RecipientInput struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// ExecuteRequest creates and settles one payroll aggregate.
type ExecuteRequest struct {
	Currency   string           `json:"currency"`
	Payer      string           `json:"payer"`
	Recipients []RecipientInput `json:"recipients"`
}

// SettlementResult is the soft-fail execution outcome. Step failures land in
// Errors alongside a FAILED status instead of aborting the call.
type SettlementResult struct {
	PayrollID     snowflake.ID `json:"payrollId"`
	Status        Status       `json:"status"`
	Outcome       Outcome      `json:"outcome"`
	Total         int64        `json:"total"`
	Currency      string       `json:"currency"`
	TxRequestHash string       `json:"txRequestHash,omitempty"`
	TxExecuteHash string       `json:"txExecuteHash,omitempty"`
	WithdrawalID  string       `json:"withdrawalId,omitempty"`
	Errors        []StepError  `json:"errors,omitempty"`
}

// PayrollDetail is a payroll with its outbound payments.
type PayrollDetail struct {
	Payroll  Payroll           `json:"payroll"`
	Payments []OutboundPayment `json:"payments"`
}

type Service interface {
	Execute(ctx context.Context, req ExecuteRequest) (*SettlementResult, error)
	Get(ctx context.Context, id snowflake.ID) (*PayrollDetail, error)
}

var (
	ErrNotFound          = errors.New("payroll_not_found")
	ErrInvalidBatchSize  = errors.New("invalid_batch_size")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidRecipient  = errors.New("invalid_recipient")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrTotalMismatch     = errors.New("total_mismatch")
)
