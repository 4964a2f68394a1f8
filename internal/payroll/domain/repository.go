package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransitionUpdate carries the columns written alongside a status change.
// Nil pointers leave the column untouched.
type TransitionUpdate struct {
	TxRequestHash *string
	TxExecuteHash *string
	WithdrawalID  *string
	StepErrors    datatypes.JSON
}

type Repository interface {
	// CreateWithPayments inserts the payroll and its payments in one transaction.
	CreateWithPayments(ctx context.Context, db *gorm.DB, payroll *Payroll, payments []*OutboundPayment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payroll, error)
	FindPayments(ctx context.Context, db *gorm.DB, payrollID snowflake.ID) ([]OutboundPayment, error)
	// Transition moves the payroll from one status to the next with a guarded
	// update; a stale from-status yields ErrInvalidTransition. Payment rows
	// mirror the parent status in the same transaction.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, update TransitionUpdate) error
}
