package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByIntentID(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Payment, error)
	FindBalance(ctx context.Context, db *gorm.DB, companyID, token string) (*CompanyBalance, error)
	// ConfirmAndIncrement marks the payment confirmed and adds its amounts to
	// the company balance in one transaction. The status update is guarded on
	// PENDING; confirmed=false means another delivery won the race and no
	// balance mutation happened.
	ConfirmAndIncrement(ctx context.Context, db *gorm.DB, payment *Payment, txHash string) (confirmed bool, err error)
}
