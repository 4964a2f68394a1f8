package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygate/internal/payroll/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateWithPayments(ctx context.Context, db *gorm.DB, payroll *domain.Payroll, payments []*domain.OutboundPayment) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			`INSERT INTO payrolls (id, total, currency, status, payer, step_errors, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			payroll.ID,
			payroll.Total,
			payroll.Currency,
			payroll.Status,
			payroll.Payer,
			payroll.StepErrors,
			payroll.CreatedAt,
			payroll.UpdatedAt,
		).Error
		if err != nil {
			return err
		}

		for _, p := range payments {
			err := tx.Exec(
				`INSERT INTO outbound_payments (id, payroll_id, amount, currency, recipient, status, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID,
				p.PayrollID,
				p.Amount,
				p.Currency,
				p.Recipient,
				p.Status,
				p.CreatedAt,
				p.UpdatedAt,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payroll, error) {
	var payroll domain.Payroll
	err := db.WithContext(ctx).Raw(
		`SELECT id, total, currency, status, payer, tx_request_hash, tx_execute_hash, withdrawal_id, step_errors, created_at, updated_at
		 FROM payrolls WHERE id = ?`,
		id,
	).Scan(&payroll).Error
	if err != nil {
		return nil, err
	}
	if payroll.ID == 0 {
		return nil, nil
	}
	return &payroll, nil
}

func (r *repo) FindPayments(ctx context.Context, db *gorm.DB, payrollID snowflake.ID) ([]domain.OutboundPayment, error) {
	var payments []domain.OutboundPayment
	err := db.WithContext(ctx).Raw(
		`SELECT id, payroll_id, amount, currency, recipient, status, created_at, updated_at
		 FROM outbound_payments WHERE payroll_id = ? ORDER BY id`,
		payrollID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, update domain.TransitionUpdate) error {
	if !from.CanTransition(to) {
		return domain.ErrInvalidTransition
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`UPDATE payrolls SET
				status = ?,
				tx_request_hash = COALESCE(?, tx_request_hash),
				tx_execute_hash = COALESCE(?, tx_execute_hash),
				withdrawal_id = COALESCE(?, withdrawal_id),
				step_errors = COALESCE(?, step_errors),
				updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND status = ?`,
			to,
			update.TxRequestHash,
			update.TxExecuteHash,
			update.WithdrawalID,
			update.StepErrors,
			id,
			from,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInvalidTransition
		}

		return tx.Exec(
			`UPDATE outbound_payments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE payroll_id = ?`,
			to,
			id,
		).Error
	})
}
