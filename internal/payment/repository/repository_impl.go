package repository

import (
	"context"

	"github.com/smallbiznis/paygate/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, company_id, payment_intent_id, external_ref, token, amount_token, amount_usd, status, tx_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.CompanyID,
		payment.PaymentIntentID,
		payment.ExternalRef,
		payment.Token,
		payment.AmountToken,
		payment.AmountUsd,
		payment.Status,
		payment.TxHash,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByIntentID(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, payment_intent_id, external_ref, token, amount_token, amount_usd, status, tx_hash, created_at, updated_at
		 FROM payments WHERE payment_intent_id = ?`,
		paymentIntentID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, companyID, token string) (*domain.CompanyBalance, error) {
	var balance domain.CompanyBalance
	err := db.WithContext(ctx).Raw(
		`SELECT company_id, token, balance_token, balance_usd, updated_at
		 FROM company_balances WHERE company_id = ? AND token = ?`,
		companyID,
		token,
	).Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	if balance.CompanyID == "" {
		return nil, nil
	}
	return &balance, nil
}

func (r *repo) ConfirmAndIncrement(ctx context.Context, db *gorm.DB, payment *domain.Payment, txHash string) (bool, error) {
	confirmed := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guarded on PENDING so duplicate deliveries cannot double-apply; the
		// balance increment only runs when this update wins.
		res := tx.Exec(
			`UPDATE payments SET status = ?, tx_hash = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE payment_intent_id = ? AND status = ?`,
			domain.StatusConfirmedOnchain,
			txHash,
			payment.PaymentIntentID,
			domain.StatusPending,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		err := tx.Exec(
			`INSERT INTO company_balances (company_id, token, balance_token, balance_usd, updated_at)
			 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT (company_id, token) DO UPDATE SET
				balance_token = company_balances.balance_token + excluded.balance_token,
				balance_usd = company_balances.balance_usd + excluded.balance_usd,
				updated_at = CURRENT_TIMESTAMP`,
			payment.CompanyID,
			payment.Token,
			payment.AmountToken,
			payment.AmountUsd,
		).Error
		if err != nil {
			return err
		}

		confirmed = true
		return nil
	})
	return confirmed, err
}
