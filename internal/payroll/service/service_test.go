package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paygate/internal/clock"
	appconfig "github.com/smallbiznis/paygate/internal/config"
	"github.com/smallbiznis/paygate/internal/payoutrail"
	"github.com/smallbiznis/paygate/internal/payroll/domain"
	"github.com/smallbiznis/paygate/internal/payroll/repository"
	"github.com/smallbiznis/paygate/internal/treasury"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubTreasury struct {
	balance     int64
	balanceErr  error
	requestErr  error
	executeErr  error
	requestHash string
	executeHash string
}

func (s *stubTreasury) RequestPayment(ctx context.Context, payee string, amount int64, token string) (string, error) {
	if s.requestErr != nil {
		return "", s.requestErr
	}
	return s.requestHash, nil
}

func (s *stubTreasury) ExecutePayment(ctx context.Context, payer, payee string, amount int64, token string) (string, error) {
	if s.executeErr != nil {
		return "", s.executeErr
	}
	return s.executeHash, nil
}

func (s *stubTreasury) GetBalance(ctx context.Context, token string) (int64, error) {
	if s.balanceErr != nil {
		return 0, s.balanceErr
	}
	return s.balance, nil
}

type stubRail struct {
	initiateErr error
	statusErr   error
	status      payoutrail.Status
	withdrawal  string
}

func (s *stubRail) InitiateWithdrawal(ctx context.Context, amount int64, currency, recipient string) (*payoutrail.Withdrawal, error) {
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	return &payoutrail.Withdrawal{ID: s.withdrawal, Status: payoutrail.StatusProcessing}, nil
}

func (s *stubRail) GetStatus(ctx context.Context, withdrawalID string) (payoutrail.Status, error) {
	if s.statusErr != nil {
		return "", s.statusErr
	}
	return s.status, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Payroll{}, &domain.OutboundPayment{}))
	return db
}

func healthyDeps() (*stubTreasury, *stubRail) {
	return &stubTreasury{
			balance:     1_000_000,
			requestHash: "0xrequest",
			executeHash: "0xexecute",
		}, &stubRail{
			withdrawal: "wd_1",
			status:     payoutrail.StatusCompleted,
		}
}

func newTestService(t *testing.T, ts treasury.Client, rail payoutrail.Client) (domain.Service, *gorm.DB) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := appconfig.Config{PayrollBatchSize: 3}
	cfg.Treasury.Token = "USDC"
	cfg.Treasury.ContractAddress = "0x00000000000000000000000000000000000000aa"
	cfg.Rail.PollInterval = 5 * time.Millisecond
	cfg.Rail.PollAttempts = 10

	db := newTestDB(t)
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Cfg:      cfg,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Treasury: ts,
		Rail:     rail,
	})
	return svc, db
}

func batchRequest() domain.ExecuteRequest {
	return domain.ExecuteRequest{
		Currency: "USD",
		Payer:    "0xpayer",
		Recipients: []domain.RecipientInput{
			{Recipient: "acct_1", Amount: 100},
			{Recipient: "acct_2", Amount: 200},
			{Recipient: "acct_3", Amount: 300},
		},
	}
}

func TestExecute_HappyPathReachesPaid(t *testing.T) {
	ts, rail := healthyDeps()
	svc, _ := newTestService(t, ts, rail)

	result, err := svc.Execute(context.Background(), batchRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPaid, result.Status)
	assert.Equal(t, domain.OutcomeSettled, result.Outcome)
	assert.Equal(t, int64(600), result.Total)
	assert.Equal(t, "0xrequest", result.TxRequestHash)
	assert.Equal(t, "0xexecute", result.TxExecuteHash)
	assert.Equal(t, "wd_1", result.WithdrawalID)
	assert.Empty(t, result.Errors)

	detail, err := svc.Get(context.Background(), result.PayrollID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, detail.Payroll.Status)
	assert.Equal(t, "0xexecute", detail.Payroll.TxExecuteHash)
	assert.Len(t, detail.Payments, 3)
	for _, p := range detail.Payments {
		assert.Equal(t, domain.StatusPaid, p.Status)
	}
}

func TestExecute_TotalMatchesPaymentSum(t *testing.T) {
	ts, rail := healthyDeps()
	svc, _ := newTestService(t, ts, rail)

	result, err := svc.Execute(context.Background(), batchRequest())
	require.NoError(t, err)

	detail, err := svc.Get(context.Background(), result.PayrollID)
	require.NoError(t, err)

	var sum int64
	for _, p := range detail.Payments {
		sum += p.Amount
	}
	assert.Equal(t, detail.Payroll.Total, sum)
}

func TestExecute_WrongBatchSizeRejected(t *testing.T) {
	ts, rail := healthyDeps()
	svc, _ := newTestService(t, ts, rail)

	req := batchRequest()
	req.Recipients = req.Recipients[:2]

	_, err := svc.Execute(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidBatchSize)
}

func TestExecute_InvalidAmountRejected(t *testing.T) {
	ts, rail := healthyDeps()
	svc, _ := newTestService(t, ts, rail)

	req := batchRequest()
	req.Recipients[1].Amount = 0

	_, err := svc.Execute(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestExecute_InsufficientBalanceFailsBeforeOnchain(t *testing.T) {
	ts, rail := healthyDeps()
	ts.balance = 100
	svc, _ := newTestService(t, ts, rail)

	result, err := svc.Execute(context.Background(), batchRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.OutcomePartiallyFailed, result.Outcome)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "balance_check", result.Errors[0].Step)
	assert.Empty(t, result.TxRequestHash)
}

func TestExecute_TreasuryFailureRecordsStepError(t *testing.T) {
	ts, rail := healthyDeps()
	ts.executeErr = &treasury.OnchainFailure{Op: "execute_payment", Reason: "execution_reverted"}
	svc, db := newTestService(t, ts, rail)

	result, err := svc.Execute(context.Background(), batchRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.OutcomePartiallyFailed, result.Outcome)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "execute_payment", result.Errors[0].Step)
	assert.Contains(t, result.Errors[0].Error, "execution_reverted")

	// The request hash from the successful first step survives the failure.
	var stored domain.Payroll
	require.NoError(t, db.Raw(`SELECT * FROM payrolls WHERE id = ?`, result.PayrollID).Scan(&stored).Error)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, "0xrequest", stored.TxRequestHash)

	var errs []domain.StepError
	require.NoError(t, json.Unmarshal(stored.StepErrors, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "execute_payment", errs[0].Step)
}

func TestExecute_RailFailureAfterOnchainKeepsHashes(t *testing.T) {
	ts, rail := healthyDeps()
	rail.initiateErr = &payoutrail.RailFailure{Op: "initiate_withdrawal", Reason: "rail_down"}
	svc, db := newTestService(t, ts, rail)

	result, err := svc.Execute(context.Background(), batchRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "initiate_withdrawal", result.Errors[0].Step)

	// The on-chain leg already executed and is not rolled back.
	var stored domain.Payroll
	require.NoError(t, db.Raw(`SELECT * FROM payrolls WHERE id = ?`, result.PayrollID).Scan(&stored).Error)
	assert.Equal(t, "0xrequest", stored.TxRequestHash)
	assert.Equal(t, "0xexecute", stored.TxExecuteHash)
}

func TestExecute_RailConfirmationFailure(t *testing.T) {
	ts, rail := healthyDeps()
	rail.status = payoutrail.StatusFailed
	svc, _ := newTestService(t, ts, rail)

	result, err := svc.Execute(context.Background(), batchRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "rail_confirmation", result.Errors[0].Step)
	assert.Equal(t, "wd_1", result.WithdrawalID)
}

func TestGet_NotFound(t *testing.T) {
	ts, rail := healthyDeps()
	svc, _ := newTestService(t, ts, rail)

	_, err := svc.Get(context.Background(), snowflake.ID(999))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, domain.StatusPending.CanTransition(domain.StatusOnchainPaid))
	assert.True(t, domain.StatusOnchainPaid.CanTransition(domain.StatusRailProcessing))
	assert.True(t, domain.StatusRailProcessing.CanTransition(domain.StatusPaid))
	assert.True(t, domain.StatusPending.CanTransition(domain.StatusFailed))

	assert.False(t, domain.StatusOnchainPaid.CanTransition(domain.StatusPending))
	assert.False(t, domain.StatusPaid.CanTransition(domain.StatusFailed))
	assert.False(t, domain.StatusFailed.CanTransition(domain.StatusPending))
	assert.False(t, domain.StatusPending.CanTransition(domain.StatusRailProcessing))
}

func TestRepository_TransitionGuardRejectsStaleStatus(t *testing.T) {
	ts, rail := healthyDeps()
	svc, db := newTestService(t, ts, rail)

	result, err := svc.Execute(context.Background(), batchRequest())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, result.Status)

	repo := repository.Provide()
	err = repo.Transition(context.Background(), db, result.PayrollID, domain.StatusPending, domain.StatusOnchainPaid, domain.TransitionUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
