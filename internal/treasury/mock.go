package treasury

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

// Mock is a deterministic in-process treasury for local and sandbox
// deployments. Hashes are derived from the call inputs and a sequence
// number so repeated runs produce distinct but reproducible receipts.
type Mock struct {
	balance int64
	seq     atomic.Uint64
}

func NewMock(balance int64) *Mock {
	if balance <= 0 {
		balance = 1_000_000_000
	}
	return &Mock{balance: balance}
}

func (m *Mock) RequestPayment(ctx context.Context, payee string, amount int64, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &OnchainFailure{Op: "request_payment", Reason: "timeout", Err: err}
	}
	return m.hash("request_payment", payee, amount, token), nil
}

func (m *Mock) ExecutePayment(ctx context.Context, payer, payee string, amount int64, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &OnchainFailure{Op: "execute_payment", Reason: "timeout", Err: err}
	}
	if amount > m.balance {
		return "", &OnchainFailure{Op: "execute_payment", Reason: "insufficient_balance"}
	}
	return m.hash("execute_payment", payer+payee, amount, token), nil
}

func (m *Mock) GetBalance(ctx context.Context, token string) (int64, error) {
	return m.balance, nil
}

func (m *Mock) hash(op, party string, amount int64, token string) string {
	seq := m.seq.Add(1)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%d", op, party, amount, token, seq)))
	return "0x" + hex.EncodeToString(sum[:])
}
