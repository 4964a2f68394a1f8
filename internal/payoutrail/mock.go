package payoutrail

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock simulates the rail: withdrawals stay processing for a short delay and
// then resolve to completed. Unknown ids fail like the real rail would.
type Mock struct {
	delay time.Duration

	mu          sync.Mutex
	completions map[string]time.Time
}

func NewMock(delay time.Duration) *Mock {
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	return &Mock{
		delay:       delay,
		completions: make(map[string]time.Time),
	}
}

func (m *Mock) InitiateWithdrawal(ctx context.Context, amount int64, currency, recipient string) (*Withdrawal, error) {
	if amount <= 0 {
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: "invalid_amount"}
	}
	if recipient == "" {
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: "missing_recipient"}
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.completions[id] = time.Now().Add(m.delay)
	m.mu.Unlock()

	return &Withdrawal{ID: id, Status: StatusProcessing}, nil
}

func (m *Mock) GetStatus(ctx context.Context, withdrawalID string) (Status, error) {
	m.mu.Lock()
	completeAt, ok := m.completions[withdrawalID]
	m.mu.Unlock()

	if !ok {
		return "", &RailFailure{Op: "get_status", Reason: "withdrawal_not_found"}
	}
	if time.Now().Before(completeAt) {
		return StatusProcessing, nil
	}
	return StatusCompleted, nil
}
