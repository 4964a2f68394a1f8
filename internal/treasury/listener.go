package treasury

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConfirmationEvent is an on-chain payment confirmation observed by the
// listener. Delivery is at least once; downstream reconciliation is
// idempotent by payment intent id.
type ConfirmationEvent struct {
	PaymentIntentID string `json:"paymentIntentId"`
	TxHash          string `json:"txHash"`
	Token           string `json:"token"`
	Amount          int64  `json:"amount"`
}

// EventSource yields confirmation events on each poll.
type EventSource interface {
	Poll(ctx context.Context) ([]ConfirmationEvent, error)
}

// Handler processes one confirmation event.
type Handler func(ctx context.Context, ev ConfirmationEvent) error

// Listener polls an event source on a fixed interval and hands each event to
// the handler. It is an owned object: construct once, Start once, Stop once.
type Listener struct {
	source   EventSource
	handler  Handler
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(source EventSource, handler Handler, interval time.Duration, log *zap.Logger) *Listener {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Listener{
		source:   source,
		handler:  handler,
		interval: interval,
		log:      log.Named("treasury.listener"),
	}
}

// Start launches the poll loop. Calling Start on a running listener is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(runCtx, l.done)
	l.log.Info("confirmation listener started", zap.Duration("interval", l.interval))
	return nil
}

// Stop cancels the poll loop and waits for it to drain, bounded by ctx.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pollOnce(ctx)
		}
	}
}

func (l *Listener) pollOnce(ctx context.Context) {
	events, err := l.source.Poll(ctx)
	if err != nil {
		l.log.Warn("confirmation poll failed", zap.Error(err))
		return
	}
	for _, ev := range events {
		if err := l.handler(ctx, ev); err != nil {
			l.log.Warn("confirmation handling failed",
				zap.String("payment_intent_id", ev.PaymentIntentID),
				zap.Error(err),
			)
		}
	}
}

// HTTPEventSource polls the treasury gateway for recent confirmations.
type HTTPEventSource struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPEventSource(baseURL string, timeout time.Duration) *HTTPEventSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEventSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPEventSource) Poll(ctx context.Context) ([]ConfirmationEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/confirmations", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("confirmations poll: status %d", resp.StatusCode)
	}

	var events []ConfirmationEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, err
	}
	return events, nil
}
