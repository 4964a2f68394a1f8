// Package archive persists signed settlement receipts as a side-channel
// after a payroll settles. The archiver owns its signing key and worker;
// it is constructed once and started and stopped by the host lifecycle.
package archive

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	appconfig "github.com/smallbiznis/paygate/internal/config"
	"go.uber.org/zap"
)

type Archiver struct {
	dir        string
	signingKey []byte
	queue      chan Receipt
	log        *zap.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

func New(cfg appconfig.Config, log *zap.Logger) *Archiver {
	size := cfg.Archive.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Archiver{
		dir:        cfg.Archive.Dir,
		signingKey: []byte(cfg.Archive.SigningKey),
		queue:      make(chan Receipt, size),
		log:        log.Named("archive"),
	}
}

// Enqueue offers a receipt to the archive worker. The settlement path never
// blocks on archival; a full queue drops the receipt with a warning.
func (a *Archiver) Enqueue(r Receipt) bool {
	select {
	case a.queue <- r:
		return true
	default:
		a.log.Warn("archive queue full, dropping receipt", zap.String("payroll_id", r.PayrollID))
		return false
	}
}

// Start creates the archive directory and launches the worker.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}

	a.started = true
	a.done = make(chan struct{})
	go a.run()

	a.log.Info("archiver started", zap.String("dir", a.dir))
	return nil
}

// Stop closes the queue and waits for queued receipts to drain, bounded by ctx.
func (a *Archiver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	done := a.done
	a.mu.Unlock()

	close(a.queue)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archiver) run() {
	defer close(a.done)
	for r := range a.queue {
		if err := a.write(r); err != nil {
			a.log.Error("receipt archival failed",
				zap.String("payroll_id", r.PayrollID),
				zap.Error(err),
			)
		}
	}
}

// write renders the receipt, stores it, and stores a detached HMAC signature
// next to it so the archive can be audited for tampering.
func (a *Archiver) write(r Receipt) error {
	doc, err := RenderReceipt(r)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(doc)
	if err != nil {
		return err
	}

	path := filepath.Join(a.dir, r.PayrollID+".pdf")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}

	if len(a.signingKey) > 0 {
		mac := hmac.New(sha256.New, a.signingKey)
		mac.Write(raw)
		sig := hex.EncodeToString(mac.Sum(nil))
		if err := os.WriteFile(path+".sig", []byte(sig), 0o644); err != nil {
			return err
		}
	}

	a.log.Info("receipt archived", zap.String("payroll_id", r.PayrollID), zap.String("path", path))
	return nil
}
