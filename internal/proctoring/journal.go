package proctoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/zaqqye/seb_proctoring/internal/session"
)

// Journal persists ledger checkpoints and alerts. The in-memory store stays
// authoritative; journal writes are best-effort.
type Journal interface {
	SaveLedger(ctx context.Context, s Snapshot, settings session.DetectionSettings) error
	SaveAlert(ctx context.Context, a Alert) error
}

// journalWriter moves journal writes off the violation path.
type journalWriter struct {
	j       Journal
	queue   chan func(context.Context) error
	timeout time.Duration
	log     *slog.Logger
}

func newJournalWriter(j Journal, size int) *journalWriter {
	if size <= 0 {
		size = 1024
	}
	return &journalWriter{
		j:       j,
		queue:   make(chan func(context.Context) error, size),
		timeout: 5 * time.Second,
		log:     slog.Default().With("component", "journal"),
	}
}

func (w *journalWriter) submit(op string, fn func(context.Context) error) {
	select {
	case w.queue <- fn:
	default:
		w.log.Warn("journal queue full, dropping write", "op", op)
	}
}

func (w *journalWriter) run(ctx context.Context) {
	for {
		select {
		case fn := <-w.queue:
			w.exec(fn)
		case <-ctx.Done():
			// flush what is already queued
			for {
				select {
				case fn := <-w.queue:
					w.exec(fn)
				default:
					return
				}
			}
		}
	}
}

func (w *journalWriter) exec(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		w.log.Warn("journal write failed", "err", err)
	}
}
