package proctoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zaqqye/seb_proctoring/internal/session"
)

// Directory is the part of the session registry the pipeline needs.
type Directory interface {
	Get(id string) (session.Info, bool)
	MembersOf(examID string, role session.Role) []string
	Send(ctx context.Context, id string, payload []byte) error
}

type delivery struct {
	examID    string
	role      session.Role
	sessionID string
	payload   []byte
	msgType   string
}

// DispatchStats counts best-effort deliveries.
type DispatchStats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Dispatcher publishes messages to rooms and sessions without ever blocking
// the caller. Failures are logged and counted; nothing is retried.
type Dispatcher struct {
	dir     Directory
	queue   chan delivery
	workers int

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg  sync.WaitGroup
	log *slog.Logger
}

// NewDispatcher with workers <= 0 delivers inline on the caller's goroutine,
// which keeps tests deterministic.
func NewDispatcher(dir Directory, workers, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	d := &Dispatcher{
		dir:     dir,
		workers: workers,
		log:     slog.Default().With("component", "dispatcher"),
	}
	if workers > 0 {
		d.queue = make(chan delivery, queueSize)
	}
	return d
}

// Run starts the workers and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.workers <= 0 {
		<-ctx.Done()
		return
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case job := <-d.queue:
					d.deliver(job)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	d.wg.Wait()
}

// ToRoom publishes msg to every member of the exam room with the given role
// (empty role: everyone).
func (d *Dispatcher) ToRoom(examID string, role session.Role, msg Message) {
	d.enqueue(delivery{examID: examID, role: role, msgType: msg.Type}, msg)
}

// ToSession publishes msg to a single session.
func (d *Dispatcher) ToSession(sessionID string, msg Message) {
	d.enqueue(delivery{sessionID: sessionID, msgType: msg.Type}, msg)
}

func (d *Dispatcher) enqueue(job delivery, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		d.log.Error("encode message", "type", msg.Type, "err", err)
		d.failed.Add(1)
		return
	}
	job.payload = data
	if d.queue == nil {
		d.deliver(job)
		return
	}
	select {
	case d.queue <- job:
	default:
		d.dropped.Add(1)
		d.log.Warn("dispatch queue full, dropping message", "type", job.msgType, "exam_id", job.examID, "session_id", job.sessionID)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	if job.sessionID != "" {
		d.sendOne(job.sessionID, job)
		return
	}
	recipients := d.dir.MembersOf(job.examID, job.role)
	if len(recipients) == 1 {
		d.sendOne(recipients[0], job)
		return
	}
	var wg sync.WaitGroup
	for _, id := range recipients {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			d.sendOne(id, job)
		}(id)
	}
	wg.Wait()
}

func (d *Dispatcher) sendOne(id string, job delivery) {
	if err := d.dir.Send(context.Background(), id, job.payload); err != nil {
		d.failed.Add(1)
		d.log.Warn("delivery failed", "type", job.msgType, "exam_id", job.examID, "session_id", id, "err", err)
		return
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}
