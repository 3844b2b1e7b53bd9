package proctoring

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrInternalFault is reported for a job that panicked. The lane survives.
var ErrInternalFault = errors.New("internal fault while processing event")

// lane runs the jobs of one key in submission order on its own goroutine.
type lane struct {
	jobs    chan func()
	pending int // guarded by Sequencer.mu
}

// Sequencer gives every LedgerKey a single writer. Lanes start on demand and
// exit after sitting idle, so the global lock is only held to find a lane.
type Sequencer struct {
	mu    sync.Mutex
	lanes map[LedgerKey]*lane
	idle  time.Duration
	depth int
	log   *slog.Logger
}

func NewSequencer(idle time.Duration, depth int) *Sequencer {
	if depth <= 0 {
		depth = 64
	}
	return &Sequencer{
		lanes: make(map[LedgerKey]*lane),
		idle:  idle,
		depth: depth,
		log:   slog.Default().With("component", "sequencer"),
	}
}

// Do runs fn on key's lane and waits for it to finish. A panic in fn is
// recovered and returned as ErrInternalFault.
func (s *Sequencer) Do(ctx context.Context, key LedgerKey, fn func() error) error {
	done := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("recovered panic in lane",
					"exam_id", key.ExamID, "session_id", key.StudentID,
					"panic", r, "stack", string(debug.Stack()))
				done <- ErrInternalFault
			}
		}()
		done <- fn()
	}

	l := s.acquire(key)
	select {
	case l.jobs <- job:
	case <-ctx.Done():
		s.release(l)
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// the job has been queued and will still run
		return ctx.Err()
	}
}

func (s *Sequencer) acquire(key LedgerKey) *lane {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{jobs: make(chan func(), s.depth)}
		s.lanes[key] = l
		go s.run(key, l)
	}
	l.pending++
	return l
}

func (s *Sequencer) release(l *lane) {
	s.mu.Lock()
	l.pending--
	s.mu.Unlock()
}

func (s *Sequencer) run(key LedgerKey, l *lane) {
	timer := time.NewTimer(s.idle)
	defer timer.Stop()
	for {
		select {
		case job := <-l.jobs:
			job()
			s.release(l)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.idle)
		case <-timer.C:
			s.mu.Lock()
			if l.pending == 0 {
				delete(s.lanes, key)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			timer.Reset(s.idle)
		}
	}
}

// Lanes returns the number of live lanes.
func (s *Sequencer) Lanes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}
