package proctoring

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrExhausted = errors.New("attempts exhausted")

// LedgerKey identifies one student's budget within one exam.
type LedgerKey struct {
	ExamID    string
	StudentID string
}

type State string

const (
	StateActive    State = "active"
	StateExhausted State = "exhausted"
)

// Record is one entry of a ledger's violation history.
type Record struct {
	Timestamp    time.Time     `json:"timestamp"`
	Type         DetectionType `json:"violationType"`
	Message      string        `json:"message"`
	Severity     Severity      `json:"severity"`
	Source       Source        `json:"detectionSource"`
	Cost         Tenths        `json:"cost"`
	AttemptsUsed Tenths        `json:"attemptsUsed"`
	AttemptsLeft Tenths        `json:"attemptsLeft"`
}

// Snapshot is an immutable copy of a ledger.
type Snapshot struct {
	ExamID          string    `json:"examId"`
	StudentID       string    `json:"studentSessionId"`
	CurrentAttempts Tenths    `json:"currentAttempts"`
	MaxAttempts     Tenths    `json:"maxAttempts"`
	AttemptsLeft    Tenths    `json:"attemptsLeft"`
	State           State     `json:"state"`
	History         []Record  `json:"history"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`
}

// EmptySnapshot is what a query returns before any ledger exists.
func EmptySnapshot(key LedgerKey, maxAttempts int) Snapshot {
	return Snapshot{
		ExamID:       key.ExamID,
		StudentID:    key.StudentID,
		MaxAttempts:  Attempts(maxAttempts),
		AttemptsLeft: Attempts(maxAttempts),
		State:        StateActive,
		History:      []Record{},
	}
}

// Outcome describes what RecordViolation did.
type Outcome int

const (
	// OutcomeRecorded: cost deducted, ledger still active.
	OutcomeRecorded Outcome = iota
	// OutcomeExhausted: this violation took the ledger to zero. Returned
	// at most once per ledger cycle.
	OutcomeExhausted
	// OutcomeLogged: ledger was already exhausted; the event is kept for
	// audit without cost.
	OutcomeLogged
)

// Ledger is the authoritative budget for one key. currentAttempts only grows
// until Reset; attemptsLeft is always derived from it.
type Ledger struct {
	mu           sync.Mutex
	key          LedgerKey
	max          Tenths
	current      Tenths
	history      []Record
	escalated    bool
	historyLimit int
	updatedAt    time.Time
}

func newLedger(key LedgerKey, maxAttempts, historyLimit int) *Ledger {
	return &Ledger{
		key:          key,
		max:          Attempts(maxAttempts),
		historyLimit: historyLimit,
		history:      []Record{},
	}
}

func (l *Ledger) leftLocked() Tenths { return floorZero(l.max - l.current) }

// RecordViolation deducts cost and appends rec to the history. The record's
// Cost, AttemptsUsed and AttemptsLeft fields are filled in here.
func (l *Ledger) RecordViolation(rec Record, cost Tenths) (Outcome, Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.leftLocked() == 0 {
		rec.Cost = CostNone
		rec.AttemptsUsed = l.current
		rec.AttemptsLeft = 0
		l.appendLocked(rec)
		return OutcomeLogged, l.snapshotLocked()
	}

	next := l.current
	if cost > 0 {
		next += cost
	}
	left := floorZero(l.max - next)

	rec.Cost = cost
	rec.AttemptsUsed = next
	rec.AttemptsLeft = left

	l.current = next
	l.appendLocked(rec)

	outcome := OutcomeRecorded
	if left == 0 && !l.escalated {
		l.escalated = true
		outcome = OutcomeExhausted
	}
	return outcome, l.snapshotLocked()
}

func (l *Ledger) appendLocked(rec Record) {
	l.history = append(l.history, rec)
	if over := len(l.history) - l.historyLimit; over > 0 {
		trimmed := make([]Record, l.historyLimit)
		copy(trimmed, l.history[over:])
		l.history = trimmed
	}
	l.updatedAt = rec.Timestamp
}

// Reset returns the ledger to active with a zero balance and a new ceiling.
// History is cleared unless preserveHistory is set.
func (l *Ledger) Reset(maxAttempts int, preserveHistory bool, now time.Time) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = Attempts(maxAttempts)
	l.current = 0
	l.escalated = false
	if !preserveHistory {
		l.history = []Record{}
	}
	l.updatedAt = now
	return l.snapshotLocked()
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	left := l.leftLocked()
	state := StateActive
	if left == 0 {
		state = StateExhausted
	}
	hist := make([]Record, len(l.history))
	copy(hist, l.history)
	return Snapshot{
		ExamID:          l.key.ExamID,
		StudentID:       l.key.StudentID,
		CurrentAttempts: l.current,
		MaxAttempts:     l.max,
		AttemptsLeft:    left,
		State:           state,
		History:         hist,
		UpdatedAt:       l.updatedAt,
	}
}

// Store holds every ledger keyed by (exam, student). Distinct keys share no lock.
type Store struct {
	ledgers      sync.Map // LedgerKey -> *Ledger
	defaultMax   int
	historyLimit int
}

func NewStore(defaultMax, historyLimit int) *Store {
	return &Store{defaultMax: defaultMax, historyLimit: historyLimit}
}

// GetOrCreate returns the ledger for key, creating it with the default ceiling.
func (s *Store) GetOrCreate(key LedgerKey) *Ledger {
	if v, ok := s.ledgers.Load(key); ok {
		return v.(*Ledger)
	}
	v, _ := s.ledgers.LoadOrStore(key, newLedger(key, s.defaultMax, s.historyLimit))
	return v.(*Ledger)
}

// Init creates a ledger with an explicit ceiling. An existing ledger is left
// untouched and created=false is returned.
func (s *Store) Init(key LedgerKey, maxAttempts int) (*Ledger, bool, error) {
	if maxAttempts < MinMaxAttempts || maxAttempts > MaxMaxAttempts {
		return nil, false, ErrInvalidMaxAttempts
	}
	v, loaded := s.ledgers.LoadOrStore(key, newLedger(key, maxAttempts, s.historyLimit))
	return v.(*Ledger), !loaded, nil
}

func (s *Store) Lookup(key LedgerKey) (*Ledger, bool) {
	v, ok := s.ledgers.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Ledger), true
}

// Query never fails: a missing ledger yields the default empty snapshot.
func (s *Store) Query(key LedgerKey) Snapshot {
	if l, ok := s.Lookup(key); ok {
		return l.Snapshot()
	}
	return EmptySnapshot(key, s.defaultMax)
}

// ListExam returns snapshots of every ledger for an exam, ordered by student.
func (s *Store) ListExam(examID string) []Snapshot {
	var out []Snapshot
	s.ledgers.Range(func(k, v any) bool {
		if k.(LedgerKey).ExamID == examID {
			out = append(out, v.(*Ledger).Snapshot())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// DropExam destroys every ledger for an exam and reports how many were removed.
func (s *Store) DropExam(examID string) int {
	n := 0
	s.ledgers.Range(func(k, _ any) bool {
		if k.(LedgerKey).ExamID == examID {
			s.ledgers.Delete(k)
			n++
		}
		return true
	})
	return n
}
