// Package proctoring turns classified detection events into per-student
// enforcement: cost assignment, debouncing, an attempts budget, live alerts
// to proctors, and disconnection once the budget runs out.
package proctoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zaqqye/seb_proctoring/internal/session"
)

var ErrMalformedEvent = errors.New("malformed violation event")

// Event is one classified detection for one student.
type Event struct {
	ExamID           string        `json:"examId"`
	StudentSessionID string        `json:"studentSessionId"`
	DetectionType    DetectionType `json:"detectionType"`
	Confidence       *float64      `json:"confidence,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	Message          string        `json:"message,omitempty"`
	Source           Source        `json:"-"`
}

func (ev Event) Validate() error {
	switch {
	case ev.ExamID == "":
		return fmt.Errorf("%w: examId is required", ErrMalformedEvent)
	case ev.StudentSessionID == "":
		return fmt.Errorf("%w: studentSessionId is required", ErrMalformedEvent)
	case ev.DetectionType == "":
		return fmt.Errorf("%w: detectionType is required", ErrMalformedEvent)
	case ev.Confidence != nil && (*ev.Confidence < 0 || *ev.Confidence > 1):
		return fmt.Errorf("%w: confidence must be within [0,1]", ErrMalformedEvent)
	}
	return nil
}

type Decision string

const (
	DecisionAdmitted   Decision = "admitted"
	DecisionSuppressed Decision = "suppressed"
	DecisionIgnored    Decision = "ignored"
	DecisionLogged     Decision = "logged"
)

// Ack is the per-event acknowledgment returned to whoever submitted it.
type Ack struct {
	Status        Decision      `json:"status"`
	DetectionType DetectionType `json:"detectionType"`
	Severity      Severity      `json:"severity,omitempty"`
	Cost          Tenths        `json:"cost"`
	Escalated     bool          `json:"escalated"`
	AlertID       string        `json:"alertId,omitempty"`
	AttemptsInfo  AttemptsInfo  `json:"attemptsInfo"`
}

// SessionDirectory adds settings updates to Directory.
type SessionDirectory interface {
	Directory
	UpdateSettings(id string, patch session.SettingsPatch) (session.DetectionSettings, error)
}

type Options struct {
	Policy     Policy
	Sessions   SessionDirectory
	Dispatcher *Dispatcher
	Journal    Journal
	Now        func() time.Time
}

// Engine is the violation pipeline. Work for one (exam, student) runs on that
// key's lane; different students proceed in parallel.
type Engine struct {
	policy   Policy
	sessions SessionDirectory
	guard    *Guard
	store    *Store
	seq      *Sequencer
	dispatch *Dispatcher
	escalate *Escalator
	journal  *journalWriter
	now      func() time.Time
	log      *slog.Logger
}

func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if opts.Sessions == nil {
		return nil, errors.New("session directory is required")
	}
	d := opts.Dispatcher
	if d == nil {
		d = NewDispatcher(opts.Sessions, 0, 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		policy:   opts.Policy,
		sessions: opts.Sessions,
		guard:    NewGuard(opts.Policy.Cooldown),
		store:    NewStore(opts.Policy.DefaultMaxAttempts, opts.Policy.HistoryLimit),
		seq:      NewSequencer(opts.Policy.LaneIdleTimeout, 0),
		dispatch: d,
		escalate: NewEscalator(d),
		now:      now,
		log:      slog.Default().With("component", "engine"),
	}
	if opts.Journal != nil {
		e.journal = newJournalWriter(opts.Journal, 0)
	}
	return e, nil
}

// Run starts the dispatcher workers and journal writer, blocking until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.dispatch.Run(ctx)
	}()
	if e.journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.journal.run(ctx)
		}()
	}
	wg.Wait()
}

func (e *Engine) Policy() Policy { return e.policy }

// student resolves a session that has joined examID as a student.
func (e *Engine) student(examID, id string) (session.Info, error) {
	info, ok := e.sessions.Get(id)
	if !ok || info.Role != session.RoleStudent || info.ExamID != examID {
		return session.Info{}, session.ErrUnknownSession
	}
	return info, nil
}

// Submit runs one detection through the pipeline.
func (e *Engine) Submit(ctx context.Context, ev Event) (Ack, error) {
	if err := ev.Validate(); err != nil {
		return Ack{}, err
	}
	info, err := e.student(ev.ExamID, ev.StudentSessionID)
	if err != nil {
		return Ack{}, err
	}
	if ev.Source == "" {
		ev.Source = SourceAuto
	}
	if !Known(ev.DetectionType) {
		e.log.Debug("uncatalogued detection type, charging as minor", "exam_id", ev.ExamID, "detection_type", ev.DetectionType)
	}
	key := LedgerKey{ExamID: ev.ExamID, StudentID: ev.StudentSessionID}
	if f := FeatureFor(ev.DetectionType); f != "" && !info.Settings.Enabled(f) {
		return Ack{
			Status:        DecisionIgnored,
			DetectionType: ev.DetectionType,
			AttemptsInfo:  infoFrom(e.store.Query(key)),
		}, nil
	}

	var ack Ack
	err = e.seq.Do(ctx, key, func() error {
		ack = e.process(key, ev, info.Settings)
		return nil
	})
	return ack, err
}

// Manual records a proctor-flagged violation at full cost. It skips
// classification and the cooldown guard.
func (e *Engine) Manual(ctx context.Context, examID, studentID string, violationType DetectionType, proctorID string) (Ack, error) {
	if examID == "" || studentID == "" {
		return Ack{}, fmt.Errorf("%w: examId and studentSocketId are required", ErrMalformedEvent)
	}
	info, err := e.student(examID, studentID)
	if err != nil {
		return Ack{}, err
	}
	if violationType == "" {
		violationType = ManualFlag
	}
	msg := "Violation flagged by proctor"
	if violationType != ManualFlag {
		msg = fmt.Sprintf("Violation flagged by proctor: %s", DefaultMessage(violationType))
	}
	ev := Event{
		ExamID:           examID,
		StudentSessionID: studentID,
		DetectionType:    violationType,
		Message:          msg,
		Source:           SourceManual,
	}
	key := LedgerKey{ExamID: examID, StudentID: studentID}
	var ack Ack
	err = e.seq.Do(ctx, key, func() error {
		ack = e.process(key, ev, info.Settings)
		return nil
	})
	if err == nil {
		e.log.Info("manual violation", "exam_id", examID, "session_id", studentID, "proctor", proctorID, "type", violationType)
	}
	return ack, err
}

// process runs on the key's lane.
func (e *Engine) process(key LedgerKey, ev Event, settings session.DetectionSettings) Ack {
	now := e.now()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}

	severity, cost := e.policy.Classify(ev.DetectionType, ev.Confidence)
	if ev.Source == SourceManual {
		severity, cost = SeverityManual, CostMajor
	} else if !e.guard.Admit(key.ExamID, key.StudentID, ev.DetectionType, now) {
		return Ack{
			Status:        DecisionSuppressed,
			DetectionType: ev.DetectionType,
			Severity:      severity,
			AttemptsInfo:  infoFrom(e.store.Query(key)),
		}
	}

	message := ev.Message
	if message == "" {
		message = DefaultMessage(ev.DetectionType)
	}
	ledger := e.store.GetOrCreate(key)
	outcome, snap := ledger.RecordViolation(Record{
		Timestamp: ev.Timestamp,
		Type:      ev.DetectionType,
		Message:   message,
		Severity:  severity,
		Source:    ev.Source,
	}, cost)

	alert := Alert{
		ID:               uuid.NewString(),
		ExamID:           key.ExamID,
		StudentSessionID: key.StudentID,
		Message:          message,
		Severity:         severity,
		DetectionType:    ev.DetectionType,
		Confidence:       ev.Confidence,
		Source:           ev.Source,
		Timestamp:        ev.Timestamp,
		AttemptsInfo:     infoFrom(snap),
	}
	e.dispatch.ToRoom(key.ExamID, session.RoleProctor, Message{Type: TypeProctoringAlert, Data: alert})
	e.dispatch.ToSession(key.StudentID, Message{Type: TypeAttemptsUpdate, Data: alert.AttemptsInfo})
	e.record(snap, settings, &alert)

	ack := Ack{
		Status:        DecisionAdmitted,
		DetectionType: ev.DetectionType,
		Severity:      severity,
		Cost:          snap.History[len(snap.History)-1].Cost,
		AlertID:       alert.ID,
		AttemptsInfo:  alert.AttemptsInfo,
	}
	switch outcome {
	case OutcomeExhausted:
		ack.Escalated = true
		e.escalate.Exhausted(snap)
	case OutcomeLogged:
		ack.Status = DecisionLogged
	}
	return ack
}

func (e *Engine) record(snap Snapshot, settings session.DetectionSettings, alert *Alert) {
	if e.journal == nil {
		return
	}
	e.journal.submit("ledger", func(ctx context.Context) error {
		return e.journal.j.SaveLedger(ctx, snap, settings)
	})
	if alert != nil {
		a := *alert
		e.journal.submit("alert", func(ctx context.Context) error {
			return e.journal.j.SaveAlert(ctx, a)
		})
	}
}

// ForceDisconnect removes a student on a proctor's request, independent of budget.
func (e *Engine) ForceDisconnect(ctx context.Context, examID, studentID, reason string) error {
	if _, err := e.student(examID, studentID); err != nil {
		return err
	}
	key := LedgerKey{ExamID: examID, StudentID: studentID}
	return e.seq.Do(ctx, key, func() error {
		e.escalate.Force(examID, studentID, reason, e.store.Query(key))
		return nil
	})
}

// Init creates a ledger with an explicit ceiling ahead of any violation.
// An existing ledger is returned unchanged with created=false.
func (e *Engine) Init(ctx context.Context, key LedgerKey, maxAttempts int) (snap Snapshot, created bool, err error) {
	err = e.seq.Do(ctx, key, func() error {
		l, ok, err := e.store.Init(key, maxAttempts)
		if err != nil {
			return err
		}
		created = ok
		snap = l.Snapshot()
		if ok {
			e.record(snap, e.settingsOf(key.StudentID), nil)
		}
		return nil
	})
	return snap, created, err
}

// Reset returns a ledger to active with a zero balance. maxAttempts of 0
// keeps the current ceiling.
func (e *Engine) Reset(ctx context.Context, key LedgerKey, maxAttempts int) (Snapshot, error) {
	if maxAttempts != 0 && (maxAttempts < MinMaxAttempts || maxAttempts > MaxMaxAttempts) {
		return Snapshot{}, ErrInvalidMaxAttempts
	}
	var snap Snapshot
	err := e.seq.Do(ctx, key, func() error {
		l := e.store.GetOrCreate(key)
		newMax := maxAttempts
		if newMax == 0 {
			newMax = int(l.Snapshot().MaxAttempts / 10)
		}
		snap = l.Reset(newMax, e.policy.PreserveHistoryOnReset, e.now())
		e.record(snap, e.settingsOf(key.StudentID), nil)
		if _, ok := e.sessions.Get(key.StudentID); ok {
			e.dispatch.ToSession(key.StudentID, Message{Type: TypeAttemptsUpdate, Data: infoFrom(snap)})
		}
		return nil
	})
	if err == nil {
		e.log.Info("attempts reset", "exam_id", key.ExamID, "session_id", key.StudentID, "max_attempts", snap.MaxAttempts.String())
	}
	return snap, err
}

func (e *Engine) settingsOf(id string) session.DetectionSettings {
	if info, ok := e.sessions.Get(id); ok {
		return info.Settings
	}
	return session.DefaultSettings()
}

// UpdateSettings changes a student's detection toggles and forwards them to
// the student's client so they apply on the next sampled frame.
func (e *Engine) UpdateSettings(studentID string, patch session.SettingsPatch, customMessage string) (session.DetectionSettings, error) {
	info, ok := e.sessions.Get(studentID)
	if !ok || info.Role != session.RoleStudent {
		return session.DetectionSettings{}, session.ErrUnknownSession
	}
	settings, err := e.sessions.UpdateSettings(studentID, patch)
	if err != nil {
		return session.DetectionSettings{}, err
	}
	e.dispatch.ToSession(studentID, Message{
		Type: TypeSettingsUpdated,
		Data: SettingsUpdated{Settings: settings, CustomMessage: customMessage},
	})
	return settings, nil
}

// Attempts returns the ledger for key, or the default empty ledger.
func (e *Engine) Attempts(key LedgerKey) Snapshot { return e.store.Query(key) }

func (e *Engine) ExamAttempts(examID string) []Snapshot { return e.store.ListExam(examID) }

// EndExam destroys the exam's ledgers and cooldown state.
func (e *Engine) EndExam(examID string) int {
	n := e.store.DropExam(examID)
	e.guard.ForgetExam(examID)
	e.log.Info("exam ended", "exam_id", examID, "ledgers", n)
	return n
}

// Stats reports dispatcher counters and the number of live lanes.
func (e *Engine) Stats() (DispatchStats, int) {
	return e.dispatch.Stats(), e.seq.Lanes()
}
