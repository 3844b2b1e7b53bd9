package proctoring

import (
	"log/slog"

	"github.com/zaqqye/seb_proctoring/internal/session"
)

const ReasonMaxViolations = "Maximum violations reached"

// Escalator turns an exhausted budget, or a proctor's decision, into a
// disconnect instruction for the student and a notice for the room. It only
// sends messages; the session stays registered until the transport closes.
type Escalator struct {
	dispatch *Dispatcher
	log      *slog.Logger
}

func NewEscalator(d *Dispatcher) *Escalator {
	return &Escalator{dispatch: d, log: slog.Default().With("component", "escalation")}
}

// Exhausted must be called exactly once per ledger cycle, on OutcomeExhausted.
func (e *Escalator) Exhausted(s Snapshot) {
	e.log.Info("attempts exhausted, disconnecting student",
		"exam_id", s.ExamID, "session_id", s.StudentID,
		"current_attempts", s.CurrentAttempts.String(), "max_attempts", s.MaxAttempts.String())
	e.disconnect(s.ExamID, s.StudentID, ReasonMaxViolations, s, false)
}

// Force disconnects a student on a proctor's request, regardless of budget.
func (e *Escalator) Force(examID, studentID, reason string, s Snapshot) {
	if reason == "" {
		reason = "Disconnected by proctor"
	}
	e.log.Info("proctor disconnected student", "exam_id", examID, "session_id", studentID, "reason", reason)
	e.disconnect(examID, studentID, reason, s, true)
}

func (e *Escalator) disconnect(examID, studentID, reason string, s Snapshot, forced bool) {
	e.dispatch.ToSession(studentID, Message{
		Type: TypeTeacherDisconnect,
		Data: TeacherDisconnect{Reason: reason, ExamID: examID},
	})
	e.dispatch.ToRoom(examID, session.RoleProctor, Message{
		Type: TypeStudentDisconnected,
		Data: StudentDisconnected{
			StudentSocketID: studentID,
			ExamID:          examID,
			Reason:          reason,
			AttemptsUsed:    s.CurrentAttempts,
			MaxAttempts:     s.MaxAttempts,
			Forced:          forced,
		},
	})
}
