package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/session"
)

var errForbidden = errors.New("not allowed for this session")

// Caller identifies the connection a command arrived on.
type Caller struct {
	SessionID   string
	UserID      string
	AccountRole string
}

type handlerFunc func(ctx context.Context, caller Caller, data json.RawMessage) (any, error)

// Router decodes inbound commands and runs them against the engine.
type Router struct {
	engine   *proctoring.Engine
	sessions *session.Registry
	handlers map[string]handlerFunc
	log      *slog.Logger
}

func NewRouter(engine *proctoring.Engine, sessions *session.Registry) *Router {
	r := &Router{
		engine:   engine,
		sessions: sessions,
		log:      slog.Default().With("component", "ws-router"),
	}
	r.handlers = map[string]handlerFunc{
		CmdJoinExam:        r.joinExam,
		CmdUpdateSettings:  r.updateSettings,
		CmdViolation:       r.violation,
		CmdManualViolation: r.manualViolation,
		CmdDisconnect:      r.disconnectStudent,
		CmdGetAttempts:     r.getAttempts,
		CmdResetAttempts:   r.resetAttempts,
		CmdInitAttempts:    r.initAttempts,
		CmdEndExam:         r.endExam,
	}
	return r
}

// Handle runs one raw frame and returns the reply to send back.
func (r *Router) Handle(ctx context.Context, caller Caller, raw []byte) Reply {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Reply{Type: TypeAck, Status: StatusError, Error: "invalid message envelope"}
	}
	reply := Reply{Type: TypeAck, Action: in.Type, RequestID: in.RequestID}
	h, ok := r.handlers[in.Type]
	if !ok {
		reply.Status = StatusError
		reply.Error = fmt.Sprintf("unknown message type %q", in.Type)
		return reply
	}
	data, err := h(ctx, caller, in.Data)
	if err != nil {
		reply.Status, reply.Error = errorStatus(err), err.Error()
		if reply.Status == StatusError {
			r.log.Warn("command failed", "type", in.Type, "session_id", caller.SessionID, "err", err)
		}
		return reply
	}
	reply.Status = StatusOK
	reply.Data = data
	return reply
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return StatusNotFound
	case errors.Is(err, errForbidden):
		return StatusForbidden
	default:
		return StatusError
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", proctoring.ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", proctoring.ErrMalformedEvent, err)
	}
	return nil
}

// allowedRole checks the requested room role against the account role.
func allowedRole(account string, role session.Role) bool {
	switch account {
	case models.RoleAdmin:
		return true
	case models.RoleProctor:
		return role == session.RoleProctor
	case models.RoleStudent:
		return role == session.RoleStudent
	}
	return false
}

// proctorOf requires the caller to have joined examID as a proctor.
func (r *Router) proctorOf(caller Caller, examID string) error {
	info, ok := r.sessions.Get(caller.SessionID)
	if !ok || info.Role != session.RoleProctor || info.ExamID != examID || examID == "" {
		return fmt.Errorf("%w: proctor of exam %q required", errForbidden, examID)
	}
	return nil
}

func (r *Router) joinExam(_ context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req joinExamRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	role, ok := session.ParseRole(strings.ToLower(req.UserRole))
	if req.ExamID == "" || !ok {
		return nil, fmt.Errorf("%w: examId and a valid userRole are required", proctoring.ErrMalformedEvent)
	}
	if !allowedRole(caller.AccountRole, role) {
		return nil, fmt.Errorf("%w: account role %q cannot join as %s", errForbidden, caller.AccountRole, role)
	}
	examID := req.ExamID.String()
	changed, err := r.sessions.Join(caller.SessionID, examID, role)
	if err != nil {
		return nil, err
	}
	info, _ := r.sessions.Get(caller.SessionID)
	out := joinExamReply{
		SessionID: caller.SessionID,
		ExamID:    examID,
		Role:      role,
		Changed:   changed,
		Settings:  info.Settings,
	}
	if role == session.RoleStudent {
		snap := r.engine.Attempts(proctoring.LedgerKey{ExamID: examID, StudentID: caller.SessionID})
		out.Attempts = &snap
	}
	if changed {
		r.log.Info("joined exam", "session_id", caller.SessionID, "exam_id", examID, "role", role)
	}
	return out, nil
}

func (r *Router) updateSettings(_ context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req updateSettingsRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	student, ok := r.sessions.Get(req.StudentSessionID)
	if !ok {
		return nil, session.ErrUnknownSession
	}
	if err := r.proctorOf(caller, student.ExamID); err != nil {
		return nil, err
	}
	settings, err := r.engine.UpdateSettings(req.StudentSessionID, req.Settings, req.CustomMessage)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "settings_updated", "studentSessionId": req.StudentSessionID, "settings": settings}, nil
}

// violation accepts detections from a student's own client or from a
// proctor-side detector watching that student.
func (r *Router) violation(ctx context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req violationRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	info, ok := r.sessions.Get(caller.SessionID)
	if !ok {
		return nil, session.ErrUnknownSession
	}
	ev := proctoring.Event{
		ExamID:           req.ExamID.String(),
		StudentSessionID: req.StudentSessionID,
		DetectionType:    req.DetectionType,
		Confidence:       req.Confidence,
		Message:          req.Message,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}
	switch info.Role {
	case session.RoleStudent:
		if ev.StudentSessionID == "" {
			ev.StudentSessionID = caller.SessionID
		}
		if ev.ExamID == "" {
			ev.ExamID = info.ExamID
		}
		if ev.StudentSessionID != caller.SessionID {
			return nil, fmt.Errorf("%w: students may only report their own violations", errForbidden)
		}
		ev.Source = proctoring.SourceClient
	case session.RoleProctor:
		if err := r.proctorOf(caller, ev.ExamID); err != nil {
			return nil, err
		}
		ev.Source = proctoring.SourceAuto
	default:
		return nil, session.ErrNotJoined
	}
	return r.engine.Submit(ctx, ev)
}

func (r *Router) manualViolation(ctx context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req manualViolationRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := r.proctorOf(caller, req.ExamID.String()); err != nil {
		return nil, err
	}
	return r.engine.Manual(ctx, req.ExamID.String(), req.StudentSocketID, req.ViolationType, caller.UserID)
}

func (r *Router) disconnectStudent(ctx context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req disconnectRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := r.proctorOf(caller, req.ExamID.String()); err != nil {
		return nil, err
	}
	if err := r.engine.ForceDisconnect(ctx, req.ExamID.String(), req.StudentSocketID, req.Reason); err != nil {
		return nil, err
	}
	return map[string]string{"status": "disconnected", "studentSocketId": req.StudentSocketID}, nil
}

func (r *Router) getAttempts(_ context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req attemptsRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	examID := req.ExamID.String()
	studentID := req.StudentSessionID
	if studentID == "" {
		studentID = caller.SessionID
	}
	if studentID != caller.SessionID {
		if err := r.proctorOf(caller, examID); err != nil {
			return nil, err
		}
	}
	if examID == "" {
		if info, ok := r.sessions.Get(caller.SessionID); ok {
			examID = info.ExamID
		}
	}
	return r.engine.Attempts(proctoring.LedgerKey{ExamID: examID, StudentID: studentID}), nil
}

func (r *Router) resetAttempts(ctx context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req attemptsRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := r.proctorOf(caller, req.ExamID.String()); err != nil {
		return nil, err
	}
	if req.StudentSessionID == "" {
		return nil, fmt.Errorf("%w: studentSessionId is required", proctoring.ErrMalformedEvent)
	}
	maxAttempts := 0
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}
	return r.engine.Reset(ctx, proctoring.LedgerKey{ExamID: req.ExamID.String(), StudentID: req.StudentSessionID}, maxAttempts)
}

func (r *Router) initAttempts(ctx context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req attemptsRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := r.proctorOf(caller, req.ExamID.String()); err != nil {
		return nil, err
	}
	if req.StudentSessionID == "" {
		return nil, fmt.Errorf("%w: studentSessionId is required", proctoring.ErrMalformedEvent)
	}
	maxAttempts := r.engine.Policy().DefaultMaxAttempts
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}
	snap, created, err := r.engine.Init(ctx, proctoring.LedgerKey{ExamID: req.ExamID.String(), StudentID: req.StudentSessionID}, maxAttempts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": created, "ledger": snap}, nil
}

func (r *Router) endExam(_ context.Context, caller Caller, data json.RawMessage) (any, error) {
	var req endExamRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := r.proctorOf(caller, req.ExamID.String()); err != nil {
		return nil, err
	}
	n := r.engine.EndExam(req.ExamID.String())
	return map[string]any{"examId": req.ExamID.String(), "ledgersRemoved": n}, nil
}
