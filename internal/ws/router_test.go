package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/session"
)

type memSender struct {
	mu    sync.Mutex
	types []string
}

func (s *memSender) Send(_ context.Context, payload []byte) error {
	var m struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	s.mu.Lock()
	s.types = append(s.types, m.Type)
	s.mu.Unlock()
	return nil
}

func (s *memSender) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.types {
		if t == typ {
			n++
		}
	}
	return n
}

type routerFixture struct {
	router  *Router
	reg     *session.Registry
	engine  *proctoring.Engine
	senders map[string]*memSender
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	reg := session.NewRegistry(time.Second)
	engine, err := proctoring.NewEngine(proctoring.Options{Policy: proctoring.DefaultPolicy(), Sessions: reg})
	if err != nil {
		t.Fatal(err)
	}
	return &routerFixture{router: NewRouter(engine, reg), reg: reg, engine: engine, senders: map[string]*memSender{}}
}

// connect registers a session and returns its caller identity.
func (f *routerFixture) connect(id, accountRole string) Caller {
	s := &memSender{}
	f.senders[id] = s
	f.reg.Connect(id, "user-"+id, s)
	return Caller{SessionID: id, UserID: "user-" + id, AccountRole: accountRole}
}

func (f *routerFixture) do(t *testing.T, caller Caller, typ string, data any) Reply {
	t.Helper()
	body, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(Inbound{Type: typ, RequestID: "r1", Data: body})
	return f.router.Handle(context.Background(), caller, raw)
}

func (f *routerFixture) join(t *testing.T, caller Caller, examID, role string) {
	t.Helper()
	if r := f.do(t, caller, CmdJoinExam, map[string]string{"examId": examID, "userRole": role}); r.Status != StatusOK {
		t.Fatalf("join %s: %+v", caller.SessionID, r)
	}
}

func TestRouterRejectsBadEnvelope(t *testing.T) {
	f := newRouterFixture(t)
	caller := f.connect("s1", models.RoleStudent)

	if r := f.router.Handle(context.Background(), caller, []byte("not json")); r.Status != StatusError {
		t.Errorf("status = %s, want error", r.Status)
	}
	r := f.do(t, caller, "launch_rockets", map[string]string{})
	if r.Status != StatusError || r.Action != "launch_rockets" || r.RequestID != "r1" {
		t.Errorf("reply = %+v", r)
	}
}

func TestRouterJoinExam(t *testing.T) {
	f := newRouterFixture(t)
	student := f.connect("s1", models.RoleStudent)

	r := f.do(t, student, CmdJoinExam, map[string]any{"examId": 42, "userRole": "student"})
	if r.Status != StatusOK {
		t.Fatalf("join = %+v", r)
	}
	reply := r.Data.(joinExamReply)
	if reply.ExamID != "42" || !reply.Changed || reply.Attempts == nil {
		t.Errorf("join reply = %+v", reply)
	}

	again := f.do(t, student, CmdJoinExam, map[string]any{"examId": "42", "userRole": "student"})
	if again.Data.(joinExamReply).Changed {
		t.Error("second join should be a no-op")
	}
	if n := len(f.reg.MembersOf("42", "")); n != 1 {
		t.Errorf("members = %d, want 1", n)
	}

	if r := f.do(t, student, CmdJoinExam, map[string]string{"examId": "42", "userRole": "proctor"}); r.Status != StatusForbidden {
		t.Errorf("student joining as proctor = %s, want forbidden", r.Status)
	}
	if r := f.do(t, student, CmdJoinExam, map[string]string{"examId": "42", "userRole": "janitor"}); r.Status != StatusError {
		t.Errorf("bad role = %s, want error", r.Status)
	}
}

func TestRouterStudentViolation(t *testing.T) {
	f := newRouterFixture(t)
	student := f.connect("s1", models.RoleStudent)
	proctor := f.connect("p1", models.RoleProctor)
	f.join(t, student, "exam-1", "student")
	f.join(t, proctor, "exam-1", "proctor")

	r := f.do(t, student, CmdViolation, map[string]any{"detectionType": "tab_switching"})
	if r.Status != StatusOK {
		t.Fatalf("violation = %+v", r)
	}
	ack := r.Data.(proctoring.Ack)
	if ack.Status != proctoring.DecisionAdmitted || ack.Cost != proctoring.CostMajor {
		t.Errorf("ack = %+v", ack)
	}
	if f.senders["p1"].count(proctoring.TypeProctoringAlert) != 1 {
		t.Error("proctor did not receive the alert")
	}
	snap := f.engine.Attempts(proctoring.LedgerKey{ExamID: "exam-1", StudentID: "s1"})
	if snap.History[0].Source != proctoring.SourceClient {
		t.Errorf("source = %s, want client", snap.History[0].Source)
	}

	other := f.connect("s2", models.RoleStudent)
	f.join(t, other, "exam-1", "student")
	if r := f.do(t, other, CmdViolation, map[string]any{"studentSessionId": "s1", "detectionType": "tab_switching"}); r.Status != StatusForbidden {
		t.Errorf("reporting for another student = %s, want forbidden", r.Status)
	}
}

func TestRouterProctorCommands(t *testing.T) {
	f := newRouterFixture(t)
	student := f.connect("s1", models.RoleStudent)
	proctor := f.connect("p1", models.RoleProctor)
	outsider := f.connect("p2", models.RoleProctor)
	f.join(t, student, "exam-1", "student")
	f.join(t, proctor, "exam-1", "proctor")
	f.join(t, outsider, "exam-2", "proctor")

	if r := f.do(t, proctor, CmdInitAttempts, map[string]any{"examId": "exam-1", "studentSessionId": "s1", "maxAttempts": 2}); r.Status != StatusOK {
		t.Fatalf("init = %+v", r)
	}
	r := f.do(t, proctor, CmdManualViolation, map[string]any{"examId": "exam-1", "studentSocketId": "s1", "violationType": "phone_usage"})
	if r.Status != StatusOK || r.Data.(proctoring.Ack).Severity != proctoring.SeverityManual {
		t.Fatalf("manual = %+v", r)
	}
	r = f.do(t, proctor, CmdManualViolation, map[string]any{"examId": "exam-1", "studentSocketId": "s1"})
	if !r.Data.(proctoring.Ack).Escalated {
		t.Errorf("second manual should exhaust a 2-attempt budget: %+v", r.Data)
	}
	if n := f.senders["s1"].count(proctoring.TypeTeacherDisconnect); n != 1 {
		t.Errorf("teacher-disconnect = %d, want 1", n)
	}

	if r := f.do(t, outsider, CmdResetAttempts, map[string]any{"examId": "exam-1", "studentSessionId": "s1"}); r.Status != StatusForbidden {
		t.Errorf("outsider reset = %s, want forbidden", r.Status)
	}
	r = f.do(t, proctor, CmdResetAttempts, map[string]any{"examId": "exam-1", "studentSessionId": "s1", "maxAttempts": 5})
	if r.Status != StatusOK || r.Data.(proctoring.Snapshot).MaxAttempts != 50 {
		t.Errorf("reset = %+v", r)
	}

	r = f.do(t, proctor, CmdGetAttempts, map[string]any{"examId": "exam-1", "studentSessionId": "s1"})
	if r.Data.(proctoring.Snapshot).CurrentAttempts != 0 {
		t.Errorf("attempts after reset = %+v", r.Data)
	}

	off := false
	r = f.do(t, proctor, CmdUpdateSettings, map[string]any{"studentSessionId": "s1", "settings": map[string]any{"audioDetection": off}})
	if r.Status != StatusOK {
		t.Fatalf("update settings = %+v", r)
	}
	if f.senders["s1"].count(proctoring.TypeSettingsUpdated) != 1 {
		t.Error("settings not forwarded to the student")
	}
	if r := f.do(t, proctor, CmdUpdateSettings, map[string]any{"studentSessionId": "ghost"}); r.Status != StatusNotFound {
		t.Errorf("unknown student = %s, want not_found", r.Status)
	}

	if r := f.do(t, proctor, CmdDisconnect, map[string]any{"examId": "exam-1", "studentSocketId": "s1", "reason": "cheating"}); r.Status != StatusOK {
		t.Errorf("disconnect = %+v", r)
	}
	if r := f.do(t, proctor, CmdDisconnect, map[string]any{"examId": "exam-1", "studentSocketId": "ghost"}); r.Status != StatusNotFound {
		t.Errorf("disconnect unknown = %s, want not_found", r.Status)
	}

	if r := f.do(t, student, CmdEndExam, map[string]any{"examId": "exam-1"}); r.Status != StatusForbidden {
		t.Errorf("student end exam = %s, want forbidden", r.Status)
	}
	if r := f.do(t, proctor, CmdEndExam, map[string]any{"examId": "exam-1"}); r.Status != StatusOK {
		t.Errorf("end exam = %+v", r)
	}
}

func TestRouterStudentGetsOwnAttempts(t *testing.T) {
	f := newRouterFixture(t)
	student := f.connect("s1", models.RoleStudent)
	f.join(t, student, "exam-1", "student")

	r := f.do(t, student, CmdGetAttempts, map[string]any{})
	snap := r.Data.(proctoring.Snapshot)
	if r.Status != StatusOK || snap.ExamID != "exam-1" || snap.MaxAttempts != 100 {
		t.Errorf("get own attempts = %+v", r)
	}
	if r := f.do(t, student, CmdGetAttempts, map[string]any{"examId": "exam-1", "studentSessionId": "s9"}); r.Status != StatusForbidden {
		t.Errorf("peeking at another student = %s, want forbidden", r.Status)
	}
}
