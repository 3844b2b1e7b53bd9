package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (s *recordingSender) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, payload)
	return nil
}

type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, payload []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestJoinTwiceIsNoop(t *testing.T) {
	r := NewRegistry(0)
	r.Connect("s1", "", nil)

	changed, err := r.Join("s1", "exam-1", RoleStudent)
	if err != nil || !changed {
		t.Fatalf("first join: changed=%v err=%v", changed, err)
	}
	changed, err = r.Join("s1", "exam-1", RoleStudent)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if changed {
		t.Error("second join should be a no-op")
	}
	members := r.MembersOf("exam-1", "")
	if len(members) != 1 || members[0] != "s1" {
		t.Errorf("members = %v, want [s1]", members)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Join("ghost", "exam-1", RoleStudent); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestJoinOtherExamMovesRoom(t *testing.T) {
	r := NewRegistry(0)
	r.Connect("s1", "", nil)
	r.Join("s1", "exam-1", RoleStudent)
	r.Join("s1", "exam-2", RoleStudent)

	if got := r.MembersOf("exam-1", ""); len(got) != 0 {
		t.Errorf("exam-1 members = %v, want none", got)
	}
	if got := r.MembersOf("exam-2", ""); len(got) != 1 {
		t.Errorf("exam-2 members = %v, want [s1]", got)
	}
}

func TestMembersOfFiltersRole(t *testing.T) {
	r := NewRegistry(0)
	for _, id := range []string{"st1", "st2", "pr1"} {
		r.Connect(id, "", nil)
	}
	r.Join("st1", "exam-1", RoleStudent)
	r.Join("st2", "exam-1", RoleStudent)
	r.Join("pr1", "exam-1", RoleProctor)

	if got := r.MembersOf("exam-1", RoleProctor); len(got) != 1 || got[0] != "pr1" {
		t.Errorf("proctors = %v, want [pr1]", got)
	}
	if got := r.MembersOf("exam-1", RoleStudent); len(got) != 2 {
		t.Errorf("students = %v, want 2 entries", got)
	}
	if got := r.MembersOf("exam-1", ""); len(got) != 3 {
		t.Errorf("all = %v, want 3 entries", got)
	}
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	r := NewRegistry(0)
	if _, ok := r.Disconnect("ghost"); ok {
		t.Error("disconnecting unknown session reported ok")
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	r := NewRegistry(0)
	r.Connect("s1", "", nil)
	r.Join("s1", "exam-1", RoleStudent)
	info, ok := r.Disconnect("s1")
	if !ok || info.ExamID != "exam-1" {
		t.Fatalf("disconnect = %+v, %v", info, ok)
	}
	if got := r.MembersOf("exam-1", ""); len(got) != 0 {
		t.Errorf("members after disconnect = %v", got)
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}

func TestUpdateSettingsPartial(t *testing.T) {
	r := NewRegistry(0)
	r.Connect("s1", "", nil)
	off := false
	got, err := r.UpdateSettings("s1", SettingsPatch{GazeDetection: &off})
	if err != nil {
		t.Fatal(err)
	}
	if got.GazeDetection {
		t.Error("gaze detection should be off")
	}
	if !got.FaceDetection || !got.TabSwitchDetection {
		t.Error("untouched features should stay enabled")
	}
	if _, err := r.UpdateSettings("ghost", SettingsPatch{}); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestSendUsesTimeout(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Connect("slow", "", blockingSender{})

	start := time.Now()
	err := r.Send(context.Background(), "slow", []byte("x"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("send took %v, timeout not applied", elapsed)
	}
}

func TestSendDelivers(t *testing.T) {
	r := NewRegistry(0)
	s := &recordingSender{}
	r.Connect("s1", "", s)
	if err := r.Send(context.Background(), "s1", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if len(s.msgs) != 1 || string(s.msgs[0]) != "hello" {
		t.Errorf("msgs = %q", s.msgs)
	}
	if err := r.Send(context.Background(), "ghost", nil); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"student", RoleStudent, true},
		{"teacher", RoleProctor, true},
		{"proctor", RoleProctor, true},
		{"pengawas", RoleProctor, true},
		{"admin", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
