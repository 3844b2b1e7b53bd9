package proctoring

import (
	"sync"
	"time"
)

type cooldownKey struct {
	ExamID    string
	StudentID string
	Type      DetectionType
}

type cooldownEntry struct {
	mu   sync.Mutex
	last time.Time
}

// Guard debounces repeated detections of the same type for the same student.
// Entries are independent, so different keys never contend.
type Guard struct {
	entries sync.Map // cooldownKey -> *cooldownEntry
	window  func(DetectionType) time.Duration
}

func NewGuard(window func(DetectionType) time.Duration) *Guard {
	return &Guard{window: window}
}

// Admit reports whether a detection at now should become a violation.
// Suppressed detections leave the window untouched; only admissions move it.
func (g *Guard) Admit(examID, studentID string, t DetectionType, now time.Time) bool {
	if BypassesCooldown(t) {
		return true
	}
	key := cooldownKey{ExamID: examID, StudentID: studentID, Type: t}
	v, _ := g.entries.LoadOrStore(key, &cooldownEntry{})
	e := v.(*cooldownEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.last.IsZero() && now.Sub(e.last) < g.window(t) {
		return false
	}
	e.last = now
	return true
}

// LastAdmitted returns the time of the last admission for the key.
func (g *Guard) LastAdmitted(examID, studentID string, t DetectionType) (time.Time, bool) {
	v, ok := g.entries.Load(cooldownKey{ExamID: examID, StudentID: studentID, Type: t})
	if !ok {
		return time.Time{}, false
	}
	e := v.(*cooldownEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, !e.last.IsZero()
}

// ForgetExam drops every entry for an exam.
func (g *Guard) ForgetExam(examID string) {
	g.entries.Range(func(k, _ any) bool {
		if k.(cooldownKey).ExamID == examID {
			g.entries.Delete(k)
		}
		return true
	})
}
