package proctoring

import (
	"time"

	"github.com/zaqqye/seb_proctoring/internal/session"
)

// Outbound message types on the realtime channel.
const (
	TypeProctoringAlert     = "proctoring-alert"
	TypeTeacherDisconnect   = "teacher-disconnect"
	TypeStudentDisconnected = "student-disconnected"
	TypeAttemptsUpdate      = "attempts-update"
	TypeSettingsUpdated     = "detection-settings-updated"
)

// Message is the envelope written to every websocket client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// AttemptsInfo is the budget summary attached to alerts and acknowledgments.
type AttemptsInfo struct {
	CurrentAttempts Tenths `json:"currentAttempts"`
	MaxAttempts     Tenths `json:"maxAttempts"`
	AttemptsLeft    Tenths `json:"attemptsLeft"`
	Exhausted       bool   `json:"exhausted"`
}

func infoFrom(s Snapshot) AttemptsInfo {
	return AttemptsInfo{
		CurrentAttempts: s.CurrentAttempts,
		MaxAttempts:     s.MaxAttempts,
		AttemptsLeft:    s.AttemptsLeft,
		Exhausted:       s.State == StateExhausted,
	}
}

// Alert is the proctoring-alert payload.
type Alert struct {
	ID               string        `json:"id"`
	ExamID           string        `json:"examId"`
	StudentSessionID string        `json:"studentSessionId"`
	Message          string        `json:"message"`
	Severity         Severity      `json:"severity"`
	DetectionType    DetectionType `json:"detectionType"`
	Confidence       *float64      `json:"confidence,omitempty"`
	Source           Source        `json:"detectionSource"`
	Timestamp        time.Time     `json:"timestamp"`
	AttemptsInfo     AttemptsInfo  `json:"attemptsInfo"`
}

// TeacherDisconnect instructs a student client to end its exam.
type TeacherDisconnect struct {
	Reason string `json:"reason"`
	ExamID string `json:"examId"`
}

// StudentDisconnected tells the room a student was removed.
type StudentDisconnected struct {
	StudentSocketID string `json:"studentSocketId"`
	ExamID          string `json:"examId"`
	Reason          string `json:"reason"`
	AttemptsUsed    Tenths `json:"attemptsUsed"`
	MaxAttempts     Tenths `json:"maxAttempts"`
	Forced          bool   `json:"forced"`
}

// SettingsUpdated is forwarded to a student's detection client.
type SettingsUpdated struct {
	Settings      session.DetectionSettings `json:"settings"`
	CustomMessage string                    `json:"customMessage,omitempty"`
}
