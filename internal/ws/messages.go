package ws

import (
	"encoding/json"
	"time"

	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/session"
	"github.com/zaqqye/seb_proctoring/internal/utils"
)

// Inbound commands.
const (
	CmdJoinExam        = "join_exam"
	CmdUpdateSettings  = "update_detection_settings"
	CmdViolation       = "violation"
	CmdManualViolation = "manual_violation"
	CmdDisconnect      = "disconnect_student"
	CmdGetAttempts     = "get_attempts"
	CmdResetAttempts   = "reset_attempts"
	CmdInitAttempts    = "init_attempts"
	CmdEndExam         = "end_exam"
)

// Outbound envelope types owned by the transport.
const (
	TypeConnected = "connected"
	TypeAck       = "ack"
)

const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusNotFound  = "not_found"
	StatusForbidden = "forbidden"
)

// Inbound is the envelope of every client frame.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Reply answers one inbound frame.
type Reply struct {
	Type      string `json:"type"`
	Action    string `json:"action,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

type connected struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Time      time.Time `json:"serverTime"`
}

type joinExamRequest struct {
	ExamID   utils.FlexibleString `json:"examId"`
	UserRole string               `json:"userRole"`
}

type joinExamReply struct {
	SessionID string                    `json:"sessionId"`
	ExamID    string                    `json:"examId"`
	Role      session.Role              `json:"role"`
	Changed   bool                      `json:"changed"`
	Attempts  *proctoring.Snapshot      `json:"attempts,omitempty"`
	Settings  session.DetectionSettings `json:"settings"`
}

type updateSettingsRequest struct {
	StudentSessionID string                `json:"studentSessionId"`
	Settings         session.SettingsPatch `json:"settings"`
	CustomMessage    string                `json:"customMessage"`
}

type violationRequest struct {
	ExamID           utils.FlexibleString     `json:"examId"`
	StudentSessionID string                   `json:"studentSessionId"`
	DetectionType    proctoring.DetectionType `json:"detectionType"`
	Confidence       *float64                 `json:"confidence"`
	Timestamp        *time.Time               `json:"timestamp"`
	Message          string                   `json:"message"`
}

type manualViolationRequest struct {
	ExamID          utils.FlexibleString     `json:"examId"`
	StudentSocketID string                   `json:"studentSocketId"`
	ViolationType   proctoring.DetectionType `json:"violationType"`
}

type disconnectRequest struct {
	ExamID          utils.FlexibleString `json:"examId"`
	StudentSocketID string               `json:"studentSocketId"`
	Reason          string               `json:"reason"`
}

type attemptsRequest struct {
	ExamID           utils.FlexibleString `json:"examId"`
	StudentSessionID string               `json:"studentSessionId"`
	MaxAttempts      *int                 `json:"maxAttempts"`
}

type endExamRequest struct {
	ExamID utils.FlexibleString `json:"examId"`
}
