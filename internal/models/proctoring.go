package models

import (
	"time"

	"gorm.io/datatypes"
)

// StudentAttempts is the latest checkpoint of one student's attempts ledger.
// One row per (exam, student session); amounts are stored in tenths.
type StudentAttempts struct {
	ID               uint           `gorm:"primaryKey"`
	ExamID           string         `gorm:"size:128;uniqueIndex:uniq_attempts,priority:1"`
	StudentSessionID string         `gorm:"size:128;uniqueIndex:uniq_attempts,priority:2"`
	CurrentTenths    int64          `gorm:"not null;default:0"`
	MaxTenths        int64          `gorm:"not null"`
	State            string         `gorm:"size:16;index"`
	ViolationHistory datatypes.JSON `gorm:"type:jsonb"`
	SettingsSnapshot datatypes.JSON `gorm:"type:jsonb"`
	LastViolationAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProctoringAlert is one dispatched proctoring-alert.
type ProctoringAlert struct {
	ID               uint           `gorm:"primaryKey"`
	AlertID          string         `gorm:"size:64;uniqueIndex"`
	ExamID           string         `gorm:"size:128;index"`
	StudentSessionID string         `gorm:"size:128;index"`
	DetectionType    string         `gorm:"size:64;index"`
	Severity         string         `gorm:"size:16"`
	Source           string         `gorm:"size:16"`
	Message          string
	Confidence       *float64
	AttemptsInfo     datatypes.JSON `gorm:"type:jsonb"`
	RaisedAt         time.Time      `gorm:"index"`
	Acknowledged     bool           `gorm:"index"`
	AcknowledgedBy   *string
	AcknowledgedAt   *time.Time
	CreatedAt        time.Time
}
