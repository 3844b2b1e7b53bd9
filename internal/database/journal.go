package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/session"
)

var ErrAlertNotFound = errors.New("alert not found")

// Journal checkpoints ledgers and records alerts in the database. It is
// written to off the violation path; the in-memory ledger stays authoritative.
type Journal struct {
	DB *gorm.DB
}

func NewJournal(db *gorm.DB) *Journal {
	return &Journal{DB: db}
}

// SaveLedger upserts the checkpoint row for the snapshot's key.
func (j *Journal) SaveLedger(ctx context.Context, s proctoring.Snapshot, settings session.DetectionSettings) error {
	history, err := json.Marshal(s.History)
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	row := models.StudentAttempts{
		ExamID:           s.ExamID,
		StudentSessionID: s.StudentID,
		CurrentTenths:    int64(s.CurrentAttempts),
		MaxTenths:        int64(s.MaxAttempts),
		State:            string(s.State),
		ViolationHistory: datatypes.JSON(history),
		SettingsSnapshot: datatypes.JSON(snapshot),
	}
	if n := len(s.History); n > 0 {
		ts := s.History[n-1].Timestamp
		row.LastViolationAt = &ts
	}
	return j.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "exam_id"}, {Name: "student_session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_tenths", "max_tenths", "state",
			"violation_history", "settings_snapshot", "last_violation_at", "updated_at",
		}),
	}).Create(&row).Error
}

// SaveAlert stores a dispatched alert. Saving the same alert id twice is a no-op.
func (j *Journal) SaveAlert(ctx context.Context, a proctoring.Alert) error {
	info, err := json.Marshal(a.AttemptsInfo)
	if err != nil {
		return err
	}
	row := models.ProctoringAlert{
		AlertID:          a.ID,
		ExamID:           a.ExamID,
		StudentSessionID: a.StudentSessionID,
		DetectionType:    string(a.DetectionType),
		Severity:         string(a.Severity),
		Source:           string(a.Source),
		Message:          a.Message,
		Confidence:       a.Confidence,
		AttemptsInfo:     datatypes.JSON(info),
		RaisedAt:         a.Timestamp,
	}
	return j.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alert_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

// LoadLedger returns the stored checkpoint for a key.
func (j *Journal) LoadLedger(ctx context.Context, examID, studentID string) (models.StudentAttempts, error) {
	var row models.StudentAttempts
	err := j.DB.WithContext(ctx).
		Where("exam_id = ? AND student_session_id = ?", examID, studentID).
		First(&row).Error
	return row, err
}

type AlertFilter struct {
	StudentSessionID string
	Unacknowledged   bool
	Limit            int
}

// ListAlerts returns an exam's alerts, newest first.
func (j *Journal) ListAlerts(ctx context.Context, examID string, f AlertFilter) ([]models.ProctoringAlert, error) {
	q := j.DB.WithContext(ctx).Where("exam_id = ?", examID)
	if f.StudentSessionID != "" {
		q = q.Where("student_session_id = ?", f.StudentSessionID)
	}
	if f.Unacknowledged {
		q = q.Where("acknowledged = ?", false)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.ProctoringAlert
	err := q.Order("raised_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// AckAlert marks an alert as acknowledged by a proctor. Acknowledging twice
// keeps the first acknowledgement.
func (j *Journal) AckAlert(ctx context.Context, alertID, by string, at time.Time) (models.ProctoringAlert, error) {
	var row models.ProctoringAlert
	err := j.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("alert_id = ?", alertID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return err
		}
		if row.Acknowledged {
			return nil
		}
		row.Acknowledged = true
		row.AcknowledgedBy = &by
		row.AcknowledgedAt = &at
		return tx.Model(&row).Updates(map[string]any{
			"acknowledged":    true,
			"acknowledged_by": by,
			"acknowledged_at": at,
		}).Error
	})
	return row, err
}
