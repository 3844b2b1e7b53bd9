package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zaqqye/seb_proctoring/internal/config"
	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/session"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "journal.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func snapshot(current proctoring.Tenths, records int) proctoring.Snapshot {
	s := proctoring.EmptySnapshot(proctoring.LedgerKey{ExamID: "exam-1", StudentID: "stu-1"}, 10)
	s.CurrentAttempts = current
	s.AttemptsLeft = s.MaxAttempts - current
	for i := 0; i < records; i++ {
		s.History = append(s.History, proctoring.Record{
			Timestamp: time.Date(2024, 5, 1, 9, i, 0, 0, time.UTC),
			Type:      proctoring.GazeDeviation,
			Severity:  proctoring.SeverityMinor,
			Cost:      proctoring.CostMinor,
		})
	}
	return s
}

func TestSaveLedgerUpserts(t *testing.T) {
	j := NewJournal(openTestDB(t))
	ctx := context.Background()

	if err := j.SaveLedger(ctx, snapshot(5, 1), session.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	off := session.DefaultSettings()
	off.GazeDetection = false
	if err := j.SaveLedger(ctx, snapshot(15, 3), off); err != nil {
		t.Fatal(err)
	}

	var count int64
	j.DB.Model(&models.StudentAttempts{}).Count(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
	row, err := j.LoadLedger(ctx, "exam-1", "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	if row.CurrentTenths != 15 || row.MaxTenths != 100 {
		t.Errorf("row = %d/%d, want 15/100", row.CurrentTenths, row.MaxTenths)
	}
	var history []proctoring.Record
	if err := json.Unmarshal(row.ViolationHistory, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Errorf("history = %d, want 3", len(history))
	}
	var settings session.DetectionSettings
	if err := json.Unmarshal(row.SettingsSnapshot, &settings); err != nil {
		t.Fatal(err)
	}
	if settings.GazeDetection {
		t.Error("settings snapshot not updated")
	}
	if row.LastViolationAt == nil {
		t.Error("last violation time not recorded")
	}
}

func alert(id, student string, at time.Time) proctoring.Alert {
	return proctoring.Alert{
		ID:               id,
		ExamID:           "exam-1",
		StudentSessionID: student,
		Message:          "Student switched away from the exam tab",
		Severity:         proctoring.SeverityMajor,
		DetectionType:    proctoring.TabSwitching,
		Source:           proctoring.SourceAuto,
		Timestamp:        at,
	}
}

func TestAlertsListAndAck(t *testing.T) {
	j := NewJournal(openTestDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, a := range []proctoring.Alert{
		alert("a1", "stu-1", t0),
		alert("a2", "stu-2", t0.Add(time.Minute)),
		alert("a3", "stu-1", t0.Add(2*time.Minute)),
	} {
		if err := j.SaveAlert(ctx, a); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := j.SaveAlert(ctx, alert("a1", "stu-1", t0)); err != nil {
		t.Fatalf("duplicate save: %v", err)
	}

	all, err := j.ListAlerts(ctx, "exam-1", AlertFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].AlertID != "a3" {
		t.Fatalf("list = %d alerts, first %q; want 3 newest first", len(all), all[0].AlertID)
	}

	mine, _ := j.ListAlerts(ctx, "exam-1", AlertFilter{StudentSessionID: "stu-1"})
	if len(mine) != 2 {
		t.Errorf("student filter = %d, want 2", len(mine))
	}

	at := t0.Add(time.Hour)
	row, err := j.AckAlert(ctx, "a2", "proctor-7", at)
	if err != nil {
		t.Fatal(err)
	}
	if !row.Acknowledged || row.AcknowledgedBy == nil || *row.AcknowledgedBy != "proctor-7" {
		t.Errorf("ack row = %+v", row)
	}
	again, err := j.AckAlert(ctx, "a2", "someone-else", at.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if *again.AcknowledgedBy != "proctor-7" {
		t.Errorf("second ack overwrote acknowledgedBy: %s", *again.AcknowledgedBy)
	}

	open, _ := j.ListAlerts(ctx, "exam-1", AlertFilter{Unacknowledged: true})
	if len(open) != 2 {
		t.Errorf("unacknowledged = %d, want 2", len(open))
	}

	if _, err := j.AckAlert(ctx, "missing", "p", at); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestSeedAdminOnce(t *testing.T) {
	db := openTestDB(t)
	cfg := &config.Config{AdminEmail: "root@example.com", AdminPassword: "secret123", AdminFullName: "Root"}
	for i := 0; i < 2; i++ {
		if err := SeedAdmin(db, cfg); err != nil {
			t.Fatal(err)
		}
	}
	var users []models.User
	db.Find(&users)
	if len(users) != 1 || users[0].Role != models.RoleAdmin || users[0].UserID == "" {
		t.Errorf("users = %+v, want one admin with a user id", users)
	}
}
