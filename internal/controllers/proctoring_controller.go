package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/seb_proctoring/internal/database"
	"github.com/zaqqye/seb_proctoring/internal/middleware"
	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/session"
	"github.com/zaqqye/seb_proctoring/internal/utils"
)

// ProctoringController exposes the ledger query surface, proctor actions and
// collaborator violation ingestion over REST. Journal may be nil when
// persistence is disabled; alert history is then unavailable.
type ProctoringController struct {
	Engine   *proctoring.Engine
	Sessions *session.Registry
	Journal  *database.Journal
}

// respondError maps pipeline errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, proctoring.ErrMalformedEvent), errors.Is(err, proctoring.ErrInvalidMaxAttempts):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrUnknownSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request timed out"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func ledgerKey(c *gin.Context) proctoring.LedgerKey {
	return proctoring.LedgerKey{ExamID: c.Param("examId"), StudentID: c.Param("sessionId")}
}

// GetAttempts never 404s: a student without a ledger gets the default one.
func (p *ProctoringController) GetAttempts(c *gin.Context) {
	c.JSON(http.StatusOK, p.Engine.Attempts(ledgerKey(c)))
}

func (p *ProctoringController) ListAttempts(c *gin.Context) {
	ledgers := p.Engine.ExamAttempts(c.Param("examId"))
	if ledgers == nil {
		ledgers = []proctoring.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"examId": c.Param("examId"), "ledgers": ledgers})
}

type maxAttemptsRequest struct {
	MaxAttempts *int `json:"maxAttempts"`
}

func (p *ProctoringController) InitAttempts(c *gin.Context) {
	req, ok := bindMaxAttempts(c)
	if !ok {
		return
	}
	maxAttempts := p.Engine.Policy().DefaultMaxAttempts
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}
	snap, created, err := p.Engine.Init(c.Request.Context(), ledgerKey(c), maxAttempts)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created, "ledger": snap})
}

// bindMaxAttempts allows an empty body.
func bindMaxAttempts(c *gin.Context) (maxAttemptsRequest, bool) {
	var req maxAttemptsRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

func (p *ProctoringController) ResetAttempts(c *gin.Context) {
	req, ok := bindMaxAttempts(c)
	if !ok {
		return
	}
	maxAttempts := 0
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}
	snap, err := p.Engine.Reset(c.Request.Context(), ledgerKey(c), maxAttempts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// EndExam destroys every ledger and cooldown entry of the exam.
func (p *ProctoringController) EndExam(c *gin.Context) {
	n := p.Engine.EndExam(c.Param("examId"))
	c.JSON(http.StatusOK, gin.H{"message": "exam ended", "ledgersRemoved": n})
}

type violationRequest struct {
	StudentSessionID utils.FlexibleString     `json:"studentSessionId"`
	DetectionType    proctoring.DetectionType `json:"detectionType"`
	Confidence       *float64                 `json:"confidence"`
	Timestamp        *time.Time               `json:"timestamp"`
	Message          string                   `json:"message"`
}

// IngestViolation accepts a classified detection from a collaborator service.
func (p *ProctoringController) IngestViolation(c *gin.Context) {
	var req violationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev := proctoring.Event{
		ExamID:           c.Param("examId"),
		StudentSessionID: req.StudentSessionID.String(),
		DetectionType:    req.DetectionType,
		Confidence:       req.Confidence,
		Message:          req.Message,
		Source:           proctoring.SourceAuto,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}
	ack, err := p.Engine.Submit(c.Request.Context(), ev)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (p *ProctoringController) ListAlerts(c *gin.Context) {
	if p.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	unacked, _ := strconv.ParseBool(c.Query("unacknowledged"))
	rows, err := p.Journal.ListAlerts(c.Request.Context(), c.Param("examId"), database.AlertFilter{
		StudentSessionID: c.Query("studentSessionId"),
		Unacknowledged:   unacked,
		Limit:            limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, alertView(r))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

func (p *ProctoringController) AckAlert(c *gin.Context) {
	if p.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert journal disabled"})
		return
	}
	user, _ := middleware.CurrentUser(c)
	row, err := p.Journal.AckAlert(c.Request.Context(), c.Param("id"), user.UserID, time.Now().UTC())
	if errors.Is(err, database.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alertView(row))
}

func alertView(r models.ProctoringAlert) gin.H {
	return gin.H{
		"id":               r.AlertID,
		"examId":           r.ExamID,
		"studentSessionId": r.StudentSessionID,
		"detectionType":    r.DetectionType,
		"severity":         r.Severity,
		"detectionSource":  r.Source,
		"message":          r.Message,
		"confidence":       r.Confidence,
		"attemptsInfo":     json.RawMessage(r.AttemptsInfo),
		"timestamp":        r.RaisedAt,
		"acknowledged":     r.Acknowledged,
		"acknowledgedBy":   r.AcknowledgedBy,
		"acknowledgedAt":   r.AcknowledgedAt,
	}
}

// Stats reports live sessions, sequencer lanes and delivery counters.
func (p *ProctoringController) Stats(c *gin.Context) {
	dispatch, lanes := p.Engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"sessions": p.Sessions.Count(),
		"lanes":    lanes,
		"dispatch": dispatch,
	})
}
