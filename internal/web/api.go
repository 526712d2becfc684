package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/scheduler"
	"github.com/jkaninda/mtafiti/internal/storage"
	"github.com/jkaninda/okapi"
)

// **** Report request/response types ****

// ReportRequest is the JSON body for POST /v1/reports.
type ReportRequest struct {
	Topic        string `json:"topic"`
	Instructions string `json:"instructions,omitempty"`
}

// ReportResponse is the JSON response for report endpoints.
type ReportResponse struct {
	ID            string          `json:"id"`
	Topic         string          `json:"topic"`
	Instructions  string          `json:"instructions,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Status        string          `json:"status"`
	FullMarkdown  string          `json:"full_markdown,omitempty"`
	Stages        []StageResponse `json:"stages,omitempty"`
	TokensUsed    int             `json:"tokens_used,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// StageResponse is one pipeline stage result in a report response.
type StageResponse struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	AgentRole  string `json:"agent_role"`
	Output     string `json:"output"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

func toReportResponse(r *pipeline.Report) ReportResponse {
	resp := ReportResponse{
		ID:            r.ID.String(),
		Topic:         r.Topic,
		Instructions:  r.Instructions,
		CorrelationID: r.CorrelationID,
		Status:        string(r.Status),
		FullMarkdown:  r.FullMarkdown,
		TokensUsed:    r.TokensUsed,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
	}
	for _, st := range r.Stages {
		resp.Stages = append(resp.Stages, StageResponse{
			Index:      st.Index,
			Name:       st.Name,
			AgentRole:  st.AgentRole,
			Output:     st.Output,
			TokensUsed: st.TokensUsed,
			DurationMS: st.Duration.Milliseconds(),
		})
	}
	return resp
}

// **** Report handlers ****

func (s *Server) handleReportCreate(c *okapi.Context) error {
	clientID := c.GetString("clientID")
	if s.limiter != nil {
		if err := s.limiter.Allow(clientID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Topic) == "" {
		return c.AbortBadRequest("topic is required")
	}

	s.logger.Info("api report requested",
		slog.String("client_id", clientID),
		slog.String("topic", req.Topic),
	)

	report, err := s.generator.Generate(c.Context(), &pipeline.Request{
		Topic:        req.Topic,
		Instructions: req.Instructions,
		UserID:       clientID,
	})
	if err != nil {
		s.logger.Error("report generation failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		if report != nil {
			// The failed run carries partial stage outputs.
			return c.JSON(http.StatusInternalServerError, toReportResponse(report))
		}
		return c.AbortInternalServerError("report generation failed")
	}

	return c.JSON(http.StatusCreated, toReportResponse(report))
}

func (s *Server) handleReportList(c *okapi.Context) error {
	store := s.reportStore()
	if store == nil {
		return c.AbortServiceUnavailable("storage not configured")
	}

	limit := 0
	if raw := c.Request().URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.AbortBadRequest("invalid limit")
		}
		limit = n
	}

	reports, err := store.ListReports(c.Context(), limit)
	if err != nil {
		s.logger.Error("listing reports", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to list reports")
	}

	resp := make([]ReportResponse, len(reports))
	for i := range reports {
		resp[i] = toReportResponse(&reports[i])
	}
	return c.OK(resp)
}

func (s *Server) handleReportGet(c *okapi.Context) error {
	store := s.reportStore()
	if store == nil {
		return c.AbortServiceUnavailable("storage not configured")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid report ID")
	}

	report, err := store.GetReport(c.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "report not found"})
	}
	if err != nil {
		s.logger.Error("getting report", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to get report")
	}

	return c.OK(toReportResponse(report))
}

// **** Schedule request/response types ****

// ScheduleRequest is the JSON body for POST /v1/schedules.
type ScheduleRequest struct {
	Topic          string `json:"topic"`
	Instructions   string `json:"instructions,omitempty"`
	CronExpression string `json:"cron_expression"`
	Enabled        *bool  `json:"enabled,omitempty"` // Pointer to distinguish absent from false.
}

// ScheduleResponse is the JSON response for schedule endpoints.
type ScheduleResponse struct {
	ID             string     `json:"id"`
	Topic          string     `json:"topic"`
	Instructions   string     `json:"instructions,omitempty"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	NextRunAt      time.Time  `json:"next_run_at"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastReportID   string     `json:"last_report_id,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toScheduleResponse(sched *scheduler.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:             sched.ID,
		Topic:          sched.Topic,
		Instructions:   sched.Instructions,
		CronExpression: sched.CronExpression,
		Enabled:        sched.Enabled,
		NextRunAt:      sched.NextRunAt,
		LastRunAt:      sched.LastRunAt,
		LastReportID:   sched.LastReportID,
		LastError:      sched.LastError,
		CreatedAt:      sched.CreatedAt,
		UpdatedAt:      sched.UpdatedAt,
	}
}

// **** Schedule handlers ****

func (s *Server) handleScheduleCreate(c *okapi.Context) error {
	clientID := c.GetString("clientID")
	store := s.scheduleStore()
	if store == nil {
		return c.AbortServiceUnavailable("storage not configured")
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(clientID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Topic) == "" {
		return c.AbortBadRequest("topic is required")
	}
	if req.CronExpression == "" {
		return c.AbortBadRequest("cron_expression is required")
	}

	now := time.Now().UTC()
	nextRun, err := scheduler.ComputeNextRunFrom(req.CronExpression, now)
	if err != nil {
		return c.AbortBadRequest(fmt.Sprintf("invalid cron_expression: %v", err))
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sched := &scheduler.Schedule{
		ID:             uuid.NewString(),
		Topic:          req.Topic,
		Instructions:   req.Instructions,
		CronExpression: req.CronExpression,
		Enabled:        enabled,
		NextRunAt:      nextRun,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := store.CreateSchedule(c.Context(), sched); err != nil {
		s.logger.Error("schedule creation failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to create schedule")
	}

	s.logger.Info("schedule created",
		slog.String("schedule_id", sched.ID),
		slog.String("client_id", clientID),
		slog.String("cron_expression", sched.CronExpression),
	)

	return c.JSON(http.StatusCreated, toScheduleResponse(sched))
}

func (s *Server) handleScheduleList(c *okapi.Context) error {
	store := s.scheduleStore()
	if store == nil {
		return c.AbortServiceUnavailable("storage not configured")
	}

	schedules, err := store.ListSchedules(c.Context())
	if err != nil {
		return c.AbortInternalServerError("failed to list schedules")
	}

	resp := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		resp[i] = toScheduleResponse(schedules[i])
	}
	return c.OK(resp)
}

func (s *Server) handleScheduleGet(c *okapi.Context) error {
	store := s.scheduleStore()
	if store == nil {
		return c.AbortServiceUnavailable("storage not configured")
	}

	sched, err := store.GetSchedule(c.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "schedule not found"})
	}
	if err != nil {
		return c.AbortInternalServerError("failed to get schedule")
	}

	return c.OK(toScheduleResponse(sched))
}

func (s *Server) handleScheduleDelete(c *okapi.Context) error {
	store := s.scheduleStore()
	if store == nil {
		return c.AbortServiceUnavailable("storage not configured")
	}

	id := c.Param("id")
	err := store.DeleteSchedule(c.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "schedule not found"})
	}
	if err != nil {
		return c.AbortInternalServerError("failed to delete schedule")
	}

	s.logger.Info("schedule deleted", slog.String("schedule_id", id))
	return c.OK(map[string]string{"status": "deleted"})
}
