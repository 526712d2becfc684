// Package scheduler runs recurring report generation on cron expressions.
// A poll loop finds due schedules, fires each as a pipeline run, and
// records the next run time.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/mtafiti/internal/pipeline"
)

// Schedule is a recurring report generation job.
type Schedule struct {
	ID             string
	Topic          string
	Instructions   string
	CronExpression string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	NextRunAt      time.Time
	LastRunAt      *time.Time
	LastReportID   string
	LastError      string
}

// ScheduleStore persists schedules.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]*Schedule, error)
	UpdateSchedule(ctx context.Context, s *Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	// GetDueSchedules returns enabled schedules with NextRunAt <= now.
	GetDueSchedules(ctx context.Context, now time.Time) ([]*Schedule, error)
}

// Generator produces a report for a schedule's topic.
type Generator interface {
	Generate(ctx context.Context, req *pipeline.Request) (*pipeline.Report, error)
}

// Config controls poll cadence and concurrency.
type Config struct {
	PollInterval    time.Duration
	MaxConcurrent   int
	MissedRunWindow time.Duration
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateCronExpression checks expr against the five-field cron format.
func ValidateCronExpression(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// ComputeNextRunFrom returns the next fire time of expr after from.
func ComputeNextRunFrom(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// Scheduler polls the store for due schedules and fires them.
type Scheduler struct {
	store     ScheduleStore
	generator Generator
	cfg       Config
	metrics   *Metrics
	logger    *slog.Logger
	sem       chan struct{}

	now func() time.Time
}

// New creates a Scheduler. Metrics may be nil.
func New(store ScheduleStore, generator Generator, cfg Config, metrics *Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.MissedRunWindow <= 0 {
		cfg.MissedRunWindow = time.Hour
	}
	return &Scheduler{
		store:     store,
		generator: generator,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		now:       time.Now,
	}
}

// Start launches the poll loop and returns a stop function.
func (s *Scheduler) Start(ctx context.Context) func() {
	runCtx, cancel := context.WithCancel(ctx)

	s.recoverMissedRuns(runCtx)

	go func() {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.logger.Info("scheduler started",
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Int("max_concurrent", s.cfg.MaxConcurrent),
	)

	return cancel
}

// tick finds due schedules and fires each, bounded by the semaphore.
func (s *Scheduler) tick(ctx context.Context) {
	start := s.now()

	due, err := s.store.GetDueSchedules(ctx, start)
	if err != nil {
		s.logger.Error("listing due schedules", slog.String("error", err.Error()))
		return
	}

	for _, sched := range due {
		select {
		case s.sem <- struct{}{}:
			go func(sched *Schedule) {
				defer func() { <-s.sem }()
				s.fireSchedule(ctx, sched)
			}(sched)
		case <-ctx.Done():
			return
		}
	}

	if s.metrics != nil {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

// fireSchedule runs the pipeline for one schedule and records the outcome.
func (s *Scheduler) fireSchedule(ctx context.Context, sched *Schedule) {
	correlationID := newCorrelationID()
	logger := s.logger.With(
		slog.String("schedule_id", sched.ID),
		slog.String("correlation_id", correlationID),
	)
	logger.Info("firing schedule", slog.String("topic", sched.Topic))

	if s.metrics != nil {
		s.metrics.RunsFired.Inc()
	}

	report, err := s.generator.Generate(ctx, &pipeline.Request{
		Topic:         sched.Topic,
		Instructions:  sched.Instructions,
		CorrelationID: correlationID,
	})

	now := s.now()
	sched.LastRunAt = &now
	sched.LastError = ""
	sched.LastReportID = ""

	if err != nil {
		sched.LastError = err.Error()
		if s.metrics != nil {
			s.metrics.RunsFailed.Inc()
		}
		logger.Error("scheduled run failed", slog.String("error", err.Error()))
	} else {
		sched.LastReportID = report.ID.String()
		if s.metrics != nil {
			s.metrics.RunsSucceeded.Inc()
		}
		logger.Info("scheduled run completed", slog.String("report_id", sched.LastReportID))
	}

	next, nerr := ComputeNextRunFrom(sched.CronExpression, now)
	if nerr != nil {
		// Unparsable expression in the store; disable instead of firing forever.
		logger.Error("disabling schedule", slog.String("error", nerr.Error()))
		sched.Enabled = false
	} else {
		sched.NextRunAt = next
	}
	sched.UpdatedAt = now

	if uerr := s.store.UpdateSchedule(ctx, sched); uerr != nil {
		logger.Error("recording schedule run", slog.String("error", uerr.Error()))
	}
}

// recoverMissedRuns handles schedules whose NextRunAt passed while the
// process was down. Runs inside the missed window fire immediately on the
// next tick; older ones are skipped forward.
func (s *Scheduler) recoverMissedRuns(ctx context.Context) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("recovering missed runs", slog.String("error", err.Error()))
		return
	}

	now := s.now()
	for _, sched := range schedules {
		if !sched.Enabled || sched.NextRunAt.IsZero() || !sched.NextRunAt.Before(now) {
			continue
		}
		if now.Sub(sched.NextRunAt) <= s.cfg.MissedRunWindow {
			continue // still due, next tick fires it
		}

		next, nerr := ComputeNextRunFrom(sched.CronExpression, now)
		if nerr != nil {
			continue
		}
		s.logger.Warn("skipping missed run",
			slog.String("schedule_id", sched.ID),
			slog.Time("missed_at", sched.NextRunAt),
			slog.Time("next_run_at", next),
		)
		sched.NextRunAt = next
		sched.UpdatedAt = now
		if uerr := s.store.UpdateSchedule(ctx, sched); uerr != nil {
			s.logger.Error("updating skipped schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", uerr.Error()),
			)
		}
		if s.metrics != nil {
			s.metrics.RunsMissed.Inc()
		}
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
