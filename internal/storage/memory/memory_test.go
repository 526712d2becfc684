package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/scheduler"
	"github.com/jkaninda/mtafiti/internal/storage"
)

func TestReportLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()
	reports := store.Reports()

	report := &pipeline.Report{
		ID:        uuid.New(),
		Topic:     "AI Safety",
		Status:    pipeline.ReportRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := reports.CreateReport(ctx, report); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	// Mutating the caller's copy must not affect the stored one.
	report.Topic = "changed"
	got, err := reports.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Topic != "AI Safety" {
		t.Errorf("stored topic = %q, want AI Safety", got.Topic)
	}

	report.Topic = "AI Safety"
	report.Status = pipeline.ReportCompleted
	if err := reports.UpdateReport(ctx, report); err != nil {
		t.Fatalf("UpdateReport: %v", err)
	}
	got, err = reports.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Status != pipeline.ReportCompleted {
		t.Errorf("status = %q", got.Status)
	}
}

func TestUpdateReport_NotFound(t *testing.T) {
	store := New()
	err := store.Reports().UpdateReport(context.Background(), &pipeline.Report{ID: uuid.New()})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReports_NewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()
	reports := store.Reports()

	base := time.Now().UTC()
	var last uuid.UUID
	for i := 0; i < 3; i++ {
		r := &pipeline.Report{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		last = r.ID
		if err := reports.CreateReport(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := reports.ListReports(ctx, 10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != last {
		t.Error("newest report not first")
	}
}

func TestScheduleLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()
	schedules := store.Schedules()

	now := time.Now().UTC()
	sched := &scheduler.Schedule{
		ID:             uuid.NewString(),
		Topic:          "Robotics",
		CronExpression: "0 9 * * *",
		Enabled:        true,
		NextRunAt:      now.Add(-time.Minute),
		CreatedAt:      now,
	}
	if err := schedules.CreateSchedule(ctx, sched); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	due, err := schedules.GetDueSchedules(ctx, now)
	if err != nil {
		t.Fatalf("GetDueSchedules: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d, want 1", len(due))
	}

	if err := schedules.DeleteSchedule(ctx, sched.ID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if err := schedules.DeleteSchedule(ctx, sched.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDriver(t *testing.T) {
	store := New()
	if store.Driver() != storage.DriverMemory {
		t.Errorf("Driver = %q", store.Driver())
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
