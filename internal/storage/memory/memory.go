// Package memory implements the storage interface in process memory.
// Used for tests and for running without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/scheduler"
	"github.com/jkaninda/mtafiti/internal/storage"
)

// Store keeps reports and schedules in maps guarded by a single mutex.
// All reads and writes copy, so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	reports   map[uuid.UUID]*pipeline.Report
	schedules map[string]*scheduler.Schedule
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		reports:   make(map[uuid.UUID]*pipeline.Report),
		schedules: make(map[string]*scheduler.Schedule),
	}
}

func (s *Store) Reports() pipeline.ReportStore      { return (*reportStore)(s) }
func (s *Store) Schedules() scheduler.ScheduleStore { return (*scheduleStore)(s) }
func (s *Store) Migrate(ctx context.Context) error  { return nil }
func (s *Store) Ping(ctx context.Context) error     { return nil }
func (s *Store) Close() error                       { return nil }
func (s *Store) Driver() string                     { return storage.DriverMemory }

type reportStore Store

func (s *reportStore) CreateReport(ctx context.Context, r *pipeline.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = copyReport(r)
	return nil
}

func (s *reportStore) UpdateReport(ctx context.Context, r *pipeline.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; !ok {
		return fmt.Errorf("report %s: %w", r.ID, storage.ErrNotFound)
	}
	s.reports[r.ID] = copyReport(r)
	return nil
}

func (s *reportStore) GetReport(ctx context.Context, id uuid.UUID) (*pipeline.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, storage.ErrNotFound)
	}
	return copyReport(r), nil
}

func (s *reportStore) ListReports(ctx context.Context, limit int) ([]pipeline.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, *copyReport(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type scheduleStore Store

func (s *scheduleStore) CreateSchedule(ctx context.Context, sched *scheduler.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = copySchedule(sched)
	return nil
}

func (s *scheduleStore) GetSchedule(ctx context.Context, id string) (*scheduler.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, storage.ErrNotFound)
	}
	return copySchedule(sched), nil
}

func (s *scheduleStore) ListSchedules(ctx context.Context) ([]*scheduler.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*scheduler.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, copySchedule(sched))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *scheduleStore) UpdateSchedule(ctx context.Context, sched *scheduler.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sched.ID]; !ok {
		return fmt.Errorf("schedule %s: %w", sched.ID, storage.ErrNotFound)
	}
	s.schedules[sched.ID] = copySchedule(sched)
	return nil
}

func (s *scheduleStore) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("schedule %s: %w", id, storage.ErrNotFound)
	}
	delete(s.schedules, id)
	return nil
}

func (s *scheduleStore) GetDueSchedules(ctx context.Context, now time.Time) ([]*scheduler.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scheduler.Schedule
	for _, sched := range s.schedules {
		if sched.Enabled && !sched.NextRunAt.IsZero() && !sched.NextRunAt.After(now) {
			out = append(out, copySchedule(sched))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextRunAt.Before(out[j].NextRunAt)
	})
	return out, nil
}

func copyReport(r *pipeline.Report) *pipeline.Report {
	cp := *r
	cp.Stages = append([]pipeline.StageResult(nil), r.Stages...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copySchedule(s *scheduler.Schedule) *scheduler.Schedule {
	cp := *s
	if s.LastRunAt != nil {
		t := *s.LastRunAt
		cp.LastRunAt = &t
	}
	return &cp
}
