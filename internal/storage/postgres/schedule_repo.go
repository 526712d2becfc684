package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jkaninda/mtafiti/internal/scheduler"
	"github.com/jkaninda/mtafiti/internal/storage"
)

// ScheduleRepo persists recurring report schedules.
type ScheduleRepo struct {
	db *gorm.DB
}

var _ scheduler.ScheduleStore = (*ScheduleRepo)(nil)

func (r *ScheduleRepo) CreateSchedule(ctx context.Context, s *scheduler.Schedule) error {
	if err := r.db.WithContext(ctx).Create(toScheduleModel(s)).Error; err != nil {
		return fmt.Errorf("creating schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepo) GetSchedule(ctx context.Context, id string) (*scheduler.Schedule, error) {
	var model ScheduleModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("schedule %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting schedule: %w", err)
	}
	return toScheduleDomain(&model), nil
}

func (r *ScheduleRepo) ListSchedules(ctx context.Context) ([]*scheduler.Schedule, error) {
	var models []ScheduleModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	schedules := make([]*scheduler.Schedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, toScheduleDomain(&models[i]))
	}
	return schedules, nil
}

func (r *ScheduleRepo) UpdateSchedule(ctx context.Context, s *scheduler.Schedule) error {
	result := r.db.WithContext(ctx).Model(&ScheduleModel{}).
		Where("id = ?", s.ID).
		Select("*").Omit("created_at").
		Updates(toScheduleModel(s))
	if result.Error != nil {
		return fmt.Errorf("updating schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule %s: %w", s.ID, storage.ErrNotFound)
	}
	return nil
}

func (r *ScheduleRepo) DeleteSchedule(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&ScheduleModel{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (r *ScheduleRepo) GetDueSchedules(ctx context.Context, now time.Time) ([]*scheduler.Schedule, error) {
	var models []ScheduleModel
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing due schedules: %w", err)
	}
	schedules := make([]*scheduler.Schedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, toScheduleDomain(&models[i]))
	}
	return schedules, nil
}

func toScheduleModel(s *scheduler.Schedule) *ScheduleModel {
	return &ScheduleModel{
		ID:             s.ID,
		Topic:          s.Topic,
		Instructions:   s.Instructions,
		CronExpression: s.CronExpression,
		Enabled:        s.Enabled,
		NextRunAt:      s.NextRunAt,
		LastRunAt:      s.LastRunAt,
		LastReportID:   s.LastReportID,
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toScheduleDomain(m *ScheduleModel) *scheduler.Schedule {
	return &scheduler.Schedule{
		ID:             m.ID,
		Topic:          m.Topic,
		Instructions:   m.Instructions,
		CronExpression: m.CronExpression,
		Enabled:        m.Enabled,
		NextRunAt:      m.NextRunAt,
		LastRunAt:      m.LastRunAt,
		LastReportID:   m.LastReportID,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
