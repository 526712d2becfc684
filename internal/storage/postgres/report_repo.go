package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/storage"
)

// ReportRepo persists report runs.
type ReportRepo struct {
	db *gorm.DB
}

var _ pipeline.ReportStore = (*ReportRepo)(nil)

func (r *ReportRepo) CreateReport(ctx context.Context, report *pipeline.Report) error {
	model, err := toReportModel(report)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	return nil
}

func (r *ReportRepo) UpdateReport(ctx context.Context, report *pipeline.Report) error {
	model, err := toReportModel(report)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&ReportModel{}).
		Where("id = ?", model.ID).
		Select("*").Omit("created_at").
		Updates(model)
	if result.Error != nil {
		return fmt.Errorf("updating report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("report %s: %w", model.ID, storage.ErrNotFound)
	}
	return nil
}

func (r *ReportRepo) GetReport(ctx context.Context, id uuid.UUID) (*pipeline.Report, error) {
	var model ReportModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("report %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return toReportDomain(&model)
}

func (r *ReportRepo) ListReports(ctx context.Context, limit int) ([]pipeline.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []ReportModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	reports := make([]pipeline.Report, 0, len(models))
	for i := range models {
		report, cerr := toReportDomain(&models[i])
		if cerr != nil {
			return nil, cerr
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

func toReportModel(r *pipeline.Report) (*ReportModel, error) {
	stages, err := json.Marshal(r.Stages)
	if err != nil {
		return nil, fmt.Errorf("encoding stages: %w", err)
	}
	return &ReportModel{
		ID:            r.ID.String(),
		Topic:         r.Topic,
		Instructions:  r.Instructions,
		CorrelationID: r.CorrelationID,
		Status:        string(r.Status),
		FullMarkdown:  r.FullMarkdown,
		Stages:        JSON(stages),
		TokensUsed:    r.TokensUsed,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		CompletedAt:   r.CompletedAt,
	}, nil
}

func toReportDomain(m *ReportModel) (*pipeline.Report, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing report id %q: %w", m.ID, err)
	}
	var stages []pipeline.StageResult
	if len(m.Stages) > 0 {
		if err := json.Unmarshal(m.Stages, &stages); err != nil {
			return nil, fmt.Errorf("decoding stages: %w", err)
		}
	}
	return &pipeline.Report{
		ID:            id,
		Topic:         m.Topic,
		Instructions:  m.Instructions,
		CorrelationID: m.CorrelationID,
		Status:        pipeline.ReportStatus(m.Status),
		FullMarkdown:  m.FullMarkdown,
		Stages:        stages,
		TokensUsed:    m.TokensUsed,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		CompletedAt:   m.CompletedAt,
	}, nil
}
