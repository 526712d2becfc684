package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSON stores an arbitrary JSON document in a text/jsonb column.
type JSON json.RawMessage

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	return nil
}

// ReportModel is the database row for a report run.
type ReportModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	Topic         string `gorm:"not null;index"`
	Instructions  string `gorm:"type:text"`
	CorrelationID string `gorm:"size:64;index"`
	Status        string `gorm:"size:16;index"`
	FullMarkdown  string `gorm:"type:text"`
	Stages        JSON   `gorm:"type:text"`
	TokensUsed    int
	Error         string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func (ReportModel) TableName() string { return "reports" }

// ScheduleModel is the database row for a recurring report schedule.
type ScheduleModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Topic          string    `gorm:"not null"`
	Instructions   string    `gorm:"type:text"`
	CronExpression string    `gorm:"size:64;not null"`
	Enabled        bool      `gorm:"index"`
	NextRunAt      time.Time `gorm:"index"`
	LastRunAt      *time.Time
	LastReportID   string `gorm:"size:36"`
	LastError      string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ScheduleModel) TableName() string { return "schedules" }
