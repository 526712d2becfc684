// Package pipeline implements the five-stage research report pipeline.
// A fixed chain of role-scoped prompt stages (decomposition, collection,
// report, outline, full content) is executed sequentially against an LLM
// provider, with each stage's declared upstream outputs fed into the next
// prompt as context.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReportStatus represents the lifecycle state of a report run.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportRunning   ReportStatus = "running"
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// Stage names in fixed chain order.
const (
	StageDecomposition = "decomposition"
	StageCollection    = "collection"
	StageReport        = "report"
	StageOutline       = "outline"
	StageFullContent   = "full_content"
)

// ModelConfig is the shared LLM configuration all five agents are bound to.
// It is an explicit immutable value passed into chain construction, never
// ambient state.
type ModelConfig struct {
	Model       string
	Temperature float64
	UseNative   bool // Native provider SDK integration. Off: the raw HTTP client is used.
}

// DefaultModelConfig returns the stock model configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       "gemini-2.0-flash",
		Temperature: 0.4,
		UseNative:   false,
	}
}

// AgentSpec is a fixed role configuration framing one stage's prompt.
// Immutable after construction; one instance per role per chain.
type AgentSpec struct {
	Role      string
	Goal      string
	Backstory string
	Model     ModelConfig
}

// TaskSpec is one unit of chained work: a description, an expected-output
// contract, an assigned agent, and indices of upstream tasks whose outputs
// become additional context.
type TaskSpec struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          AgentSpec
	Context        []int // Indices into the same chain. Earlier tasks only.
}

// Chain is the ordered, acyclic sequence of tasks executed end-to-end to
// produce the final report artifact.
type Chain struct {
	Topic        string
	Instructions string
	// ExtraNote is the normalized instructions text ("No extra instructions."
	// when blank). It is computed during chain construction but not
	// interpolated into any task description.
	ExtraNote string
	Tasks     []TaskSpec
}

// Request is the input to generate one report.
type Request struct {
	Topic         string
	Instructions  string
	UserID        string
	CorrelationID string
}

// Report is the full result of one pipeline run.
type Report struct {
	ID            uuid.UUID
	Topic         string
	Instructions  string
	CorrelationID string
	Status        ReportStatus
	FullMarkdown  string // The final stage's output, verbatim.
	Stages        []StageResult
	TokensUsed    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	Error         string
}

// StageResult records one stage's output within a run.
type StageResult struct {
	Index      int
	Name       string
	AgentRole  string
	Output     string
	TokensUsed int
	Duration   time.Duration
}

// ReportStore persists report state.
// Implementations: gorm-backed or in-memory.
type ReportStore interface {
	CreateReport(ctx context.Context, r *Report) error
	UpdateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*Report, error)
	ListReports(ctx context.Context, limit int) ([]Report, error)
}

// ProgressEvent describes a stage transition during generation.
type ProgressEvent struct {
	ReportID   uuid.UUID `json:"report_id"`
	Stage      string    `json:"stage,omitempty"`
	StageIndex int       `json:"stage_index"`
	Status     string    `json:"status"` // "started", "completed", "failed"
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier receives stage progress events during report generation.
// Implementations must not block; events may be dropped under pressure.
type Notifier interface {
	Notify(event ProgressEvent)
}
