package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/mtafiti/internal/llm"
)

// Engine executes report chains. It is the main entry point for report
// generation: it builds the task chain for a request, runs the stages in
// dependency order against the LLM provider, and collects the final
// markdown artifact.
//
// Each call constructs fresh chain state; no state is shared across requests.
type Engine struct {
	provider llm.Provider
	store    ReportStore // nil = no persistence
	metrics  *Metrics    // nil-safe
	notifier Notifier    // nil-safe
	logger   *slog.Logger
	model    ModelConfig
}

// NewEngine creates a pipeline engine with the given components.
// store and metrics may be nil.
func NewEngine(provider llm.Provider, store ReportStore, metrics *Metrics, logger *slog.Logger, model ModelConfig) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if model.Model == "" {
		model = DefaultModelConfig()
	}
	return &Engine{
		provider: provider,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		model:    model,
	}
}

// WithNotifier attaches a progress notifier to the engine. Nil-safe (no-op if nil).
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// Generate runs the full five-stage chain for the request and returns the
// completed report. The first stage failure aborts the run and propagates;
// no retries. The failed report, carrying the stages completed before the
// failure, is returned alongside the error so callers can expose it.
func (e *Engine) Generate(ctx context.Context, req *Request) (*Report, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	chain := BuildChainWithModel(e.model, topic, req.Instructions)
	order, err := TopologicalOrder(chain)
	if err != nil {
		return nil, fmt.Errorf("invalid chain: %w", err)
	}

	now := time.Now().UTC()
	rpt := &Report{
		ID:            uuid.New(),
		Topic:         topic,
		Instructions:  req.Instructions,
		CorrelationID: req.CorrelationID,
		Status:        ReportRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	e.persistCreate(ctx, rpt)

	if e.metrics != nil {
		e.metrics.ActiveGenerations.Inc()
		defer e.metrics.ActiveGenerations.Dec()
	}

	e.logger.InfoContext(ctx, "report generation started",
		slog.String("report_id", rpt.ID.String()),
		slog.String("topic", topic),
		slog.String("correlation_id", req.CorrelationID),
		slog.String("provider", e.provider.Name()),
		slog.String("model", e.model.Model),
	)

	runStart := time.Now()
	outputs := make([]string, len(chain.Tasks))

	for _, i := range order {
		task := chain.Tasks[i]
		e.notify(ProgressEvent{
			ReportID:   rpt.ID,
			Stage:      task.Name,
			StageIndex: i,
			Status:     "started",
			Timestamp:  time.Now().UTC(),
		})

		stageStart := time.Now()
		resp, err := e.provider.Generate(ctx, &llm.Request{
			SystemPrompt: task.Agent.SystemPrompt(),
			Prompt:       buildPrompt(chain, i, outputs),
			Temperature:  task.Agent.Model.Temperature,
		})
		if err != nil {
			return rpt, e.failRun(ctx, rpt, i, task.Name, runStart, err)
		}

		duration := time.Since(stageStart)
		outputs[i] = resp.Content
		stageTokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
		rpt.Stages = append(rpt.Stages, StageResult{
			Index:      i,
			Name:       task.Name,
			AgentRole:  task.Agent.Role,
			Output:     resp.Content,
			TokensUsed: stageTokens,
			Duration:   duration,
		})
		rpt.TokensUsed += stageTokens
		rpt.UpdatedAt = time.Now().UTC()
		e.persistUpdate(ctx, rpt)

		if e.metrics != nil {
			e.metrics.StagesTotal.WithLabelValues(task.Name, "completed").Inc()
			e.metrics.StageDuration.WithLabelValues(task.Name).Observe(duration.Seconds())
			e.metrics.TokensTotal.WithLabelValues(task.Name, "input").Add(float64(resp.Usage.InputTokens))
			e.metrics.TokensTotal.WithLabelValues(task.Name, "output").Add(float64(resp.Usage.OutputTokens))
		}

		e.logger.InfoContext(ctx, "stage completed",
			slog.String("report_id", rpt.ID.String()),
			slog.String("stage", task.Name),
			slog.Int("tokens", stageTokens),
			slog.Float64("duration_seconds", duration.Seconds()),
		)

		e.notify(ProgressEvent{
			ReportID:   rpt.ID,
			Stage:      task.Name,
			StageIndex: i,
			Status:     "completed",
			Timestamp:  time.Now().UTC(),
		})
	}

	// Only the final task's text is the canonical artifact.
	rpt.FullMarkdown = outputs[len(chain.Tasks)-1]
	rpt.Status = ReportCompleted
	completed := time.Now().UTC()
	rpt.CompletedAt = &completed
	rpt.UpdatedAt = completed
	e.persistUpdate(ctx, rpt)

	if e.metrics != nil {
		e.metrics.ReportsTotal.WithLabelValues(string(ReportCompleted)).Inc()
		e.metrics.ReportDuration.WithLabelValues(string(ReportCompleted)).Observe(time.Since(runStart).Seconds())
	}

	e.notify(ProgressEvent{
		ReportID:  rpt.ID,
		Status:    "completed",
		Timestamp: completed,
	})

	e.logger.InfoContext(ctx, "report generation completed",
		slog.String("report_id", rpt.ID.String()),
		slog.Int("tokens", rpt.TokensUsed),
		slog.Float64("duration_seconds", time.Since(runStart).Seconds()),
	)

	return rpt, nil
}

// buildPrompt combines the task description with the outputs of its
// declared upstream tasks.
func buildPrompt(c Chain, idx int, outputs []string) string {
	task := c.Tasks[idx]

	var b strings.Builder
	if len(task.Context) > 0 {
		b.WriteString("## Context from earlier stages\n\n")
		for _, dep := range task.Context {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", c.Tasks[dep].Name, outputs[dep])
		}
		b.WriteString("---\n\n")
	}

	b.WriteString("## Task\n\n")
	b.WriteString(task.Description)

	if task.ExpectedOutput != "" {
		b.WriteString("\n\n## Expected output\n\n")
		b.WriteString(task.ExpectedOutput)
	}

	return b.String()
}

func (e *Engine) failRun(ctx context.Context, rpt *Report, idx int, stage string, runStart time.Time, cause error) error {
	rpt.Status = ReportFailed
	rpt.Error = cause.Error()
	completed := time.Now().UTC()
	rpt.CompletedAt = &completed
	rpt.UpdatedAt = completed
	e.persistUpdate(ctx, rpt)

	if e.metrics != nil {
		e.metrics.StagesTotal.WithLabelValues(stage, "failed").Inc()
		e.metrics.ReportsTotal.WithLabelValues(string(ReportFailed)).Inc()
		e.metrics.ReportDuration.WithLabelValues(string(ReportFailed)).Observe(time.Since(runStart).Seconds())
	}

	e.notify(ProgressEvent{
		ReportID:   rpt.ID,
		Stage:      stage,
		StageIndex: idx,
		Status:     "failed",
		Timestamp:  completed,
	})

	e.logger.WarnContext(ctx, "report generation failed",
		slog.String("report_id", rpt.ID.String()),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)

	return fmt.Errorf("stage %s: %w", stage, cause)
}

func (e *Engine) notify(event ProgressEvent) {
	if e.notifier != nil {
		e.notifier.Notify(event)
	}
}

// Persistence is best-effort: a store failure never aborts a run that the
// provider side of the pipeline can still complete.
func (e *Engine) persistCreate(ctx context.Context, rpt *Report) {
	if e.store == nil {
		return
	}
	if err := e.store.CreateReport(ctx, rpt); err != nil {
		e.logger.WarnContext(ctx, "failed to persist report",
			slog.String("report_id", rpt.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) persistUpdate(ctx context.Context, rpt *Report) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateReport(ctx, rpt); err != nil {
		e.logger.WarnContext(ctx, "failed to update report",
			slog.String("report_id", rpt.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
