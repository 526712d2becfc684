package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jkaninda/mtafiti/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider returns one canned output per call, recording requests.
type scriptedProvider struct {
	outputs  []string
	failAt   int // 1-based call number to fail at; 0 = never
	requests []*llm.Request
}

func (s *scriptedProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	call := len(s.requests)
	if s.failAt > 0 && call == s.failAt {
		return nil, errors.New("model unavailable")
	}
	out := fmt.Sprintf("output-%d", call)
	if call <= len(s.outputs) {
		out = s.outputs[call-1]
	}
	return &llm.Response{
		Content:    out,
		StopReason: "end_turn",
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 20},
	}, nil
}

func (s *scriptedProvider) Name() string { return "scripted" }

// fakeStore records report snapshots.
type fakeStore struct {
	mu      sync.Mutex
	created int
	updated int
	last    Report
}

func (f *fakeStore) CreateReport(ctx context.Context, r *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.last = *r
	return nil
}

func (f *fakeStore) UpdateReport(ctx context.Context, r *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated++
	f.last = *r
	return nil
}

func (f *fakeStore) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.last
	return &r, nil
}

func (f *fakeStore) ListReports(ctx context.Context, limit int) ([]Report, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recordingNotifier) Notify(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestGenerate_FullMarkdownEqualsFinalStage(t *testing.T) {
	provider := &scriptedProvider{outputs: []string{
		"subtopics", "collected info", "mini report", "slide outline", "# Full PPT Content\nfinal slides",
	}}
	engine := NewEngine(provider, nil, nil, discardLogger(), DefaultModelConfig())

	rpt, err := engine.Generate(context.Background(), &Request{Topic: "Edge Computing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rpt.FullMarkdown != "# Full PPT Content\nfinal slides" {
		t.Errorf("full markdown must equal the final stage output exactly, got %q", rpt.FullMarkdown)
	}
	if rpt.Status != ReportCompleted {
		t.Errorf("expected status completed, got %q", rpt.Status)
	}
	if len(provider.requests) != 5 {
		t.Errorf("expected 5 provider calls, got %d", len(provider.requests))
	}
	if len(rpt.Stages) != 5 {
		t.Errorf("expected 5 stage results, got %d", len(rpt.Stages))
	}
	// 5 stages at 30 tokens each.
	if rpt.TokensUsed != 150 {
		t.Errorf("expected 150 tokens, got %d", rpt.TokensUsed)
	}
}

func TestGenerate_ContextFlowsDownstream(t *testing.T) {
	provider := &scriptedProvider{outputs: []string{
		"DECOMPOSITION-OUT", "COLLECTION-OUT", "REPORT-OUT", "OUTLINE-OUT", "FINAL-OUT",
	}}
	engine := NewEngine(provider, nil, nil, discardLogger(), DefaultModelConfig())

	if _, err := engine.Generate(context.Background(), &Request{Topic: "AI"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Stage 1 has no upstream context.
	if strings.Contains(provider.requests[0].Prompt, "Context from earlier stages") {
		t.Error("first stage prompt should carry no context section")
	}

	// Stage 2 sees stage 1's output.
	if !strings.Contains(provider.requests[1].Prompt, "DECOMPOSITION-OUT") {
		t.Error("collection prompt must contain the decomposition output")
	}

	// Stage 3 sees stages 1 and 2.
	for _, want := range []string{"DECOMPOSITION-OUT", "COLLECTION-OUT"} {
		if !strings.Contains(provider.requests[2].Prompt, want) {
			t.Errorf("report prompt must contain %q", want)
		}
	}

	// Stage 5 sees the outline and the report, not the raw collection.
	if !strings.Contains(provider.requests[4].Prompt, "OUTLINE-OUT") {
		t.Error("final prompt must contain the outline output")
	}
	if !strings.Contains(provider.requests[4].Prompt, "REPORT-OUT") {
		t.Error("final prompt must contain the report output")
	}
	if strings.Contains(provider.requests[4].Prompt, "COLLECTION-OUT") {
		t.Error("final prompt must not contain undeclared upstream output")
	}

	// Every request carries the agent's role framing and the temperature.
	if !strings.Contains(provider.requests[0].SystemPrompt, "Topic Decomposer") {
		t.Error("first stage must run as the Topic Decomposer")
	}
	if provider.requests[0].Temperature != 0.4 {
		t.Errorf("expected temperature 0.4, got %v", provider.requests[0].Temperature)
	}
}

func TestGenerate_StageFailureAborts(t *testing.T) {
	provider := &scriptedProvider{failAt: 3}
	store := &fakeStore{}
	engine := NewEngine(provider, store, nil, discardLogger(), DefaultModelConfig())

	rpt, err := engine.Generate(context.Background(), &Request{Topic: "AI"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), StageReport) {
		t.Errorf("error must name the failing stage, got %v", err)
	}
	if len(provider.requests) != 3 {
		t.Errorf("no further stages may run after a failure, got %d calls", len(provider.requests))
	}

	// The failed report comes back alongside the error with the stages
	// that did complete.
	if rpt == nil {
		t.Fatal("failed run must return the report with partial stages")
	}
	if rpt.Status != ReportFailed {
		t.Errorf("returned report status = %q, want failed", rpt.Status)
	}
	if len(rpt.Stages) != 2 {
		t.Errorf("expected 2 completed stages on the failed report, got %d", len(rpt.Stages))
	}
	if rpt.Error == "" {
		t.Error("returned report must record the error")
	}
	if rpt.FullMarkdown != "" {
		t.Errorf("failed report must carry no final markdown, got %q", rpt.FullMarkdown)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.last.Status != ReportFailed {
		t.Errorf("stored report must be marked failed, got %q", store.last.Status)
	}
	if store.last.Error == "" {
		t.Error("stored report must record the error")
	}
}

func TestGenerate_EmptyTopicRejected(t *testing.T) {
	provider := &scriptedProvider{}
	engine := NewEngine(provider, nil, nil, discardLogger(), DefaultModelConfig())

	for _, topic := range []string{"", "   ", "\t\n"} {
		if _, err := engine.Generate(context.Background(), &Request{Topic: topic}); err == nil {
			t.Errorf("topic %q: expected error", topic)
		}
	}
	if len(provider.requests) != 0 {
		t.Errorf("provider must not be called for empty topics, got %d calls", len(provider.requests))
	}
}

func TestGenerate_PersistsStages(t *testing.T) {
	provider := &scriptedProvider{}
	store := &fakeStore{}
	engine := NewEngine(provider, store, nil, discardLogger(), DefaultModelConfig())

	rpt, err := engine.Generate(context.Background(), &Request{Topic: "AI"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.created != 1 {
		t.Errorf("expected 1 create, got %d", store.created)
	}
	if store.updated < 5 {
		t.Errorf("expected an update per stage, got %d", store.updated)
	}
	if store.last.ID != rpt.ID {
		t.Error("stored report ID mismatch")
	}
	if len(store.last.Stages) != 5 {
		t.Errorf("expected 5 stored stages, got %d", len(store.last.Stages))
	}
	if store.last.CompletedAt == nil {
		t.Error("completed report must record completion time")
	}
}

func TestGenerate_NotifierReceivesEvents(t *testing.T) {
	provider := &scriptedProvider{}
	notifier := &recordingNotifier{}
	engine := NewEngine(provider, nil, nil, discardLogger(), DefaultModelConfig()).WithNotifier(notifier)

	if _, err := engine.Generate(context.Background(), &Request{Topic: "AI"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	// 5 started + 5 completed + 1 terminal.
	if len(notifier.events) != 11 {
		t.Fatalf("expected 11 events, got %d", len(notifier.events))
	}
	if notifier.events[0].Stage != StageDecomposition || notifier.events[0].Status != "started" {
		t.Errorf("unexpected first event: %+v", notifier.events[0])
	}
	last := notifier.events[len(notifier.events)-1]
	if last.Status != "completed" || last.Stage != "" {
		t.Errorf("unexpected terminal event: %+v", last)
	}
}

func TestGenerate_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	provider := &scriptedProvider{}
	engine := NewEngine(provider, nil, metrics, discardLogger(), DefaultModelConfig())

	if _, err := engine.Generate(context.Background(), &Request{Topic: "AI"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}

	if got := counterValue(families, "mtafiti_pipeline_reports_total", "status", "completed"); got != 1 {
		t.Errorf("expected 1 completed report, got %v", got)
	}
	if got := counterValue(families, "mtafiti_pipeline_stages_total", "stage", StageFullContent); got != 1 {
		t.Errorf("expected 1 full_content stage, got %v", got)
	}
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	if m := NewMetrics(nil); m != nil {
		t.Fatal("expected nil Metrics for nil registry")
	}
}

// counterValue sums counter samples of the named family matching one label pair.
func counterValue(families []*dto.MetricFamily, name, labelName, labelValue string) float64 {
	var sum float64
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == labelName && l.GetValue() == labelValue {
					sum += m.GetCounter().GetValue()
				}
			}
		}
	}
	return sum
}
