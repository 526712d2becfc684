package pipeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildChain_FiveTasksFixedOrder(t *testing.T) {
	c := BuildChain("Quantum Computing", "")

	wantNames := []string{
		StageDecomposition,
		StageCollection,
		StageReport,
		StageOutline,
		StageFullContent,
	}
	if len(c.Tasks) != len(wantNames) {
		t.Fatalf("expected %d tasks, got %d", len(wantNames), len(c.Tasks))
	}
	for i, want := range wantNames {
		if c.Tasks[i].Name != want {
			t.Errorf("task %d: expected name %q, got %q", i, want, c.Tasks[i].Name)
		}
	}

	wantDeps := map[int][]int{
		0: nil,
		1: {0},
		2: {0, 1},
		3: {2},
		4: {3, 2},
	}
	for i, want := range wantDeps {
		got := c.Tasks[i].Context
		if !reflect.DeepEqual(got, want) {
			t.Errorf("task %d: expected context %v, got %v", i, want, got)
		}
	}
}

func TestBuildChain_TopicVerbatim(t *testing.T) {
	c := BuildChain("Neural Networks", "")
	if !strings.Contains(c.Tasks[0].Description, "Neural Networks") {
		t.Errorf("first task description must contain the topic verbatim, got %q", c.Tasks[0].Description)
	}
	if !strings.Contains(c.Tasks[2].Description, "Neural Networks") {
		t.Errorf("report task description must contain the topic verbatim, got %q", c.Tasks[2].Description)
	}
}

func TestBuildChain_Deterministic(t *testing.T) {
	a := BuildChain("Edge Computing", "Focus on IoT")
	b := BuildChain("Edge Computing", "Focus on IoT")
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs must yield structurally identical chains")
	}
}

func TestBuildChain_ExtraNoteDefault(t *testing.T) {
	tests := []struct {
		instructions string
		want         string
	}{
		{"", "No extra instructions."},
		{"   ", "No extra instructions."},
		{"Focus on IoT", "Focus on IoT"},
		{"  Focus on IoT  ", "Focus on IoT"},
	}
	for _, tt := range tests {
		c := BuildChain("AI", tt.instructions)
		if c.ExtraNote != tt.want {
			t.Errorf("instructions %q: expected extra note %q, got %q", tt.instructions, tt.want, c.ExtraNote)
		}
	}
}

func TestBuildChain_ExtraNoteNotInterpolated(t *testing.T) {
	// The normalized instructions are computed but do not appear in any
	// task description.
	c := BuildChain("AI", "Focus on transformers")
	for i, task := range c.Tasks {
		if strings.Contains(task.Description, "Focus on transformers") {
			t.Errorf("task %d: instructions must not appear in description", i)
		}
	}
}

func TestBuildChain_AgentsBoundToModel(t *testing.T) {
	model := ModelConfig{Model: "gemini-2.0-flash", Temperature: 0.4}
	c := BuildChainWithModel(model, "AI", "")
	for i, task := range c.Tasks {
		if task.Agent.Model != model {
			t.Errorf("task %d: agent not bound to shared model config: %+v", i, task.Agent.Model)
		}
	}
}

func TestDefaultModelConfig(t *testing.T) {
	mc := DefaultModelConfig()
	if mc.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected model %q", mc.Model)
	}
	if mc.Temperature != 0.4 {
		t.Errorf("unexpected temperature %v", mc.Temperature)
	}
	if mc.UseNative {
		t.Error("native provider integration should be off by default")
	}
}

func TestSystemPrompt(t *testing.T) {
	agents := NewAgents(DefaultModelConfig())
	p := agents.TopicDecomposer.SystemPrompt()
	if !strings.Contains(p, "Topic Decomposer") {
		t.Errorf("system prompt missing role: %q", p)
	}
	if !strings.Contains(p, agents.TopicDecomposer.Goal) {
		t.Error("system prompt missing goal")
	}
	if !strings.Contains(p, agents.TopicDecomposer.Backstory) {
		t.Error("system prompt missing backstory")
	}
}

func TestValidateChain(t *testing.T) {
	valid := BuildChain("AI", "")
	if err := ValidateChain(valid); err != nil {
		t.Errorf("built chain should validate: %v", err)
	}

	tests := []struct {
		name  string
		tasks []TaskSpec
	}{
		{"out of range", []TaskSpec{{Name: "a", Context: []int{5}}}},
		{"negative index", []TaskSpec{{Name: "a", Context: []int{-1}}}},
		{"self dependency", []TaskSpec{{Name: "a", Context: []int{0}}}},
		{"cycle", []TaskSpec{
			{Name: "a", Context: []int{1}},
			{Name: "b", Context: []int{0}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateChain(Chain{Tasks: tt.tasks}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTopologicalOrder_LinearChain(t *testing.T) {
	c := BuildChain("AI", "")
	order, err := TopologicalOrder(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{0, 1, 2, 3, 4}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestTopologicalOrder_Branching(t *testing.T) {
	c := Chain{Tasks: []TaskSpec{
		{Name: "root"},
		{Name: "left", Context: []int{0}},
		{Name: "right", Context: []int{0}},
		{Name: "join", Context: []int{1, 2}},
	}}
	order, err := TopologicalOrder(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := make(map[int]int, len(order))
	for p, idx := range order {
		pos[idx] = p
	}
	for i, task := range c.Tasks {
		for _, dep := range task.Context {
			if pos[dep] >= pos[i] {
				t.Errorf("task %d scheduled before its dependency %d: order %v", i, dep, order)
			}
		}
	}
}
