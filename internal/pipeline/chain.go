package pipeline

import (
	"fmt"
	"strings"
)

// Agents holds the five fixed role definitions bound to one model configuration.
type Agents struct {
	TopicDecomposer      AgentSpec
	InfoCollector        AgentSpec
	ReportWriter         AgentSpec
	PresentationDesigner AgentSpec
	PPTContentWriter     AgentSpec
}

// NewAgents constructs the fixed agent set for the given model configuration.
func NewAgents(model ModelConfig) Agents {
	return Agents{
		TopicDecomposer: AgentSpec{
			Role: "Topic Decomposer",
			Goal: "Break a broad research topic into 4–6 meaningful subtopics or questions " +
				"that a student should explore.",
			Backstory: "You are an academic mentor who helps students break down complex " +
				"research topics into smaller, understandable parts.",
			Model: model,
		},
		InfoCollector: AgentSpec{
			Role:      "Information Collector",
			Goal:      "For each subtopic, gather clear explanations, key methods, pros/cons.",
			Backstory: "You are a research assistant for a student and summarize research concepts.",
			Model:     model,
		},
		ReportWriter: AgentSpec{
			Role:      "Report Writer",
			Goal:      "Combine all collected information into a mini research report.",
			Backstory: "You write exam-ready mini project reports for B.Tech students.",
			Model:     model,
		},
		PresentationDesigner: AgentSpec{
			Role: "Presentation Designer",
			Goal: "Convert the written report into slide-wise bullet points " +
				"for a short technical presentation.",
			Backstory: "You create clean and clear technical PPT outlines.",
			Model:     model,
		},
		PPTContentWriter: AgentSpec{
			Role: "PPT Content Writer",
			Goal: "Expand the PPT outline into full slide content for a presentation session.",
			Backstory: "You create complete slide text based on a PPT outline, including " +
				"slide headings, explanations, bullet points, examples, and notes.",
			Model: model,
		},
	}
}

// SystemPrompt renders the agent's role framing for the model.
func (a AgentSpec) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s.\n\n", a.Role)
	fmt.Fprintf(&b, "## Goal\n\n%s\n\n", a.Goal)
	fmt.Fprintf(&b, "## Backstory\n\n%s\n", a.Backstory)
	return b.String()
}

// BuildChain constructs the five-task chain for a topic using the default
// model configuration. Pure string templating; construction cannot fail.
func BuildChain(topic, instructions string) Chain {
	return BuildChainWithModel(DefaultModelConfig(), topic, instructions)
}

// BuildChainWithModel constructs the five-task chain bound to the given
// model configuration. The topic is embedded verbatim; instructions are
// normalized into ExtraNote but not interpolated into task descriptions.
func BuildChainWithModel(model ModelConfig, topic, instructions string) Chain {
	agents := NewAgents(model)

	extraNote := strings.TrimSpace(instructions)
	if extraNote == "" {
		extraNote = "No extra instructions."
	}

	tasks := []TaskSpec{
		{
			Name: StageDecomposition,
			Description: fmt.Sprintf(
				"Break the topic \"%s\" into 4–6 subtopics with explanations.\n\n# Topic Decomposition",
				topic,
			),
			ExpectedOutput: "A list of 4-6 subtopics with a short (1-2 sentence) explanation for each, in markdown.",
			Agent:          agents.TopicDecomposer,
		},
		{
			Name:           StageCollection,
			Description:    "Using 'Topic Decomposition', provide definitions, methods, pros/cons.\n\n# Collected Information",
			ExpectedOutput: "For each subtopic, provide a definition, key methods, and pros/cons in structured markdown (subheadings).",
			Agent:          agents.InfoCollector,
			Context:        []int{0},
		},
		{
			Name:           StageReport,
			Description:    fmt.Sprintf("Write a complete mini-report for the topic: \"%s\".", topic),
			ExpectedOutput: "A cohesive mini-report in markdown: introduction, sections for each subtopic, methods, pros/cons, conclusion, and references.",
			Agent:          agents.ReportWriter,
			Context:        []int{0, 1},
		},
		{
			Name: StageOutline,
			Description: "Convert the full mini-report into a slide-wise outline (8–10 slides) with titles and bullet points.\n\n" +
				"Format:\n# Presentation Outline\n## Slide 1: ...\n- Bullet 1\n- Bullet 2",
			ExpectedOutput: "An 8-10 slide outline in markdown with slide titles and 3-5 bullet points per slide.",
			Agent:          agents.PresentationDesigner,
			Context:        []int{2},
		},
		{
			Name: StageFullContent,
			Description: "Using the 'Presentation Outline', expand each slide into complete content.\n\n" +
				"Format:\n# Full PPT Content\n\n## Slide 1: <Title>\n- Full sentences explaining the slide\n" +
				"- Bullet points with meaningful descriptions\n- Notes for presenter (if needed)\n\n## Slide 2: <Title>\n- ...\n\n" +
				"Ensure content is clear, student-friendly, and presentation-ready.",
			ExpectedOutput: "Full slide content for each slide: title, paragraph explanation, bullet details, and optional presenter notes in markdown.",
			Agent:          agents.PPTContentWriter,
			Context:        []int{3, 2},
		},
	}

	return Chain{
		Topic:        topic,
		Instructions: instructions,
		ExtraNote:    extraNote,
		Tasks:        tasks,
	}
}
