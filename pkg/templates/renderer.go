// Package templates renders the role prompts and fallback artifacts from
// embedded markdown templates.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// Template names a prompt template.
type Template string

const (
	// PlannerTemplate instructs the planner to decompose a problem into steps.
	PlannerTemplate Template = "planner.tpl.md"
	// PlanReviewerTemplate instructs the reviewer to judge a plan draft.
	PlanReviewerTemplate Template = "plan_reviewer.tpl.md"
	// WorkerTemplate instructs the worker to implement one step.
	WorkerTemplate Template = "worker.tpl.md"
	// StepReviewerTemplate instructs the reviewer to judge one step's work.
	StepReviewerTemplate Template = "step_reviewer.tpl.md"
	// WorkerTimeoutTemplate is the fallback work artifact written when the
	// worker times out.
	WorkerTimeoutTemplate Template = "worker_timeout.tpl.md"
	// ReviewerTimeoutTemplate is the fallback review artifact written when
	// the reviewer times out. Its first line carries the rework marker.
	ReviewerTimeoutTemplate Template = "reviewer_timeout.tpl.md"
)

// Data holds the fields the templates can reference.
type Data struct {
	PlanName         string
	ProblemStatement string
	StepNum          int
	StepDescription  string
	WorkContent      string
	ReviewFeedback   string
	TimeoutSeconds   int
}

// Renderer renders embedded templates. Templates are parsed once at
// construction; a parse failure is a programming error surfaced immediately.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "*.tpl.md")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render executes the named template with the given data.
func (r *Renderer) Render(name Template, data *Data) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, string(name), data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
