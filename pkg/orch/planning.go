package orch

import (
	"context"
	"fmt"
	"time"

	"planloop/pkg/config"
	"planloop/pkg/exec"
	"planloop/pkg/logx"
	"planloop/pkg/metrics"
	"planloop/pkg/persistence"
	"planloop/pkg/retry"
	"planloop/pkg/session"
	"planloop/pkg/templates"
)

// Planning drives the planner/reviewer cycle until a final plan exists, the
// planner declares itself stuck, or the invocation budget runs out.
type Planning struct {
	cfg      *config.Config
	sess     *session.Session
	agent    *exec.AgentCLI
	renderer *templates.Renderer
	recorder *metrics.Recorder
	logger   *logx.Logger

	problemStatement string

	// Summary accumulates counters as the run progresses and is finalized
	// exactly once, whatever path terminates the loop.
	Summary PlanningSummary
}

// NewPlanning builds a planning orchestrator for a validated config.
func NewPlanning(cfg *config.Config, sess *session.Session, problemStatement string) (*Planning, error) {
	if problemStatement == "" {
		return nil, config.Validationf("problem statement is required")
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}

	agent := exec.NewAgentCLI(cfg.CLIPath, cfg.Timeout())
	agent.Profile = cfg.Profile
	agent.TrustTools = cfg.TrustTools
	agent.TrustAllTools = cfg.TrustAllTools
	agent.WorkDir = cfg.WorkDir

	return &Planning{
		cfg:              cfg,
		sess:             sess,
		agent:            agent,
		renderer:         renderer,
		logger:           logx.NewLogger("planning"),
		problemStatement: problemStatement,
		Summary:          PlanningSummary{RunID: persistence.NewRunID()},
	}, nil
}

// WithRecorder attaches a metrics recorder. Nil disables metrics.
func (p *Planning) WithRecorder(r *metrics.Recorder) *Planning {
	p.recorder = r
	return p
}

// Run executes the planning loop to termination and returns the process exit
// code. The loop is stateless between iterations: every pass re-derives the
// plan state from the files on disk, so a killed run picks up where it left
// off when restarted.
func (p *Planning) Run(ctx context.Context) int {
	p.Summary.StartTime = time.Now().UTC()
	p.logger.Info("Starting planning workflow: session=%s, budget=%d", p.sess.Name, p.cfg.MaxAgentInvocations)

	for {
		state := session.DetectPlanState(p.sess)
		p.Summary.FinalState = string(state)
		p.logger.Info("=== State: %s | Planner: %d | Reviewer: %d | Cycles: %d ===",
			state, p.Summary.PlannerInvocations, p.Summary.ReviewerInvocations, p.Summary.RevisionCycles)

		// Terminal states are honored before the budget check, so an approval
		// produced by the final budgeted invocation still succeeds.
		switch state {
		case session.PlanDone:
			p.celebrate()
			return p.finish(OutcomeSuccess, ExitSuccess)

		case session.PlanStuck:
			p.reportStuck()
			return p.finish(OutcomeStuck, ExitBlocked)
		}

		if p.Summary.PlannerInvocations+p.Summary.ReviewerInvocations >= p.cfg.MaxAgentInvocations {
			break
		}

		switch state {
		case session.PlanInitial:
			if err := p.invokePlanner(ctx, ""); err != nil {
				return p.fail(err)
			}

		case session.PlanDraftReady:
			if err := p.invokeReviewer(ctx); err != nil {
				return p.fail(err)
			}

		case session.PlanReviewReady:
			// Each review artifact means the reviewer sent the draft back
			// for another pass.
			p.Summary.RevisionCycles++
			if p.recorder != nil {
				p.recorder.RevisionCycle()
			}
			feedback, err := p.sess.ReadArtifact(p.sess.PlanReviewPath())
			if err != nil {
				return p.fail(err)
			}
			if err := p.invokePlanner(ctx, feedback); err != nil {
				return p.fail(err)
			}
		}
	}

	p.logger.Error("Invocation budget exhausted: %d invocations used without reaching a final plan",
		p.cfg.MaxAgentInvocations)
	return p.finish(OutcomeMaxIterations, ExitMaxIterations)
}

// invokePlanner runs the planner role with retries. The review feedback is
// read for fail-fast validation; the prompt directs the agent at the review
// artifact itself rather than inlining it.
func (p *Planning) invokePlanner(ctx context.Context, feedback string) error {
	prompt, err := p.renderer.Render(templates.PlannerTemplate, &templates.Data{
		PlanName:         p.sess.Name,
		ProblemStatement: p.problemStatement,
		ReviewFeedback:   feedback,
	})
	if err != nil {
		return err
	}
	return p.invoke(ctx, "planner", prompt, &p.Summary.PlannerInvocations)
}

func (p *Planning) invokeReviewer(ctx context.Context) error {
	prompt, err := p.renderer.Render(templates.PlanReviewerTemplate, &templates.Data{
		PlanName:         p.sess.Name,
		ProblemStatement: p.problemStatement,
	})
	if err != nil {
		return err
	}
	return p.invoke(ctx, "reviewer", prompt, &p.Summary.ReviewerInvocations)
}

// invoke runs one role invocation under the retry policy. The counter tracks
// attempts actually made, not logical invocations: a run that retried twice
// consumed three slots of the budget.
func (p *Planning) invoke(ctx context.Context, role, prompt string, counter *int) error {
	policy := retry.Policy{
		MaxAttempts: p.cfg.MaxRetries,
		OnAttempt: func(attempt int) {
			*counter++
			if p.recorder != nil {
				p.recorder.Invocation(role)
			}
		},
		Logger: p.logger,
	}
	attempt := 0
	return policy.Do(func(final bool) error {
		attempt++
		err := p.agent.Invoke(ctx, prompt, exec.InvokeOpts{
			Role:         role,
			Attempt:      attempt,
			FinalAttempt: final,
			Interactive:  p.cfg.InterveneOnFinalRetry,
		})
		if err != nil && exec.IsTimeout(err) && p.recorder != nil {
			p.recorder.Timeout(role)
		}
		return err
	})
}

func (p *Planning) fail(err error) int {
	p.logger.Error("Planning workflow failed: %v", err)
	code := ExitCodeForError(err)
	outcome := OutcomeFailure
	if code == ExitBlocked {
		outcome = OutcomeBlocked
	}
	return p.finish(outcome, code)
}

// finish closes out the summary, prints it, and writes the summary artifact.
func (p *Planning) finish(outcome string, exitCode int) int {
	p.Summary.EndTime = time.Now().UTC()
	p.Summary.Outcome = outcome
	if p.recorder != nil {
		p.recorder.SetRunDuration(p.Summary.Duration().Seconds())
	}
	fmt.Println(p.Summary.String())
	writeSummary(p.sess, p.sess.PlanSummaryPath(), &p.Summary, p.logger)
	return exitCode
}

func (p *Planning) celebrate() {
	fmt.Println()
	fmt.Println("🎉 ═══════════════════════════════════════════════════")
	fmt.Printf("   Plan approved! Final plan: %s\n", p.sess.PlanFinalPath())
	fmt.Println("   ═══════════════════════════════════════════════════")
}

func (p *Planning) reportStuck() {
	fmt.Println()
	fmt.Println("⚠ ═══════════════════════════════════════════════════")
	fmt.Printf("  The planner needs more information: %s\n", p.sess.PlanStuckPath())
	fmt.Println("  Answer the questions in that file, delete it, and")
	fmt.Println("  re-run to resume planning.")
	fmt.Println("  ═══════════════════════════════════════════════════")
}
