package orch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"planloop/pkg/config"
	"planloop/pkg/exec"
	"planloop/pkg/logx"
	"planloop/pkg/metrics"
	"planloop/pkg/persistence"
	"planloop/pkg/plan"
	"planloop/pkg/retry"
	"planloop/pkg/session"
	"planloop/pkg/templates"
)

// Execution drives the worker/reviewer cycle over an approved plan's steps.
// Each step runs until its review artifact carries the approved marker or the
// per-step invocation budget runs out.
type Execution struct {
	cfg      *config.Config
	sess     *session.Session
	agent    *exec.AgentCLI
	renderer *templates.Renderer
	recorder *metrics.Recorder
	logger   *logx.Logger

	Summary ExecutionSummary
}

// NewExecution builds an execution orchestrator for a validated config.
func NewExecution(cfg *config.Config, sess *session.Session) (*Execution, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}

	agent := exec.NewAgentCLI(cfg.CLIPath, cfg.Timeout())
	agent.Profile = cfg.Profile
	agent.TrustTools = cfg.TrustTools
	agent.TrustAllTools = cfg.TrustAllTools
	agent.WorkDir = cfg.WorkDir

	return &Execution{
		cfg:      cfg,
		sess:     sess,
		agent:    agent,
		renderer: renderer,
		logger:   logx.NewLogger("execution"),
		Summary:  ExecutionSummary{RunID: persistence.NewRunID()},
	}, nil
}

// WithRecorder attaches a metrics recorder. Nil disables metrics.
func (e *Execution) WithRecorder(r *metrics.Recorder) *Execution {
	e.recorder = r
	return e
}

// Run parses the plan and executes its steps in order, returning the process
// exit code. Steps already approved on disk are skipped, which makes a
// restarted run resume at the first unfinished step.
func (e *Execution) Run(ctx context.Context) int {
	e.Summary.StartTime = time.Now().UTC()

	content, err := e.sess.ReadArtifact(e.sess.PlanDraftPath())
	if err != nil {
		return e.fail(err)
	}
	steps, err := plan.Parse(content)
	if err != nil {
		return e.fail(err)
	}
	if len(steps) == 0 {
		return e.fail(logx.Errorf("no step blocks found in %s", e.sess.PlanDraftPath()))
	}

	e.logger.Info("Starting execution workflow: session=%s, steps=%d, budget=%d per step",
		e.sess.Name, len(steps), e.cfg.MaxAgentInvocations)

	for i, step := range steps {
		e.printStepBanner(step.Num, i+1, len(steps))
		if code, terminal := e.runStep(ctx, step); terminal {
			return code
		}
	}

	fmt.Println()
	fmt.Println("🎉 ═══════════════════════════════════════════════════")
	fmt.Printf("   All %d steps approved!\n", len(steps))
	fmt.Println("   ═══════════════════════════════════════════════════")
	e.Summary.FinalState = string(session.StepApproved)
	return e.finish(OutcomeSuccess, ExitSuccess)
}

// runStep runs one step's improve-and-verify cycle. The bool reports whether
// the run terminates here; false means the step was approved and execution
// advances.
func (e *Execution) runStep(ctx context.Context, step plan.Step) (int, bool) {
	// lastRole lets a just-succeeded worker skip redundant state detection:
	// its work artifact is known to exist, so the next pass is forced to
	// work_done.
	lastRole := ""

	for iteration := 0; iteration < e.cfg.MaxAgentInvocations; iteration++ {
		var state session.StepState
		if lastRole == "worker" {
			state = session.StepWorkDone
			e.logger.Info("State: %s [forced after worker success]", state)
		} else {
			var err error
			state, err = session.DetectStepState(e.sess, step.Num)
			if err != nil {
				return e.fail(err), true
			}
		}
		e.Summary.FinalState = string(state)
		e.logger.Info("=== Step %d | State: %s | Worker: %d | Reviewer: %d | Cycles: %d ===",
			step.Num, state, e.Summary.WorkerInvocations, e.Summary.ReviewerInvocations, e.Summary.RevisionCycles)

		switch state {
		case session.StepApproved:
			e.Summary.StepsCompleted++
			if e.recorder != nil {
				e.recorder.StepCompleted()
			}
			e.logger.Info("Step %d approved", step.Num)
			return 0, false

		case session.StepInitial, session.StepNeedsRework:
			feedback := ""
			if state == session.StepNeedsRework {
				e.Summary.RevisionCycles++
				if e.recorder != nil {
					e.recorder.RevisionCycle()
				}
				var err error
				feedback, err = e.readFeedback(step.Num)
				if err != nil {
					return e.fail(err), true
				}
			}
			role, err := e.invokeWorker(ctx, step, feedback)
			if err != nil {
				return e.fail(err), true
			}
			lastRole = role

		case session.StepWorkDone:
			role, err := e.invokeStepReviewer(ctx, step)
			if err != nil {
				return e.fail(err), true
			}
			lastRole = role

		case session.StepReviewDone:
			// Review exists but carries no status marker. Another reviewer
			// pass overwrites it; the budget bounds the loop.
			e.logger.Warn("Step %d review has no status marker, re-running reviewer", step.Num)
			lastRole = ""
		}
	}

	e.logger.Error("Invocation budget exhausted on step %d: %d iterations without approval",
		step.Num, e.cfg.MaxAgentInvocations)
	return e.finish(OutcomeMaxInvocations, ExitMaxIterations), true
}

// invokeWorker runs the worker role. On timeout it writes a fallback work
// artifact instead of failing: the next iteration sees work_done and sends
// the reviewer in, which recovers whatever partial work landed on disk.
// It returns the lastRole value for the next iteration.
func (e *Execution) invokeWorker(ctx context.Context, step plan.Step, feedback string) (string, error) {
	prompt, err := e.renderer.Render(templates.WorkerTemplate, &templates.Data{
		PlanName:        e.sess.Name,
		StepNum:         step.Num,
		StepDescription: step.Description,
		ReviewFeedback:  feedback,
	})
	if err != nil {
		return "", err
	}

	err = e.invoke(ctx, "worker", prompt, &e.Summary.WorkerInvocations)
	if err == nil {
		return "worker", nil
	}
	if exec.IsTimeout(err) {
		e.logger.Warn("Worker timed out on step %d, writing fallback work artifact", step.Num)
		fallback, rerr := e.renderer.Render(templates.WorkerTimeoutTemplate, &templates.Data{
			StepDescription: step.Description,
			TimeoutSeconds:  e.cfg.TimeoutSeconds,
		})
		if rerr != nil {
			return "", rerr
		}
		if werr := e.sess.WriteArtifact(e.sess.WorkPath(step.Num), fallback); werr != nil {
			return "", werr
		}
		return "", nil
	}
	return "", err
}

// invokeStepReviewer runs the reviewer role. On timeout it writes a fallback
// review carrying the rework marker, which routes the step back to the worker.
func (e *Execution) invokeStepReviewer(ctx context.Context, step plan.Step) (string, error) {
	workContent, err := e.sess.ReadArtifact(e.sess.WorkPath(step.Num))
	if err != nil {
		return "", err
	}
	prompt, err := e.renderer.Render(templates.StepReviewerTemplate, &templates.Data{
		PlanName:        e.sess.Name,
		StepNum:         step.Num,
		StepDescription: step.Description,
		WorkContent:     workContent,
	})
	if err != nil {
		return "", err
	}

	err = e.invoke(ctx, "reviewer", prompt, &e.Summary.ReviewerInvocations)
	if err == nil {
		return "reviewer", nil
	}
	if exec.IsTimeout(err) {
		e.logger.Warn("Reviewer timed out on step %d, writing fallback rework review", step.Num)
		fallback, rerr := e.renderer.Render(templates.ReviewerTimeoutTemplate, &templates.Data{
			PlanName:       e.sess.Name,
			StepNum:        step.Num,
			TimeoutSeconds: e.cfg.TimeoutSeconds,
		})
		if rerr != nil {
			return "", rerr
		}
		if werr := e.sess.WriteArtifact(e.sess.ReviewPath(step.Num), fallback); werr != nil {
			return "", werr
		}
		return "", nil
	}
	return "", err
}

// invoke runs one role invocation under the retry policy. Timeouts stop the
// retry loop immediately: the caller converts them to fallback artifacts
// rather than burning the remaining attempts on a slow agent.
func (e *Execution) invoke(ctx context.Context, role, prompt string, counter *int) error {
	policy := retry.Policy{
		MaxAttempts: e.cfg.MaxRetries,
		OnAttempt: func(attempt int) {
			*counter++
			if e.recorder != nil {
				e.recorder.Invocation(role)
			}
		},
		RetryIf: func(err error) bool { return !exec.IsTimeout(err) },
		Logger:  e.logger,
	}
	attempt := 0
	return policy.Do(func(final bool) error {
		attempt++
		err := e.agent.Invoke(ctx, prompt, exec.InvokeOpts{
			Role:         role,
			Attempt:      attempt,
			FinalAttempt: final,
			Interactive:  e.cfg.InterveneOnFinalRetry,
		})
		if err != nil && exec.IsTimeout(err) && e.recorder != nil {
			e.recorder.Timeout(role)
		}
		return err
	})
}

// readFeedback loads the step's review and strips the marker line, leaving
// only the reviewer's prose for the worker prompt.
func (e *Execution) readFeedback(stepNum int) (string, error) {
	content, err := e.sess.ReadArtifact(e.sess.ReviewPath(stepNum))
	if err != nil {
		return "", err
	}
	lines := strings.SplitN(content, "\n", 2)
	if strings.Contains(lines[0], session.ReworkMarker) && len(lines) == 2 {
		return strings.TrimSpace(lines[1]), nil
	}
	return strings.TrimSpace(content), nil
}

func (e *Execution) fail(err error) int {
	e.logger.Error("Execution workflow failed: %v", err)
	code := ExitCodeForError(err)
	outcome := OutcomeFailure
	if code == ExitBlocked {
		outcome = OutcomeBlocked
	}
	return e.finish(outcome, code)
}

func (e *Execution) finish(outcome string, exitCode int) int {
	e.Summary.EndTime = time.Now().UTC()
	e.Summary.Outcome = outcome
	if e.recorder != nil {
		e.recorder.SetRunDuration(e.Summary.Duration().Seconds())
	}
	fmt.Println(e.Summary.String())
	writeSummary(e.sess, e.sess.ExecutionSummaryPath(), &e.Summary, e.logger)
	return exitCode
}

func (e *Execution) printStepBanner(stepNum, index, total int) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Printf("  STEP %d  (%d of %d)\n", stepNum, index, total)
	fmt.Println("═══════════════════════════════════════════════════")
}
