// planrun runs the execution workflow: a worker/reviewer cycle that carries
// an approved plan's steps through implementation and verification.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"planloop/internal/cli"
	"planloop/pkg/metrics"
	"planloop/pkg/orch"
	"planloop/pkg/persistence"
	"planloop/pkg/session"
)

func main() {
	fs := flag.NewFlagSet("planrun", flag.ExitOnError)
	flags := cli.Register(fs)

	planName := fs.String("plan-name", "", "Session name of the plan to execute")
	_ = fs.Parse(os.Args[1:])

	if flags.ShowVersion {
		cli.PrintVersion("planrun")
		os.Exit(0)
	}

	os.Exit(run(fs, flags, *planName))
}

func run(fs *flag.FlagSet, flags *cli.Flags, planName string) int {
	cfg, err := flags.BuildConfig(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return orch.ExitError
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return orch.ExitError
	}
	cli.WarnIfNoTTY(cfg)

	sess, err := session.New(planName, cfg.WorkDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid plan name: %v\n", err)
		return orch.ExitError
	}

	rec := metrics.NewRecorder(persistence.WorkflowExecution, sess.Name)
	execution, err := orch.NewExecution(cfg, sess)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return orch.ExitCodeForError(err)
	}
	execution.WithRecorder(rec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := execution.Run(ctx)
	cli.Finalize(cfg, rec, execution.Summary.RunRecord(sess.Name, code))
	return code
}
