// plangen runs the planning workflow: a planner/reviewer cycle that turns a
// problem statement into an approved decomposition plan.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"planloop/internal/cli"
	"planloop/pkg/config"
	"planloop/pkg/metrics"
	"planloop/pkg/orch"
	"planloop/pkg/persistence"
	"planloop/pkg/session"
)

func main() {
	fs := flag.NewFlagSet("plangen", flag.ExitOnError)
	flags := cli.Register(fs)

	var (
		planName    = fs.String("plan-name", "", "Session name (alphanumeric and underscores)")
		problem     = fs.String("problem-statement", "", "Problem statement text")
		problemFile = fs.String("problem-statement-file", "", "Read the problem statement from a file")
	)
	_ = fs.Parse(os.Args[1:])

	if flags.ShowVersion {
		cli.PrintVersion("plangen")
		os.Exit(0)
	}

	os.Exit(run(fs, flags, *planName, *problem, *problemFile))
}

// run contains the main logic and returns an exit code so defers execute
// before os.Exit.
func run(fs *flag.FlagSet, flags *cli.Flags, planName, problem, problemFile string) int {
	cfg, err := flags.BuildConfig(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return orch.ExitError
	}

	statement, err := resolveProblemStatement(problem, problemFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
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

	rec := metrics.NewRecorder(persistence.WorkflowPlanning, sess.Name)
	planning, err := orch.NewPlanning(cfg, sess, statement)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return orch.ExitCodeForError(err)
	}
	planning.WithRecorder(rec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := planning.Run(ctx)
	cli.Finalize(cfg, rec, planning.Summary.RunRecord(sess.Name, code))
	return code
}

// resolveProblemStatement picks between the inline flag and the file flag.
// Exactly one must be provided.
func resolveProblemStatement(inline, file string) (string, error) {
	switch {
	case inline != "" && file != "":
		return "", config.Validationf("use either -problem-statement or -problem-statement-file, not both")
	case inline != "":
		return inline, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", config.Validationf("failed to read problem statement file: %v", err)
		}
		statement := strings.TrimSpace(string(data))
		if statement == "" {
			return "", config.Validationf("problem statement file is empty: %s", file)
		}
		return statement, nil
	default:
		return "", config.Validationf("a problem statement is required (-problem-statement or -problem-statement-file)")
	}
}
