// Package cli carries the flag surface shared by the plangen and planrun
// binaries: flag registration, config-file merging, TTY checks, and the
// best-effort metrics/history finalization at process exit.
package cli

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"planloop/pkg/config"
	"planloop/pkg/logx"
	"planloop/pkg/metrics"
	"planloop/pkg/persistence"
	"planloop/pkg/version"
)

// Flags holds the common flag variables. Zero values mean "not set"; whether
// a flag actually overrides the config file is decided by flag.FlagSet.Visit,
// so an explicit -max-retries=3 still wins over a config file saying 5.
type Flags struct {
	ConfigPath          string
	CLIPath             string
	Profile             string
	TrustTools          string
	TrustAllTools       bool
	MaxAgentInvocations int
	MaxRetries          int
	TimeoutSeconds      int
	Intervene           bool
	WorkDir             string
	HistoryDB           string
	MetricsDir          string
	ShowVersion         bool
}

// Register installs the shared flags on fs.
func Register(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&f.CLIPath, "cli-path", "", "Path to the agent CLI executable")
	fs.StringVar(&f.Profile, "agent", "", "Agent profile passed to the CLI")
	fs.StringVar(&f.TrustTools, "trust-tools", "", "Comma-separated tool allowlist for the agent")
	fs.BoolVar(&f.TrustAllTools, "trust-all-tools", false, "Trust all agent tools without confirmation")
	fs.IntVar(&f.MaxAgentInvocations, "max-agent-invocations", 0, "Total agent invocation budget")
	fs.IntVar(&f.MaxRetries, "max-retries", 0, "Attempts allowed per agent invocation")
	fs.IntVar(&f.TimeoutSeconds, "timeout", 0, "Per-invocation timeout in seconds")
	fs.BoolVar(&f.Intervene, "intervene-on-final-retry", false, "Run the final retry attempt interactively")
	fs.StringVar(&f.WorkDir, "workdir", "", "Session working directory")
	fs.StringVar(&f.HistoryDB, "history-db", "", "SQLite run-history database path (empty disables)")
	fs.StringVar(&f.MetricsDir, "metrics-dir", "", "Prometheus textfile-collector directory (empty disables)")
	fs.BoolVar(&f.ShowVersion, "version", false, "Show version information")
	return f
}

// BuildConfig loads the config file (if any) and layers the explicitly-set
// flags on top.
func (f *Flags) BuildConfig(fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if set["cli-path"] {
		cfg.CLIPath = f.CLIPath
	}
	if set["agent"] {
		cfg.Profile = f.Profile
	}
	if set["trust-tools"] {
		cfg.TrustTools = f.TrustTools
	}
	if set["trust-all-tools"] {
		cfg.TrustAllTools = f.TrustAllTools
	}
	if set["max-agent-invocations"] {
		cfg.MaxAgentInvocations = f.MaxAgentInvocations
	}
	if set["max-retries"] {
		cfg.MaxRetries = f.MaxRetries
	}
	if set["timeout"] {
		cfg.TimeoutSeconds = f.TimeoutSeconds
	}
	if set["intervene-on-final-retry"] {
		cfg.InterveneOnFinalRetry = f.Intervene
	}
	if set["workdir"] {
		cfg.WorkDir = f.WorkDir
	}
	if set["history-db"] {
		cfg.HistoryDB = f.HistoryDB
	}
	if set["metrics-dir"] {
		cfg.MetricsDir = f.MetricsDir
	}
	return cfg, nil
}

// WarnIfNoTTY warns when interactive intervention is requested but stdin is
// not a terminal: the final-retry handoff would hang waiting for input that
// can never arrive.
func WarnIfNoTTY(cfg *config.Config) {
	if cfg.InterveneOnFinalRetry && !term.IsTerminal(int(os.Stdin.Fd())) {
		logx.Warnf("intervene-on-final-retry is set but stdin is not a TTY; interactive handoff will not work")
	}
}

// PrintVersion prints build information for the named binary.
func PrintVersion(binary string) {
	fmt.Printf("%s %s\n", binary, version.Version)
	fmt.Printf("  commit: %s\n", version.Commit)
	fmt.Printf("  built:  %s\n", version.Date)
}

// Finalize exports metrics and records the run in the history database.
// Both are best-effort: the run's exit code is already decided and operator
// telemetry must never change it.
func Finalize(cfg *config.Config, rec *metrics.Recorder, record *persistence.RunRecord) {
	if cfg.MetricsDir != "" {
		if err := rec.WriteTextfile(cfg.MetricsDir); err != nil {
			logx.Warnf("failed to export metrics: %v", err)
		}
	}

	if cfg.HistoryDB != "" {
		store, err := persistence.Open(cfg.HistoryDB)
		if err != nil {
			logx.Warnf("failed to open history database: %v", err)
			return
		}
		defer store.Close()
		if err := store.RecordRun(record); err != nil {
			logx.Warnf("failed to record run history: %v", err)
		}
	}
}
