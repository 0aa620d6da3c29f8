// Package session owns the artifact namespace of a named planning or
// execution run and derives workflow state from it.
//
// Artifacts are plain text files used as durable inter-process signals
// between the orchestrator and the agent. Nothing here takes a lock:
// exactly one orchestration process may touch a session's files at a time.
package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Review status markers. A review-type artifact's first line carries one of
// these literal tokens.
const (
	ApprovedMarker = "APPROVED"
	ReworkMarker   = "NEEDS REWORK"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// StateFileError reports an artifact read/write I/O failure. Always fatal:
// state files are local and assumed reliable, so a failure here aborts the
// run rather than being retried.
type StateFileError struct {
	Path string
	Op   string
	Err  error
}

func (e *StateFileError) Error() string {
	return fmt.Sprintf("state file %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *StateFileError) Unwrap() error {
	return e.Err
}

// Session identifies one named run and its artifact namespace.
type Session struct {
	// Name is the opaque session token (alphanumeric + underscore).
	Name string

	// Dir is the working directory holding the artifacts.
	Dir string
}

// New validates the session name and returns a Session rooted at dir.
// An empty dir means the current directory.
func New(name, dir string) (*Session, error) {
	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("session name must be alphanumeric with underscores only: %q", name)
	}
	if dir == "" {
		dir = "."
	}
	return &Session{Name: name, Dir: dir}, nil
}

// Planning artifact paths.

func (s *Session) PlanDraftPath() string {
	return s.path(fmt.Sprintf("PLAN_DRAFT_%s.md", s.Name))
}

func (s *Session) PlanReviewPath() string {
	return s.path(fmt.Sprintf("PLAN_REVIEW_%s.md", s.Name))
}

func (s *Session) PlanStuckPath() string {
	return s.path(fmt.Sprintf("PLAN_STUCK_%s.md", s.Name))
}

func (s *Session) PlanFinalPath() string {
	return s.path(fmt.Sprintf("PLAN_FINAL_%s.md", s.Name))
}

func (s *Session) PlanSummaryPath() string {
	return s.path(fmt.Sprintf("PLAN_SUMMARY_%s.json", s.Name))
}

// Execution artifact paths, per step number.

func (s *Session) WorkPath(stepNum int) string {
	return s.path(fmt.Sprintf("WORK_%s_step_%d.md", s.Name, stepNum))
}

func (s *Session) ReviewPath(stepNum int) string {
	return s.path(fmt.Sprintf("REVIEW_%s_step_%d.md", s.Name, stepNum))
}

func (s *Session) ExecutionSummaryPath() string {
	return s.path(fmt.Sprintf("EXECUTION_SUMMARY_%s.json", s.Name))
}

func (s *Session) path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Exists reports whether the artifact at path exists.
func (s *Session) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadArtifact reads an artifact in full.
func (s *Session) ReadArtifact(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &StateFileError{Path: path, Op: "read", Err: err}
	}
	return string(data), nil
}

// WriteArtifact overwrites an artifact. Plain overwrite, no atomic rename:
// the single-writer contract makes that sufficient.
func (s *Session) WriteArtifact(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return &StateFileError{Path: path, Op: "write", Err: err}
	}
	return nil
}

// FirstLine reads the first line of an artifact. Existence must already have
// been established; a failure here is a fatal state-file error.
func (s *Session) FirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &StateFileError{Path: path, Op: "read", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", &StateFileError{Path: path, Op: "read", Err: err}
	}
	return "", nil // empty file
}
