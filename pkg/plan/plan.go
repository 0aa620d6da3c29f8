// Package plan parses plan documents into ordered, validated step lists.
package plan

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"planloop/pkg/logx"
)

// Step is one executable unit of a plan. Immutable once parsed.
type Step struct {
	// Num is the 1-based step number from the block heading.
	Num int

	// Description is the full block body, including the criteria sections.
	Description string

	// SuccessCriteria is the extracted Success Criteria section, if present.
	SuccessCriteria string
}

// Step blocks are delimited markdown with the numbered heading inside the
// block. The Microquest spelling is a legacy heading variant still accepted.
var blockRe = regexp.MustCompile(`(?is)---STEP_BLOCK---\s*###\s*(?:step|microquest)\s*(\d+):[^\n]*\n(.*?)---END_STEP_BLOCK---`)

var criteriaHeadingRe = regexp.MustCompile(`(?i)\*\*Success Criteria\*\*:\s*`)

var log = logx.NewLogger("plan")

// Parse extracts step blocks from plan text. Steps are returned sorted by
// ascending step number regardless of their order in the source. Duplicate
// or non-sequential numbering is a fatal input error. No blocks at all
// yields an empty slice; callers decide whether that is fatal.
func Parse(content string) ([]Step, error) {
	matches := blockRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		log.Warn("No step blocks found in plan")
		return nil, nil
	}

	steps := make([]Step, 0, len(matches))
	seen := make(map[int]bool, len(matches))

	for _, m := range matches {
		num, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid step number %q: %w", m[1], err)
		}
		if seen[num] {
			return nil, fmt.Errorf("duplicate step number %d found", num)
		}
		seen[num] = true

		body := strings.TrimSpace(m[2])
		steps = append(steps, Step{
			Num:             num,
			Description:     body,
			SuccessCriteria: extractSuccessCriteria(body),
		})
	}

	if err := checkSequential(steps); err != nil {
		return nil, err
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Num < steps[j].Num })
	log.Info("Parsed %d steps from plan", len(steps))
	return steps, nil
}

// checkSequential requires steps numbered 1..n with no gaps, and reports the
// missing numbers when they are not.
func checkSequential(steps []Step) error {
	present := make(map[int]bool, len(steps))
	for _, s := range steps {
		present[s.Num] = true
	}

	var missing []int
	for n := 1; n <= len(steps); n++ {
		if !present[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("non-sequential step numbers: missing steps %v", missing)
	}
	return nil
}

// extractSuccessCriteria pulls the Success Criteria section out of a step
// body: everything from the heading to the next bold field heading.
func extractSuccessCriteria(body string) string {
	loc := criteriaHeadingRe.FindStringIndex(body)
	if loc == nil {
		return ""
	}
	rest := body[loc[1]:]
	if end := strings.Index(rest, "**"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
