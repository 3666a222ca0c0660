package graph

import (
	"fmt"

	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
	"github.com/gradeforge/gradeforge/internal/pipeline"
)

// Step is one leg of a derived plan: a stage transition plus the
// config to decode and pass it.
type Step struct {
	InTag, OutTag, Config string
}

// Plan walks edges from startTag following the unique outgoing edge at
// each step until a tag has no outgoing edge, returning the ordered
// step list. It fails with TerminalMismatch if the final tag is not
// pipeline.GradingTag.
func Plan(edges []Edge, startTag string) ([]Step, error) {
	byIn := make(map[string]Edge, len(edges))
	for _, e := range edges {
		byIn[e.InTag] = e
	}

	var steps []Step
	current := startTag
	seen := make(map[string]bool)
	for {
		e, ok := byIn[current]
		if !ok {
			break
		}
		if seen[current] {
			// The admission check guarantees acyclicity; a cycle here
			// would mean the stored edge set was corrupted out of band.
			return nil, gferrors.NewValidationError(current, "", gferrors.CycleDetected)
		}
		seen[current] = true
		steps = append(steps, Step{InTag: e.InTag, OutTag: e.OutTag, Config: e.Config})
		current = e.OutTag
	}

	if current != pipeline.GradingTag {
		return nil, gferrors.NewValidationError(
			fmt.Sprintf("plan from %s terminates at %s, want %s", startTag, current, pipeline.GradingTag),
			"", gferrors.TerminalMismatch)
	}
	return steps, nil
}
