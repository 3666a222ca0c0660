// Package graph implements the Enabled Edge admission check (cycle
// detection plus the at-most-one-outgoing-edge invariant) and the
// Planner that walks an accepted edge set into an ordered stage list.
package graph

import (
	"fmt"
	"sort"

	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

// Edge is a persisted Enabled Edge: a directed transition from one
// Pipeline Value tag to another, carrying opaque stage config.
type Edge struct {
	InTag, OutTag, Config string
}

// ValidateAdmission checks whether candidate may be added to existing
// without violating either invariant: at most one outgoing edge per
// input tag, and acyclicity over the whole tag graph.
// It returns AmbiguousEdge or CycleDetected on violation, nil
// otherwise. It does not mutate existing.
func ValidateAdmission(existing []Edge, candidate Edge) error {
	for _, e := range existing {
		if e.InTag == candidate.InTag && e.OutTag != candidate.OutTag {
			return gferrors.NewValidationError(
				fmt.Sprintf("%s already has an outgoing edge to %s", candidate.InTag, e.OutTag),
				"", gferrors.AmbiguousEdge)
		}
	}

	hypothetical := make([]Edge, len(existing), len(existing)+1)
	copy(hypothetical, existing)
	hypothetical = append(hypothetical, candidate)

	if cyclePath, found := DetectCycle(hypothetical); found {
		return gferrors.NewValidationError(fmt.Sprintf("%v", cyclePath), "", gferrors.CycleDetected)
	}
	return nil
}

// DetectCycle runs a DFS with visiting/visited marks over the directed
// graph described by edges, iterating node ids in sorted order for
// determinism. It returns the cycle's node sequence and true on the
// first back-edge found, or (nil, false) if the graph is acyclic.
func DetectCycle(edges []Edge) ([]string, bool) {
	adjacency := make(map[string]string) // at most one outgoing edge per node
	nodes := make(map[string]struct{})
	for _, e := range edges {
		adjacency[e.InTag] = e.OutTag
		nodes[e.InTag] = struct{}{}
		nodes[e.OutTag] = struct{}{}
	}

	ids := make([]string, 0, len(nodes))
	for n := range nodes {
		ids = append(ids, n)
	}
	sort.Strings(ids)

	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var stack []string
	var walk func(node string) ([]string, bool)
	walk = func(node string) ([]string, bool) {
		if visited[node] {
			return nil, false
		}
		if visiting[node] {
			// Found the back-edge; extract the cycle from the stack.
			start := 0
			for i, n := range stack {
				if n == node {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, stack[start:]...), node)
			return cycle, true
		}

		visiting[node] = true
		stack = append(stack, node)

		if next, ok := adjacency[node]; ok {
			if cycle, found := walk(next); found {
				return cycle, true
			}
		}

		stack = stack[:len(stack)-1]
		visiting[node] = false
		visited[node] = true
		return nil, false
	}

	for _, id := range ids {
		if cycle, found := walk(id); found {
			return cycle, true
		}
	}
	return nil, false
}
