package pipeline

import "sort"

// BuildStatus is the outcome of the Compile stage for one test.
// The zero value is BuildNotBuilt; explicit construction is preferred.
type BuildStatus struct {
	Kind   BuildKind
	Detail string // populated only when Kind == BuildError
}

// BuildKind totally orders as Built < BuildError < NotBuilt.
type BuildKind int

const (
	Built BuildKind = iota
	BuildError
	NotBuilt
)

// Less implements the total order Built < BuildError(d1<d2) < NotBuilt.
func (b BuildStatus) Less(other BuildStatus) bool {
	if b.Kind != other.Kind {
		return b.Kind < other.Kind
	}
	if b.Kind == BuildError {
		return b.Detail < other.Detail
	}
	return false
}

func (b BuildStatus) String() string {
	switch b.Kind {
	case Built:
		return "Built"
	case BuildError:
		return "BuildError: " + b.Detail
	default:
		return "NotBuilt"
	}
}

// RunStatus is the outcome of the Run stage for one test.
type RunStatus struct {
	Kind   RunKind
	Detail string // populated only when Kind == RunError
}

// RunKind totally orders as Ok < RunError < NotRun.
type RunKind int

const (
	Ok RunKind = iota
	RunError
	NotRun
)

// Less implements the total order Ok < RunError(d1<d2) < NotRun.
func (r RunStatus) Less(other RunStatus) bool {
	if r.Kind != other.Kind {
		return r.Kind < other.Kind
	}
	if r.Kind == RunError {
		return r.Detail < other.Detail
	}
	return false
}

func (r RunStatus) String() string {
	switch r.Kind {
	case Ok:
		return "Ok"
	case RunError:
		return "RunError: " + r.Detail
	default:
		return "NotRun"
	}
}

// TestOutcome is the per-test verdict threaded through Compile and Run.
type TestOutcome struct {
	Build   BuildStatus
	Run     RunStatus
	Points  float64
	Visible bool
}

// Less orders outcomes build-status first, then run-status, then
// points.
func (o TestOutcome) Less(other TestOutcome) bool {
	if o.Build != other.Build {
		return o.Build.Less(other.Build)
	}
	if o.Run != other.Run {
		return o.Run.Less(other.Run)
	}
	return o.Points < other.Points
}

// TestReport maps test name to its outcome. It is the grading value,
// the mandatory terminal variant of the Pipeline Value sum type.
type TestReport struct {
	Tests map[string]TestOutcome
}

// Tag implements pipeline.Value; TestReport is always the grading tag.
func (TestReport) Tag() string { return GradingTag }

// TestOutcomeView is one row of a TestReport's ordered rendering.
type TestOutcomeView struct {
	Name    string
	Outcome TestOutcome
}

// Sorted renders the report in a stable, human-readable order: by
// name, with ties (none, since names are unique) broken by outcome
// ordering.
func (r TestReport) Sorted() []TestOutcomeView {
	views := make([]TestOutcomeView, 0, len(r.Tests))
	for name, outcome := range r.Tests {
		views = append(views, TestOutcomeView{Name: name, Outcome: outcome})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Name != views[j].Name {
			return views[i].Name < views[j].Name
		}
		return views[i].Outcome.Less(views[j].Outcome)
	})
	return views
}

// AllFullMarks reports whether every test built and ran cleanly,
// keeping its full points value. This is the self-grading check a new
// exercise must pass before it is accepted.
func (r TestReport) AllFullMarks() bool {
	for _, outcome := range r.Tests {
		if outcome.Build.Kind != Built || outcome.Run.Kind != Ok {
			return false
		}
	}
	return true
}
