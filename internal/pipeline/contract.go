package pipeline

// ProgramEntry is one synthesized, compilable program plus the points
// its test is worth.
type ProgramEntry struct {
	Source string
	Points float64
	// Visible reports whether the test's outcome should be shown to the
	// submitter. Defaults to true; false for a //gradeforge:testcase
	// visible=false directive.
	Visible bool
}

// GeneratedPrograms is the Pipeline Value a Program Synthesizer
// produces and a Compile stage consumes.
type GeneratedPrograms struct {
	Entries      map[string]ProgramEntry
	Dependencies []string
}

// Tag implements pipeline.Value.
func (GeneratedPrograms) Tag() string { return "GeneratedPrograms" }

// Compiled is the Pipeline Value a Compile stage produces and a Run
// stage consumes. Workdir is the isolated directory (or
// backend-defined handle) the Run stage should use to locate built
// artifacts.
type Compiled struct {
	Workdir string
	PerTest map[string]TestOutcome
}

// Tag implements pipeline.Value.
func (Compiled) Tag() string { return "Compiled" }
