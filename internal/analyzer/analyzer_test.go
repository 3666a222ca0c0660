package analyzer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

const templateSource = `package tmpl

//gradeforge:dependency "github.com/foo/bar"

type S struct{}

// print is the default implementation under test.
//gradeforge:trait Printer
func (s S) print() string { return "template" }

//gradeforge:testcase points=2
//gradeforge:override S:Printer.print
func TestPrint() {
	s := S{}
	_ = s.print()
}
`

func TestAnalyzeExtractsDependenciesAndResolvesOverride(t *testing.T) {
	tmpl, err := Analyze("template.go", templateSource)
	require.NoError(t, err)

	require.Equal(t, []string{"github.com/foo/bar"}, tmpl.Dependencies)
	require.Len(t, tmpl.Tests, 1)

	test := tmpl.Tests[0]
	require.Equal(t, "TestPrint", test.Name)
	require.Equal(t, 2.0, test.Points)
	require.True(t, test.IsVisible)
	require.Contains(t, test.Resolved, "S:Printer.print")
	require.Contains(t, test.Overrides, "S:Printer.print")

	sp := test.Overrides["S:Printer.print"]
	require.Equal(t, "S", sp.Type)
	require.Equal(t, "Printer", sp.Trait)
	require.Equal(t, "print", sp.Name)
}

const templateWithMissingOverride = `package tmpl

//gradeforge:testcase
//gradeforge:override Ghost.vanish
func TestGhost() {}
`

func TestAnalyzeFailsOnUnresolvedOverride(t *testing.T) {
	_, err := Analyze("template.go", templateWithMissingOverride)
	require.Error(t, err)
	require.True(t, errors.Is(err, gferrors.OverrideUnresolved))
}

const templateWithHiddenTest = `package tmpl

//gradeforge:testcase points=3 visible=false
func TestHidden() {}
`

func TestAnalyzeParsesVisibleFalseDirective(t *testing.T) {
	tmpl, err := Analyze("template.go", templateWithHiddenTest)
	require.NoError(t, err)
	require.Len(t, tmpl.Tests, 1)

	test := tmpl.Tests[0]
	require.Equal(t, 3.0, test.Points)
	require.False(t, test.IsVisible)
}

func TestSymbolPathRoundTrip(t *testing.T) {
	cases := []string{"print", "Helper.print", "Helper:Printer.print", "shapes.Square.area", "shapes.compute"}
	for _, c := range cases {
		sp, err := ParseSymbolPath(c)
		require.NoError(t, err)
		require.Equal(t, c, sp.String())
	}
}
