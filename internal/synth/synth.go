// Package synth implements the Program Synthesizer: it folds a
// submitter's source against one resolved TestSpec, replacing
// overridden declarations with the template's own, and emits a single
// compilable program per test.
package synth

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"github.com/gradeforge/gradeforge/internal/analyzer"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

// SynthesizeAll runs Synthesize for every TestSpec the template
// analyzer resolved, assembling the GeneratedPrograms Pipeline Value
// a Compile stage consumes.
func SynthesizeAll(tmpl *analyzer.Template, userSource string) (pipeline.GeneratedPrograms, error) {
	entries := make(map[string]pipeline.ProgramEntry, len(tmpl.Tests))
	for _, test := range tmpl.Tests {
		src, err := Synthesize(tmpl, test, userSource)
		if err != nil {
			return pipeline.GeneratedPrograms{}, err
		}
		entries[test.Name] = pipeline.ProgramEntry{Source: src, Points: test.Points, Visible: test.IsVisible}
	}
	return pipeline.GeneratedPrograms{Entries: entries, Dependencies: tmpl.Dependencies}, nil
}

// Synthesize produces a single compilable program for test by folding
// userSource's syntax tree: overridden declarations are swapped for
// the template's own, analyzer-only directives are stripped, any
// overrides the user's source never defined are re-materialized at
// file end, and the test body is renamed to main.
func Synthesize(tmpl *analyzer.Template, test analyzer.TestSpec, userSource string) (string, error) {
	userFset, userFile, err := parseUserSource(userSource)
	if err != nil {
		return "", err
	}

	pending := make(map[string]ast.Decl, len(test.Resolved))
	for k, v := range test.Resolved {
		pending[k] = v
	}
	pendingPaths := make(map[string]analyzer.SymbolPath, len(test.Overrides))
	for k, v := range test.Overrides {
		pendingPaths[k] = v
	}

	walker := analyzer.ModuleWalker(userFile)

	var parts []string
	if tmpl.AllowDeadCode {
		parts = append(parts, "//lint:ignore U1000 generated program may leave template helpers unused")
	}
	parts = append(parts, "package main")

	for _, decl := range userFile.Decls {
		mod := walker(decl.Pos())

		switch d := decl.(type) {
		case *ast.FuncDecl:
			sp := analyzer.SymbolPathFor(mod, d.Recv, d.Name.Name, d.Doc)
			if raw, ok := matchOverride(sp, pendingPaths); ok {
				parts = append(parts, renderDecl(tmpl.Fset, pending[raw]))
				delete(pending, raw)
				delete(pendingPaths, raw)
				continue
			}
			d.Doc = analyzer.StripDirectiveComments(d.Doc)
			parts = append(parts, renderDecl(userFset, d))
		case *ast.GenDecl:
			d.Doc = analyzer.StripDirectiveComments(d.Doc)
			parts = append(parts, renderDecl(userFset, d))
		default:
			parts = append(parts, renderDecl(userFset, decl))
		}
	}

	// Any override whose symbol the user's source never defined is
	// still emitted, so the program compiles regardless of what the
	// submitter omitted. Go declarations carry no block-scoped nesting,
	// so reconstructing the module skeleton collapses to noting the
	// logical path in a comment and emitting the declaration at file
	// scope; order doesn't affect compilation.
	for _, raw := range sortedKeys(pending) {
		path := pendingPaths[raw]
		if len(path.Module) > 0 {
			parts = append(parts, fmt.Sprintf("// reconstructed module path: %s", strings.Join(path.Module, ".")))
		}
		parts = append(parts, renderDecl(tmpl.Fset, pending[raw]))
	}

	parts = append(parts, renderTestAsMain(tmpl.Fset, test))

	return strings.Join(parts, "\n\n") + "\n", nil
}

// parseUserSource parses a submission. An empty or bare-statement
// submission (no package clause) is wrapped with a throwaway package
// line so an empty submission still parses.
func parseUserSource(userSource string) (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	if file, err := parser.ParseFile(fset, "submission.go", userSource, parser.ParseComments); err == nil {
		return fset, file, nil
	}

	fset = token.NewFileSet()
	wrapped := "package submission\n" + userSource
	file, err := parser.ParseFile(fset, "submission.go", wrapped, parser.ParseComments)
	if err != nil {
		return nil, nil, gferrors.NewExternalError("submission", gferrors.TemplateParse, err)
	}
	return fset, file, nil
}

// matchOverride looks for a pending override matching sp by module
// path, receiver type, and name. Trait is deliberately not compared
// here: it identifies which of the template's own declarations
// satisfies the override, not something the submitter's source is
// expected to annotate.
func matchOverride(sp analyzer.SymbolPath, pendingPaths map[string]analyzer.SymbolPath) (string, bool) {
	for raw, psp := range pendingPaths {
		if sameModule(sp.Module, psp.Module) && sp.Type == psp.Type && sp.Name == psp.Name {
			return raw, true
		}
	}
	return "", false
}

func sameModule(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]ast.Decl) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderTestAsMain renames test's outer function to main and strips
// its directive doc comments, the Go re-expression of rule 5
// ("rename the test body's outer function to main and append it at
// file scope").
func renderTestAsMain(fset *token.FileSet, test analyzer.TestSpec) string {
	clone := *test.Decl
	name := *test.Decl.Name
	name.Name = "main"
	clone.Name = &name
	clone.Doc = nil
	clone.Recv = nil
	return renderDecl(fset, &clone)
}

func renderDecl(fset *token.FileSet, decl ast.Decl) string {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, decl); err != nil {
		return fmt.Sprintf("/* unrenderable declaration: %v */", err)
	}
	return buf.String()
}
