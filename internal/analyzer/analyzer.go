package analyzer

import (
	"go/ast"
	"go/parser"
	"go/token"
	"sort"

	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

// TestSpec is one resolved testable unit extracted from a template:
// its body, point value, and the default-implementations it requires
// in place of whatever the submitter's source defines.
type TestSpec struct {
	Name        string
	Description string
	Points      float64
	// IsVisible reports whether the test's outcome should be shown to
	// the submitter, set by a //gradeforge:testcase visible=false
	// directive. Defaults to true.
	IsVisible bool
	Decl      *ast.FuncDecl
	// Overrides maps the raw directive text to its parsed symbol path.
	Overrides map[string]SymbolPath
	// Resolved maps the same raw text to the template's own
	// declaration satisfying that path.
	Resolved map[string]ast.Decl
}

// Template is the Template Analyzer's full output for one annotated
// template program.
type Template struct {
	Fset          *token.FileSet
	File          *ast.File
	Dependencies  []string
	Defaults      map[string]ast.Decl
	Tests         []TestSpec
	AllowDeadCode bool
}

type unfinishedTestSpec struct {
	name        string
	description string
	points      float64
	visible     bool
	decl        *ast.FuncDecl
	overrides   []string
}

type moduleEvent struct {
	pos   token.Pos
	enter string
	exit  bool
}

// ModuleWalker returns a function reporting the //gradeforge:module
// stack in effect at a given position within file. Exported so
// internal/synth's fold can track the same module path over the
// submitter's source.
func ModuleWalker(file *ast.File) func(pos token.Pos) []string {
	return moduleStackWalker(moduleEvents(file))
}

func moduleEvents(file *ast.File) []moduleEvent {
	var events []moduleEvent
	for _, cg := range file.Comments {
		d := parseDoc(cg)
		if d.module != "" {
			events = append(events, moduleEvent{pos: cg.Pos(), enter: d.module})
		}
		if d.endModule {
			events = append(events, moduleEvent{pos: cg.Pos(), exit: true})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].pos < events[j].pos })
	return events
}

// moduleStackWalker returns a function that, given strictly increasing
// positions, reports the module-directive stack in effect at that
// position while walking the file's //gradeforge:module markers.
func moduleStackWalker(events []moduleEvent) func(upTo token.Pos) []string {
	idx := 0
	var stack []string
	return func(upTo token.Pos) []string {
		for idx < len(events) && events[idx].pos < upTo {
			e := events[idx]
			if e.exit {
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			} else {
				stack = append(stack, e.enter)
			}
			idx++
		}
		out := make([]string, len(stack))
		copy(out, stack)
		return out
	}
}

func exprString(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.IndexExpr:
		return exprString(t.X)
	case *ast.IndexListExpr:
		return exprString(t.X)
	default:
		return ""
	}
}

// SymbolPathFor builds the canonical symbol path of a declaration
// given the module stack in effect at its position, its receiver (nil
// for a free function), its name, and its doc comment (consulted only
// for a //gradeforge:trait directive). Exported for internal/synth's
// fold, which builds the same path over declarations in the
// submitter's source to test for an override match.
func SymbolPathFor(module []string, recv *ast.FieldList, name string, doc *ast.CommentGroup) SymbolPath {
	return symbolPathFor(module, recv, name, doc)
}

func symbolPathFor(module []string, recv *ast.FieldList, name string, doc *ast.CommentGroup) SymbolPath {
	d := parseDoc(doc)
	sp := SymbolPath{Module: append([]string{}, module...), Name: name, Trait: d.trait}
	if recv != nil && len(recv.List) == 1 {
		sp.Type = canonicalType(exprString(recv.List[0].Type))
	}
	return sp
}

// Analyze parses src as an annotated Go template and extracts its
// dependency declarations, default-implementations (every top-level
// function and type, keyed by symbol path), and resolved TestSpecs.
func Analyze(filename, src string) (*Template, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, gferrors.NewExternalError(filename, gferrors.TemplateParse, err)
	}

	var dependencies []string
	allowDead := false
	for _, cg := range file.Comments {
		d := parseDoc(cg)
		if d.dependency != "" {
			dependencies = append(dependencies, d.dependency)
		}
		if d.allowDead {
			allowDead = true
		}
	}

	walker := moduleStackWalker(moduleEvents(file))
	defaults := make(map[string]ast.Decl)
	var unfinished []unfinishedTestSpec

	for _, decl := range file.Decls {
		switch dcl := decl.(type) {
		case *ast.FuncDecl:
			mod := walker(dcl.Pos())
			sp := symbolPathFor(mod, dcl.Recv, dcl.Name.Name, dcl.Doc)
			defaults[sp.String()] = dcl

			dirs := parseDoc(dcl.Doc)
			if dirs.testcase {
				unfinished = append(unfinished, unfinishedTestSpec{
					name:        dcl.Name.Name,
					description: dirs.description(),
					points:      dirs.points,
					visible:     dirs.visible,
					decl:        dcl,
					overrides:   dirs.overrides,
				})
			}
		case *ast.GenDecl:
			mod := walker(dcl.Pos())
			for _, spec := range dcl.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					sp := SymbolPath{Module: mod, Name: ts.Name.Name}
					defaults[sp.String()] = dcl
				}
			}
		}
	}

	tests := make([]TestSpec, 0, len(unfinished))
	for _, u := range unfinished {
		resolved := make(map[string]ast.Decl, len(u.overrides))
		parsed := make(map[string]SymbolPath, len(u.overrides))
		for _, raw := range u.overrides {
			sp, err := ParseSymbolPath(raw)
			if err != nil {
				return nil, err
			}
			def, ok := defaults[sp.String()]
			if !ok {
				return nil, gferrors.NewNotFoundError(sp.String(), gferrors.OverrideUnresolved)
			}
			resolved[raw] = def
			parsed[raw] = sp
		}
		tests = append(tests, TestSpec{
			Name:        u.name,
			Description: u.description,
			Points:      u.points,
			IsVisible:   u.visible,
			Decl:        u.decl,
			Overrides:   parsed,
			Resolved:    resolved,
		})
	}

	return &Template{
		Fset:          fset,
		File:          file,
		Dependencies:  dependencies,
		Defaults:      defaults,
		Tests:         tests,
		AllowDeadCode: allowDead,
	}, nil
}
