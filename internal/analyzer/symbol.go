// Package analyzer implements the Template Analyzer: it
// parses an annotated Go template, extracts testcase/override/
// dependency directives, and resolves each test's overrides against
// the template's own default-implementations.
package analyzer

import (
	"fmt"
	"strings"
	"unicode"
)

// SymbolPath canonically identifies an overrideable declaration: the
// module path it lives under, its receiver type (empty for a free
// function), an optional trait/interface name attached via a
// //gradeforge:trait directive, and the item name.
//
// Go has no nested-module syntax, so "module path" here is the stack
// of //gradeforge:module directive comments enclosing the
// declaration (see DESIGN.md).
type SymbolPath struct {
	Module []string
	Type   string
	Trait  string
	Name   string
}

// String renders path in the dotted form accepted by ParseSymbolPath
// and used in //gradeforge:override directives, e.g. "shapes.Square:Area.compute".
func (p SymbolPath) String() string {
	var b strings.Builder
	for _, m := range p.Module {
		b.WriteString(m)
		b.WriteByte('.')
	}
	if p.Type != "" {
		b.WriteString(p.Type)
		if p.Trait != "" {
			b.WriteByte(':')
			b.WriteString(p.Trait)
		}
		b.WriteByte('.')
	}
	b.WriteString(p.Name)
	return b.String()
}

// Equal compares symbol paths segment-by-segment on module path,
// canonical type, trait (equal or both absent), and name. Generic
// parameters play no part since canonicalType already strips them.
func (p SymbolPath) Equal(o SymbolPath) bool {
	if len(p.Module) != len(o.Module) {
		return false
	}
	for i := range p.Module {
		if p.Module[i] != o.Module[i] {
			return false
		}
	}
	return p.Type == o.Type && p.Trait == o.Trait && p.Name == o.Name
}

// ParseSymbolPath parses the dotted form written in a
// //gradeforge:override directive. The final segment is always the
// item name. A receiver type, optionally suffixed with ":Trait", may
// appear as the segment immediately before it; every remaining
// leading segment is a module path component.
//
//	"Helper.print"          -> Type=Helper           Name=print
//	"Helper:Printer.print"  -> Type=Helper Trait=Printer Name=print
//	"shapes.Square.area"    -> Module=[shapes] Type=Square Name=area
//	"shapes.compute"        -> Module=[shapes]          Name=compute
func ParseSymbolPath(s string) (SymbolPath, error) {
	segs := strings.Split(s, ".")
	if len(segs) == 0 || segs[len(segs)-1] == "" {
		return SymbolPath{}, fmt.Errorf("analyzer: empty symbol path %q", s)
	}

	name := segs[len(segs)-1]
	rest := segs[:len(segs)-1]

	var module []string
	var typ, trait string
	if len(rest) > 0 {
		last := rest[len(rest)-1]
		if isReceiverSegment(last) {
			typ, trait = splitTrait(last)
			module = rest[:len(rest)-1]
		} else {
			module = rest
		}
	}

	return SymbolPath{Module: module, Type: typ, Trait: trait, Name: name}, nil
}

// isReceiverSegment reports whether seg looks like a type name rather
// than a module segment: it carries a ":Trait" suffix, or it starts
// with an uppercase letter (Go exported-type convention), matching
// canonicalType's output.
func isReceiverSegment(seg string) bool {
	if strings.Contains(seg, ":") {
		return true
	}
	r := []rune(seg)
	return len(r) > 0 && unicode.IsUpper(r[0])
}

func splitTrait(seg string) (typ, trait string) {
	parts := strings.SplitN(seg, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// canonicalType strips pointer and generic-instantiation syntax from
// a receiver type expression's textual form, e.g. "*Square[T]" -> "Square".
func canonicalType(s string) string {
	s = strings.TrimPrefix(s, "*")
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	return s
}
