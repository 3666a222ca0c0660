package analyzer

import (
	"go/ast"
	"strconv"
	"strings"
)

const directivePrefix = "//gradeforge:"

// directives collected from a single doc comment group.
type directives struct {
	testcase   bool
	points     float64
	visible    bool
	overrides  []string // raw symbol-path text, one per //gradeforge:override line
	trait      string
	dependency string
	module     string // non-empty on a //gradeforge:module NAME line
	endModule  bool
	allowDead  bool
	descLines  []string // doc text with directive lines stripped
}

// parseDoc extracts every //gradeforge: directive from a comment
// group, along with the remaining lines treated as description text.
func parseDoc(doc *ast.CommentGroup) directives {
	var d directives
	d.points = 1
	d.visible = true
	if doc == nil {
		return d
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		if !strings.HasPrefix("//"+text, directivePrefix) {
			if text != "" {
				d.descLines = append(d.descLines, text)
			}
			continue
		}
		body := strings.TrimSpace(strings.TrimPrefix(text, strings.TrimPrefix(directivePrefix, "//")))
		parseDirectiveLine(body, &d)
	}
	return d
}

func parseDirectiveLine(body string, d *directives) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "testcase":
		d.testcase = true
		for _, f := range fields[1:] {
			switch {
			case strings.HasPrefix(f, "points="):
				if v, err := strconv.ParseFloat(strings.TrimPrefix(f, "points="), 64); err == nil {
					d.points = v
				}
			case strings.HasPrefix(f, "visible="):
				d.visible = strings.TrimPrefix(f, "visible=") != "false"
			}
		}
	case "override":
		if len(fields) > 1 {
			d.overrides = append(d.overrides, fields[1])
		}
	case "trait":
		if len(fields) > 1 {
			d.trait = fields[1]
		}
	case "dependency":
		if len(fields) > 1 {
			d.dependency = strings.Trim(fields[1], `"`)
		}
	case "module":
		if len(fields) > 1 {
			d.module = fields[1]
		}
	case "endmodule":
		d.endModule = true
	case "allow-dead-code":
		d.allowDead = true
	}
}

// description joins the surviving doc lines after directive stripping.
func (d directives) description() string {
	return strings.Join(d.descLines, " ")
}

// StripDirectiveComments removes every //gradeforge: line from doc,
// leaving only description text. Used by the synthesizer so
// analyzer-only markers never leak into a compiled program.
func StripDirectiveComments(doc *ast.CommentGroup) *ast.CommentGroup {
	if doc == nil {
		return nil
	}
	var kept []*ast.Comment
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		if strings.HasPrefix("//"+text, directivePrefix) {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil
	}
	return &ast.CommentGroup{List: kept}
}
