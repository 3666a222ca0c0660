// Package goexercise is the default Plugin wiring the Template
// Analyzer, Program Synthesizer, and internal/gostage's Compile/Run
// stages into one Go-exercise pipeline:
//
//	TemplateParsed -> WithUserSource -> GeneratedPrograms -> Compiled -> TestReport
//
// It realizes the generator pair for exercises whose template and
// submissions are themselves Go source.
package goexercise

import (
	"context"

	"github.com/gradeforge/gradeforge/internal/analyzer"
	"github.com/gradeforge/gradeforge/internal/gostage"
	"github.com/gradeforge/gradeforge/internal/orchestrator"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/stage"
	"github.com/gradeforge/gradeforge/internal/synth"
)

// StartingTag is the starting variant a Go-template exercise's
// starting-tag field must name.
const StartingTag = "TemplateParsed"

const withSourceTag = "WithUserSource"

type templateParsed struct{ tmpl *analyzer.Template }

func (templateParsed) Tag() string { return StartingTag }

type withUserSource struct {
	tmpl   *analyzer.Template
	source string
}

func (withUserSource) Tag() string { return withSourceTag }

// Plugin registers the tags and stages above and the StartingTag
// generator pair. It carries no state of its own.
type Plugin struct{}

// Name implements orchestrator.Plugin.
func (Plugin) Name() string { return "goexercise" }

// OnAdd implements orchestrator.Plugin.
func (Plugin) OnAdd(ctx context.Context, o *orchestrator.Orchestrator) error {
	for tag, factory := range map[string]func() pipeline.Value{
		StartingTag:         func() pipeline.Value { return templateParsed{} },
		withSourceTag:       func() pipeline.Value { return withUserSource{} },
		"GeneratedPrograms": func() pipeline.Value { return pipeline.GeneratedPrograms{Entries: map[string]pipeline.ProgramEntry{}} },
		"Compiled":          func() pipeline.Value { return pipeline.Compiled{PerTest: map[string]pipeline.TestOutcome{}} },
		pipeline.GradingTag: func() pipeline.Value { return pipeline.TestReport{Tests: map[string]pipeline.TestOutcome{}} },
	} {
		if err := o.Tags.Register(tag, factory); err != nil {
			return err
		}
	}

	if err := stage.Register[struct{}](ctx, o.Stages, withSourceTag, "GeneratedPrograms",
		func(_ context.Context, in pipeline.Value, _ struct{}) (pipeline.Value, error) {
			ws := in.(withUserSource)
			return synth.SynthesizeAll(ws.tmpl, ws.source)
		}, false); err != nil {
		return err
	}

	if err := gostage.Register(ctx, o.Stages); err != nil {
		return err
	}

	for _, edge := range [][2]string{
		{StartingTag, withSourceTag},
		{withSourceTag, "GeneratedPrograms"},
		{"GeneratedPrograms", "Compiled"},
		{"Compiled", pipeline.GradingTag},
	} {
		if err := o.Store.EnableEdge(ctx, edge[0], edge[1], "{}"); err != nil {
			return err
		}
	}

	o.AddGenerator(StartingTag, orchestrator.GeneratorPair{
		TemplateGenerator: func(_ context.Context, templateSource string) (pipeline.Value, error) {
			tmpl, err := analyzer.Analyze("template.go", templateSource)
			if err != nil {
				return nil, err
			}
			return templateParsed{tmpl: tmpl}, nil
		},
		SourceAdder: func(_ context.Context, starting pipeline.Value, userSource string) (pipeline.Value, error) {
			tp := starting.(templateParsed)
			return withUserSource{tmpl: tp.tmpl, source: userSource}, nil
		},
	})

	return nil
}

var _ orchestrator.Plugin = Plugin{}
