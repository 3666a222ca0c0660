// Package stage implements the Stage Registry: a map from
// (input-tag, output-tag) to a transform function over Pipeline
// Values, with config decoded from an opaque string and an optional
// self-test performed at registration time.
package stage

import (
	"context"
	"encoding/json"
	"fmt"

	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
	"github.com/gradeforge/gradeforge/internal/pipeline"
)

// Func is the uniform, registry-stored shape every stage is wrapped
// into: it accepts a Pipeline Value and an opaque config string, and
// returns the next Pipeline Value or an error.
type Func func(ctx context.Context, in pipeline.Value, config string) (pipeline.Value, error)

type key struct {
	in, out string
}

// Registry is the Stage Registry. It is built during plugin
// registration and, like the Tag Map, becomes effectively read-only
// once Orchestrator.Run begins.
type Registry struct {
	tags  *pipeline.TagMap
	stages map[key]Func
}

// NewRegistry returns a Registry bound to tagMap, used to construct
// default values for self-tests.
func NewRegistry(tagMap *pipeline.TagMap) *Registry {
	return &Registry{tags: tagMap, stages: make(map[key]Func)}
}

// Register wraps fn (a typed transform over a decoded config of type
// C) into the registry under (inTag, outTag). It fails the incoming
// value's tag check with WrongVariant, decodes config via JSON, and,
// when selfTest is true, invokes fn once against inTag's default value
// and an empty-object config, refusing registration if that call
// errors.
//
// Registration is idempotent per key: a second call with the same
// (inTag, outTag) replaces the prior entry.
func Register[C any](ctx context.Context, r *Registry, inTag, outTag string, fn func(ctx context.Context, in pipeline.Value, cfg C) (pipeline.Value, error), selfTest bool) error {
	wrapped := func(ctx context.Context, in pipeline.Value, config string) (pipeline.Value, error) {
		if in.Tag() != inTag {
			return nil, gferrors.NewValidationError(
				fmt.Sprintf("expected %q, got %q", inTag, in.Tag()), "", gferrors.WrongVariant)
		}
		var cfg C
		if config != "" {
			if err := json.Unmarshal([]byte(config), &cfg); err != nil {
				return nil, gferrors.NewExternalError("stage config", gferrors.TemplateParse, err)
			}
		}
		out, err := fn(ctx, in, cfg)
		if err != nil {
			return nil, err
		}
		if out.Tag() != outTag {
			return nil, gferrors.NewValidationError(
				fmt.Sprintf("stage %s->%s produced tag %q", inTag, outTag, out.Tag()), "", gferrors.WrongVariant)
		}
		return out, nil
	}

	if selfTest {
		defaultValue, err := r.tags.Default(inTag)
		if err != nil {
			return fmt.Errorf("stage: cannot self-test %s->%s: %w", inTag, outTag, err)
		}
		var zero C
		if _, err := fn(ctx, defaultValue, zero); err != nil {
			return fmt.Errorf("stage: self-test failed for %s->%s: %w", inTag, outTag, err)
		}
	}

	r.stages[key{in: inTag, out: outTag}] = wrapped
	return nil
}

// Lookup returns the stage registered for (inTag, outTag), or
// UnregisteredStage.
func (r *Registry) Lookup(inTag, outTag string) (Func, error) {
	fn, ok := r.stages[key{in: inTag, out: outTag}]
	if !ok {
		return nil, gferrors.NewNotFoundError(fmt.Sprintf("%s->%s", inTag, outTag), gferrors.UnregisteredStage)
	}
	return fn, nil
}
