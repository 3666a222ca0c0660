package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gradeforge/gradeforge/internal/pipeline"
	gferrors "github.com/gradeforge/gradeforge/pkg/errors"
)

const (
	inTag  = "StageIn"
	outTag = "StageOut"
)

type inValue struct{ n int }

func (inValue) Tag() string { return inTag }

type outValue struct{ n int }

func (outValue) Tag() string { return outTag }

type doubleConfig struct {
	Factor int `json:"factor"`
}

func newTagMap(t *testing.T) *pipeline.TagMap {
	t.Helper()
	tags := pipeline.NewTagMap()
	require.NoError(t, tags.Register(inTag, func() pipeline.Value { return inValue{n: 1} }))
	require.NoError(t, tags.Register(outTag, func() pipeline.Value { return outValue{} }))
	return tags
}

func double(ctx context.Context, in pipeline.Value, cfg doubleConfig) (pipeline.Value, error) {
	factor := cfg.Factor
	if factor == 0 {
		factor = 1
	}
	return outValue{n: in.(inValue).n * factor}, nil
}

func TestRegisterAndLookupRoundTrips(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newTagMap(t))

	require.NoError(t, Register(ctx, r, inTag, outTag, double, false))

	fn, err := r.Lookup(inTag, outTag)
	require.NoError(t, err)

	out, err := fn(ctx, inValue{n: 3}, `{"factor":2}`)
	require.NoError(t, err)
	require.Equal(t, outValue{n: 6}, out)
}

func TestRegisterSelfTestRunsFnAgainstDefaultValue(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newTagMap(t))

	require.NoError(t, Register(ctx, r, inTag, outTag, double, true))
}

func TestRegisterSelfTestFailsRegistrationOnError(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newTagMap(t))

	failing := func(ctx context.Context, in pipeline.Value, cfg doubleConfig) (pipeline.Value, error) {
		return nil, errors.New("boom")
	}

	err := Register(ctx, r, inTag, outTag, failing, true)
	require.Error(t, err)

	_, lookupErr := r.Lookup(inTag, outTag)
	require.Error(t, lookupErr)
}

func TestRegisteredStageRejectsWrongInputVariant(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newTagMap(t))
	require.NoError(t, Register(ctx, r, inTag, outTag, double, false))

	fn, err := r.Lookup(inTag, outTag)
	require.NoError(t, err)

	_, err = fn(ctx, outValue{}, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, gferrors.WrongVariant))
}

func TestRegisteredStageRejectsMalformedConfig(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newTagMap(t))
	require.NoError(t, Register(ctx, r, inTag, outTag, double, false))

	fn, err := r.Lookup(inTag, outTag)
	require.NoError(t, err)

	_, err = fn(ctx, inValue{n: 1}, "{not json")
	require.Error(t, err)
}

func TestLookupUnregisteredStageReturnsNotFound(t *testing.T) {
	r := NewRegistry(newTagMap(t))

	_, err := r.Lookup(inTag, outTag)
	require.Error(t, err)
	require.True(t, errors.Is(err, gferrors.UnregisteredStage))
}

func TestRegisterIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newTagMap(t))

	require.NoError(t, Register(ctx, r, inTag, outTag, double, false))
	triple := func(ctx context.Context, in pipeline.Value, cfg doubleConfig) (pipeline.Value, error) {
		return outValue{n: in.(inValue).n * 3}, nil
	}
	require.NoError(t, Register(ctx, r, inTag, outTag, triple, false))

	fn, err := r.Lookup(inTag, outTag)
	require.NoError(t, err)
	out, err := fn(ctx, inValue{n: 2}, "")
	require.NoError(t, err)
	require.Equal(t, outValue{n: 6}, out)
}
