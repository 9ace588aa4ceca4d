package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeInfersKind(t *testing.T) {
	intSpec := Range("trees", 100, 2000)
	assert.Equal(t, IntegerKind, intSpec.Kind)
	assert.Equal(t, 100.0, intSpec.Min)
	assert.Equal(t, 2000.0, intSpec.Max)

	floatSpec := Range("learn_rate", 0.001, 0.3)
	assert.Equal(t, Continuous, floatSpec.Kind)
}

func TestValueAccessors(t *testing.T) {
	assert.Equal(t, 7, Value{Num: 7}.Int())
	assert.InDelta(t, 0.25, Value{Num: 0.25}.Float(), 1e-12)
	assert.Equal(t, "squared", Value{Str: "squared"}.String())
	assert.Equal(t, "0.25", Value{Num: 0.25}.String())
}

func TestFinalizeResolvesBoundRules(t *testing.T) {
	space := NewParamSpace(
		Range("mtry", 1, 1).BoundedAbove(BoundPredictors),
		Range("min_n", 2, 2).BoundedAbove(BoundRows),
		Range("learn_rate", 0.001, 0.3),
	)

	finalized, err := space.Finalize(Shape{Rows: 300, Predictors: 15})
	require.NoError(t, err)

	specs := finalized.Specs()
	assert.Equal(t, 15.0, specs[0].Max)
	assert.Equal(t, BoundNone, specs[0].MaxRule)
	assert.Equal(t, 300.0, specs[1].Max)
	assert.Equal(t, 0.3, specs[2].Max, "literal bounds pass through")
}

func TestFinalizeRejectsUnknownRule(t *testing.T) {
	space := NewParamSpace(Range("x", 1, 1).BoundedAbove(BoundRule("columns")))

	_, err := space.Finalize(Shape{Rows: 10, Predictors: 3})
	assert.Error(t, err)
}

func TestFinalizeValidates(t *testing.T) {
	// The resolved bound can invert the range; Finalize must catch it.
	space := NewParamSpace(Range("mtry", 50, 50).BoundedAbove(BoundPredictors))

	_, err := space.Finalize(Shape{Rows: 100, Predictors: 10})
	assert.Error(t, err)
}
