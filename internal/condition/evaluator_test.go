package condition_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitengine/pipeline/internal/condition"
	"github.com/orbitengine/pipeline/internal/model"
)

func TestEvaluate_PriceGate(t *testing.T) {
	// S2: [And([PriceAbove{a,100}, PriceBelow{a,120}])]
	conds := []model.Condition{
		model.And(
			model.PriceAbove("a", 100),
			model.PriceBelow("a", 120),
		),
	}

	ok, err := condition.Evaluate(conds, model.PriceSnapshot{"a": 99})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = condition.Evaluate(conds, model.PriceSnapshot{"a": 100})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = condition.Evaluate(conds, model.PriceSnapshot{"a": 121})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_MissingPriceIsHardError(t *testing.T) {
	conds := []model.Condition{model.PriceAbove("missing", 1)}
	_, err := condition.Evaluate(conds, model.PriceSnapshot{})
	require.Error(t, err)

	var engErr *model.EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, model.KindEvaluationError, engErr.Kind)
	assert.Equal(t, model.Asset("missing"), engErr.Asset)
}

func TestEvaluate_Now(t *testing.T) {
	ok, err := condition.Evaluate([]model.Condition{model.Now()}, model.PriceSnapshot{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Or(t *testing.T) {
	conds := []model.Condition{
		model.Or(
			model.PriceAbove("a", 1000),
			model.PriceBelow("a", 10),
		),
	}
	ok, err := condition.Evaluate(conds, model.PriceSnapshot{"a": 5})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = condition.Evaluate(conds, model.PriceSnapshot{"a": 500})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_TopLevelListIsConjunctive(t *testing.T) {
	conds := []model.Condition{
		model.Now(),
		model.PriceAbove("a", 100),
	}
	ok, err := condition.Evaluate(conds, model.PriceSnapshot{"a": 50})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_Purity(t *testing.T) {
	conds := []model.Condition{model.PriceAbove("a", 100)}
	prices := model.PriceSnapshot{"a": 150}

	first, err1 := condition.Evaluate(conds, prices)
	second, err2 := condition.Evaluate(conds, prices)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
	// Evaluate must not mutate the condition tree's metadata.
	assert.False(t, conds[0].Triggered)
}
