package explain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailscore/internal/artifact"
	"mailscore/internal/model"
)

// testEnsemble builds a two-tree boosted classifier over three columns with
// depth-two trees, the smallest shape that exercises multi-split paths.
func testEnsemble() *model.Ensemble {
	return &model.Ensemble{
		Kind:    model.KindBoostedClassifier,
		Base:    -0.4,
		Columns: 3,
		Trees: []model.Tree{
			{Nodes: []model.Node{
				{Feature: 0, Threshold: 0.5, Left: 1, Right: 2, Value: 0.08, Cover: 100},
				{Feature: 1, Threshold: 1.0, Left: 3, Right: 4, Value: -0.12, Cover: 55},
				{Feature: -1, Value: 0.31, Cover: 45},
				{Feature: -1, Value: -0.25, Cover: 30},
				{Feature: -1, Value: 0.04, Cover: 25},
			}},
			{Nodes: []model.Node{
				{Feature: 2, Threshold: 2.0, Left: 1, Right: 2, Value: -0.02, Cover: 100},
				{Feature: -1, Value: 0.11, Cover: 62},
				{Feature: -1, Value: -0.22, Cover: 38},
			}},
		},
		Importances: []float64{0.5, 0.3, 0.2},
	}
}

func explainerFor(e *model.Ensemble) *artifact.ExplainerState {
	expected := e.ExpectedMargin()
	return &artifact.ExplainerState{ExpectedValues: []float64{-expected, expected}}
}

func TestTreeStrategy_AdditiveIdentity(t *testing.T) {
	e := testEnsemble()
	strategy := NewTreeStrategy(explainerFor(e))

	rows := [][]float64{
		{0.0, 0.5, 1.0},
		{0.0, 2.0, 3.0},
		{1.0, 0.0, 0.0},
		{1.0, 3.0, 5.0},
		{0.49, 0.99, 1.99},
	}

	for _, row := range rows {
		attr, err := strategy.Explain(row, e)
		require.NoError(t, err)

		sum := attr.Baseline
		for _, impact := range attr.Impacts {
			sum += impact
		}

		margin, err := e.Score(row)
		require.NoError(t, err)
		assert.InDelta(t, margin, sum, 1e-9, "sum of impacts plus baseline must equal the model margin")
	}
}

func TestTreeStrategy_UnavailableConditions(t *testing.T) {
	e := testEnsemble()

	tests := []struct {
		name     string
		strategy *TreeStrategy
		ensemble *model.Ensemble
	}{
		{"nil explainer state", NewTreeStrategy(nil), e},
		{"wrong class layout", NewTreeStrategy(&artifact.ExplainerState{ExpectedValues: []float64{0.1}}), e},
		{"baseline disagrees with model", NewTreeStrategy(&artifact.ExplainerState{ExpectedValues: []float64{0, 99}}), e},
		{"constant model", NewTreeStrategy(explainerFor(e)), &model.Ensemble{Kind: model.KindConstant, Base: 0.3}},
		{"regressor model", NewTreeStrategy(explainerFor(e)), &model.Ensemble{Kind: model.KindForestRegressor, Columns: 3, Trees: e.Trees}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.strategy.Explain([]float64{0, 0, 0}, tc.ensemble)
			assert.ErrorIs(t, err, ErrAttributionUnavailable)
		})
	}
}

func TestImportanceStrategy_AlwaysAvailable(t *testing.T) {
	row := []float64{2.0, 0.0, -1.0}

	attr, err := ImportanceStrategy{}.Explain(row, testEnsemble())
	require.NoError(t, err)
	assert.Equal(t, MethodFeatureImportance, attr.Method)
	assert.Equal(t, FallbackBaseline, attr.Baseline)
	assert.InDelta(t, 1.0, attr.Impacts[0], 1e-12)  // 0.5 * 2.0
	assert.InDelta(t, 0.0, attr.Impacts[1], 1e-12)  // 0.3 * 0.0
	assert.InDelta(t, -0.2, attr.Impacts[2], 1e-12) // 0.2 * -1.0

	// Even without a model the fallback produces a well-shaped result.
	attr, err = ImportanceStrategy{}.Explain(row, nil)
	require.NoError(t, err)
	assert.Len(t, attr.Impacts, len(row))
}

func TestStrategies_SameFactorShape(t *testing.T) {
	e := testEnsemble()
	row := []float64{1.0, 0.5, 3.0}

	exact, err := NewTreeStrategy(explainerFor(e)).Explain(row, e)
	require.NoError(t, err)
	approx, err := ImportanceStrategy{}.Explain(row, e)
	require.NoError(t, err)

	// Same shape, different values and method tags.
	assert.Len(t, approx.Impacts, len(exact.Impacts))
	assert.NotEqual(t, exact.Method, approx.Method)
}

func TestTreeStrategy_ShapeMismatch(t *testing.T) {
	e := testEnsemble()
	_, err := NewTreeStrategy(explainerFor(e)).Explain([]float64{1}, e)
	if !errors.Is(err, model.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestSigmoidOfBaselineIsProbability(t *testing.T) {
	e := testEnsemble()
	p := model.Sigmoid(explainerFor(e).ExpectedValues[1])
	if p <= 0 || p >= 1 || math.IsNaN(p) {
		t.Fatalf("baseline probability %v outside (0,1)", p)
	}
}
