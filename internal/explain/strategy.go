// Package explain attributes a single prediction to the features that drove
// it. Two interchangeable strategies produce the same ranked-factor shape:
// exact tree-path attribution when the loaded artifact carries explainer
// state, and an importance-times-value approximation otherwise. Selection
// happens once at explanation time, never mid-call.
package explain

import (
	"errors"
	"math"

	"mailscore/internal/artifact"
	"mailscore/internal/model"
)

// Method tags are part of the observable contract: every explanation reports
// which strategy produced it.
const (
	MethodTreePath          = "tree_path"
	MethodFeatureImportance = "feature_importance"
)

// FallbackBaseline is the fixed constant the approximate strategy reports as
// baseline probability. It approximates the population conversion rate and
// carries no additive-identity guarantee.
const FallbackBaseline = 0.15

// ErrAttributionUnavailable means the exact strategy cannot run for the
// loaded model. It is always recoverable by falling back to the approximate
// strategy and is never surfaced to callers as an error.
var ErrAttributionUnavailable = errors.New("explain: exact attribution unavailable for model")

// Attribution is the per-column signed impact of one prediction together with
// its zero-point. For the exact strategy the baseline is the expected margin
// and sum(Impacts) + Baseline equals the model margin for the row; for the
// approximate strategy the baseline is the FallbackBaseline constant.
type Attribution struct {
	Impacts  []float64
	Baseline float64
	Method   string
}

// Strategy computes per-column impacts for one encoded row.
type Strategy interface {
	Explain(row []float64, e *model.Ensemble) (*Attribution, error)
	Method() string
}

// TreeStrategy walks each tree's decision path and attributes the change in
// expected value at every split to the split feature. The per-tree deltas sum
// exactly to the leaf output minus the root expectation, so the strategy
// satisfies the additive identity in margin space.
type TreeStrategy struct {
	state *artifact.ExplainerState
}

// NewTreeStrategy wraps precomputed explainer state.
func NewTreeStrategy(state *artifact.ExplainerState) *TreeStrategy {
	return &TreeStrategy{state: state}
}

// Method returns the exact strategy's tag.
func (s *TreeStrategy) Method() string { return MethodTreePath }

// Explain computes exact margin-space impacts for one row. It fails with
// ErrAttributionUnavailable when the explainer state is missing, when the
// model family carries no attributable trees, or when the stored expected
// values violate the two-class layout this wrapper asserts.
func (s *TreeStrategy) Explain(row []float64, e *model.Ensemble) (*Attribution, error) {
	if e == nil || e.Kind != model.KindBoostedClassifier || len(e.Trees) == 0 {
		return nil, ErrAttributionUnavailable
	}
	if s.state == nil {
		return nil, ErrAttributionUnavailable
	}
	// The expected-value array is laid out per class; index 1 is the positive
	// class. Anything else means the explainer state was built for a
	// different model family.
	if len(s.state.ExpectedValues) != 2 {
		return nil, ErrAttributionUnavailable
	}
	baseline := s.state.ExpectedValues[1]
	if math.Abs(baseline-e.ExpectedMargin()) > 1e-6 {
		return nil, ErrAttributionUnavailable
	}
	if len(row) != e.Columns {
		return nil, model.ErrSchemaMismatch
	}

	impacts := make([]float64, e.Columns)
	for t := range e.Trees {
		attributePath(&e.Trees[t], row, impacts)
	}

	return &Attribution{Impacts: impacts, Baseline: baseline, Method: MethodTreePath}, nil
}

// attributePath walks one tree's decision path for the row, crediting each
// split feature with the change in expected value caused by taking the
// branch.
func attributePath(t *model.Tree, row []float64, impacts []float64) {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Leaf() {
			return
		}
		next := node.Right
		if row[node.Feature] < node.Threshold {
			next = node.Left
		}
		impacts[node.Feature] += t.Nodes[next].Value - node.Value
		idx = next
	}
}

// ImportanceStrategy approximates impacts as global feature importance times
// the row's value for that column. It is always available and never errors,
// but its baseline is a fixed constant rather than a computed expectation.
type ImportanceStrategy struct{}

// Method returns the fallback strategy's tag.
func (ImportanceStrategy) Method() string { return MethodFeatureImportance }

// Explain computes approximate impacts for one row.
func (ImportanceStrategy) Explain(row []float64, e *model.Ensemble) (*Attribution, error) {
	impacts := make([]float64, len(row))
	if e != nil {
		for i := range row {
			if i < len(e.Importances) {
				impacts[i] = e.Importances[i] * row[i]
			}
		}
	}
	return &Attribution{Impacts: impacts, Baseline: FallbackBaseline, Method: MethodFeatureImportance}, nil
}
