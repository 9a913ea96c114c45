package model

import "math"

// Ensemble kinds. Boosted ensembles sum tree outputs on top of the base
// margin; forests average them; constants carry no trees at all.
const (
	KindBoostedClassifier = "boosted_classifier"
	KindForestRegressor   = "forest_regressor"
	KindConstant          = "constant"
)

// Ensemble is an additive collection of regression trees plus the metadata
// needed to score and attribute a single encoded row. It is immutable after
// training; concurrent reads are safe without locking.
type Ensemble struct {
	Kind        string    `json:"kind"`
	Base        float64   `json:"base"`
	Trees       []Tree    `json:"trees"`
	Columns     int       `json:"columns"`
	Importances []float64 `json:"importances,omitempty"`
}

// Score returns the raw model output for one encoded row: the margin for
// boosted classifiers, the predicted value for regressors, and the constant
// for dummy models.
func (e *Ensemble) Score(row []float64) (float64, error) {
	if err := e.checkShape(row); err != nil {
		return 0, err
	}
	return e.score(row), nil
}

func (e *Ensemble) score(row []float64) float64 {
	if len(e.Trees) == 0 {
		return e.Base
	}

	sum := 0.0
	for i := range e.Trees {
		sum += e.Trees[i].Evaluate(row)
	}
	if e.Kind == KindForestRegressor {
		return e.Base + sum/float64(len(e.Trees))
	}
	return e.Base + sum
}

// PredictProba converts the margin of a boosted classifier into a probability
// in [0,1].
func (e *Ensemble) PredictProba(row []float64) (float64, error) {
	margin, err := e.Score(row)
	if err != nil {
		return 0, err
	}
	return Sigmoid(margin), nil
}

// PredictBatch scores every row in a single pass. All rows must share the
// trained column count; the whole batch fails on the first mismatch so that
// callers never see a partially scored grid.
func (e *Ensemble) PredictBatch(rows [][]float64) ([]float64, error) {
	for _, row := range rows {
		if err := e.checkShape(row); err != nil {
			return nil, err
		}
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = e.score(row)
	}
	return scores, nil
}

func (e *Ensemble) checkShape(row []float64) error {
	// Constant models accept any shape; they ignore the input entirely.
	if e.Kind == KindConstant {
		return nil
	}
	if len(row) != e.Columns {
		return ErrSchemaMismatch
	}
	return nil
}

// ExpectedMargin is the model's average raw output over the training
// population: the base plus every tree's root expectation. It is the
// zero-point for exact attribution.
func (e *Ensemble) ExpectedMargin() float64 {
	expected := e.Base
	for i := range e.Trees {
		expected += e.Trees[i].Root().Value
	}
	return expected
}

// Sigmoid maps a margin to a probability.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
