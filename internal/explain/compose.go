package explain

import (
	"fmt"
	"math"
	"sort"

	"mailscore/internal/schema"
)

// topFactors caps each signed factor list in a composed explanation.
const topFactors = 5

// insufficientDataSummary is the fixed sentence emitted when no factor has a
// non-zero impact in either direction.
const insufficientDataSummary = "Insufficient data for detailed explanation."

// Factor is one feature's contribution to a single prediction.
type Factor struct {
	Feature  string  `json:"feature"`
	Impact   float64 `json:"impact"`
	Value    float64 `json:"value"`
	Readable string  `json:"feature_readable"`
}

// Explanation is the complete structured response for one explained
// prediction. Responses are complete-or-error; no partial explanation is ever
// returned.
type Explanation struct {
	Probability         float64  `json:"probability"`
	TopPositiveFactors  []Factor `json:"top_positive_factors"`
	TopNegativeFactors  []Factor `json:"top_negative_factors"`
	BaselineProbability float64  `json:"baseline_probability"`
	Summary             string   `json:"explanation_summary"`
	Method              string   `json:"explanation_method"`
}

// Compose turns per-column impacts into the user-facing explanation: factors
// sorted by descending absolute impact, partitioned by sign, truncated to the
// top five per side, with a natural-language summary.
func Compose(probability, baselineProbability float64, method string, columns schema.TrainingSchema, row, impacts []float64) *Explanation {
	factors := make([]Factor, len(columns))
	for i, column := range columns {
		var impact, value float64
		if i < len(impacts) {
			impact = impacts[i]
		}
		if i < len(row) {
			value = row[i]
		}
		factors[i] = Factor{
			Feature:  column,
			Impact:   impact,
			Value:    value,
			Readable: Readable(column),
		}
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Impact) > math.Abs(factors[j].Impact)
	})

	var positive, negative []Factor
	for _, f := range factors {
		switch {
		case f.Impact > 0 && len(positive) < topFactors:
			positive = append(positive, f)
		case f.Impact < 0 && len(negative) < topFactors:
			negative = append(negative, f)
		}
	}

	return &Explanation{
		Probability:         probability,
		TopPositiveFactors:  positive,
		TopNegativeFactors:  negative,
		BaselineProbability: baselineProbability,
		Summary:             summarize(positive, negative),
		Method:              method,
	}
}

// summarize builds the human-readable sentence: lead with the strongest
// positive factor, concede the strongest negative one, or report the
// fixed insufficient-data sentence when neither side has signal.
func summarize(positive, negative []Factor) string {
	if len(positive) == 0 && len(negative) == 0 {
		return insufficientDataSummary
	}

	summary := ""
	if len(positive) > 0 {
		summary = fmt.Sprintf("This email scores high because %s is strong", positive[0].Readable)
		if len(positive) > 1 {
			summary += fmt.Sprintf(", plus %d other positive signals", len(positive)-1)
		}
	}

	if len(negative) > 0 {
		if summary != "" {
			summary += fmt.Sprintf(". However, %s is a concern", negative[0].Readable)
		} else {
			summary = fmt.Sprintf("Low score mainly due to %s", negative[0].Readable)
		}
	}

	return summary + "."
}
