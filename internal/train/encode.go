package train

import (
	"sort"

	"mailscore/internal/schema"
)

// BuildSchema derives the training column layout from raw feature rows.
// Numeric fields map to themselves; string fields become one indicator
// column per level with the lexicographically first level dropped, so a
// k-level category contributes k-1 columns. Column order is deterministic:
// all names sorted.
func BuildSchema(rows []schema.FeatureVector) schema.TrainingSchema {
	numeric := map[string]struct{}{}
	levels := map[string]map[string]struct{}{}

	for _, row := range rows {
		for field, value := range row {
			switch v := value.(type) {
			case string:
				if levels[field] == nil {
					levels[field] = map[string]struct{}{}
				}
				levels[field][v] = struct{}{}
			case bool, float64, float32, int, int32, int64:
				numeric[field] = struct{}{}
			}
		}
	}

	var columns []string
	for field := range numeric {
		columns = append(columns, field)
	}
	for field, set := range levels {
		names := make([]string, 0, len(set))
		for level := range set {
			names = append(names, level)
		}
		sort.Strings(names)
		for _, level := range names[1:] { // first level is the reference class
			columns = append(columns, schema.IndicatorColumn(field, level))
		}
	}

	sort.Strings(columns)
	return schema.TrainingSchema(columns)
}

// encodeRows aligns every raw row onto the schema. Rows that fail to align
// are dropped together with their label.
func encodeRows(rows []schema.FeatureVector, labels []float64, ts schema.TrainingSchema) ([][]float64, []float64) {
	x := make([][]float64, 0, len(rows))
	y := make([]float64, 0, len(labels))
	for i, row := range rows {
		aligned, err := schema.Align(row, ts)
		if err != nil {
			continue
		}
		x = append(x, aligned)
		y = append(y, labels[i])
	}
	return x, y
}

// rankAUC is the probability a random positive outranks a random negative,
// with ties counted half. Returns 0.5 when one class is absent.
func rankAUC(scores, labels []float64) float64 {
	var pairs, wins float64
	for i, si := range scores {
		if labels[i] != 1 {
			continue
		}
		for j, sj := range scores {
			if labels[j] == 1 {
				continue
			}
			pairs++
			switch {
			case si > sj:
				wins++
			case si == sj:
				wins += 0.5
			}
		}
	}
	if pairs == 0 {
		return 0.5
	}
	return wins / pairs
}

func meanAbsError(predicted, actual []float64) float64 {
	if len(predicted) == 0 {
		return 0
	}
	var sum float64
	for i, p := range predicted {
		d := p - actual[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(predicted))
}
