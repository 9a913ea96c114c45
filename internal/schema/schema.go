// Package schema reconciles raw feature mappings against the column schema
// that was fixed when a model was trained. Models fail on shape mismatch, so
// every vector that reaches a model must pass through Align first.
package schema

import (
	"errors"
	"fmt"
)

// ErrNotReady signals that alignment was attempted before any trained schema
// was available. Train or load a model before predicting.
var ErrNotReady = errors.New("schema: no trained schema loaded")

// FeatureVector maps feature names to raw values. Values may be numeric,
// boolean, or categorical strings; anything else is ignored during expansion.
type FeatureVector map[string]any

// TrainingSchema is the ordered list of encoded column names fixed at
// training time. Categorical fields appear as one-hot indicator columns named
// field_value, with the lexicographically first level dropped as the
// reference baseline.
type TrainingSchema []string

// Index returns the position of a column in the schema, or -1.
func (ts TrainingSchema) Index(column string) int {
	for i, c := range ts {
		if c == column {
			return i
		}
	}
	return -1
}

// Align expands raw into encoded columns and projects the result onto the
// training schema: columns the schema expects but the input lacks are
// zero-filled, columns the schema does not know are dropped, and the output
// order is exactly the schema order. Align is deterministic and never fails
// for a non-nil schema.
func Align(raw FeatureVector, ts TrainingSchema) ([]float64, error) {
	if ts == nil {
		return nil, ErrNotReady
	}

	expanded := Expand(raw)
	encoded := make([]float64, len(ts))
	for i, column := range ts {
		encoded[i] = expanded[column]
	}
	return encoded, nil
}

// Expand one-hot encodes a raw feature mapping. A categorical value v for
// field f becomes an indicator column named f_v with value 1; booleans become
// 0/1 under the field name; numeric values pass through unchanged.
func Expand(raw FeatureVector) map[string]float64 {
	expanded := make(map[string]float64, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			expanded[IndicatorColumn(name, v)] = 1
		case bool:
			if v {
				expanded[name] = 1
			} else {
				expanded[name] = 0
			}
		case float64:
			expanded[name] = v
		case float32:
			expanded[name] = float64(v)
		case int:
			expanded[name] = float64(v)
		case int32:
			expanded[name] = float64(v)
		case int64:
			expanded[name] = float64(v)
		}
	}
	return expanded
}

// IndicatorColumn builds the encoded column name for a categorical level,
// matching the naming convention used at training time.
func IndicatorColumn(field, level string) string {
	return fmt.Sprintf("%s_%s", field, level)
}
