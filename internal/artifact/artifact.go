// Package artifact defines the trained-model bundle and the store that
// resolves the latest bundle for a model name prefix. A bundle is never
// mutated after creation, only replaced by retraining.
package artifact

import (
	"errors"
	"time"

	"mailscore/internal/model"
	"mailscore/internal/schema"
)

// ErrNotFound signals that no stored artifact matches the requested prefix.
// Callers decide the fallback policy: send-time search substitutes its
// documented default, prediction fails.
var ErrNotFound = errors.New("artifact: no artifact matches prefix")

// Metrics is the summary metric block recorded at training time.
type Metrics struct {
	AUC             float64 `json:"auc,omitempty"`
	MAE             float64 `json:"mae,omitempty"`
	TrainingSamples int     `json:"training_samples"`
}

// ExplainerState is the precomputed state the exact attribution strategy
// needs. ExpectedValues carries one expected margin per class; the strategy
// asserts the two-class layout and reads the positive class at index 1.
type ExplainerState struct {
	ExpectedValues []float64 `json:"expected_values"`
}

// Artifact bundles a fitted model with the schema it was trained on, optional
// attribution state, and its summary metrics.
type Artifact struct {
	Name      string                `json:"name"`
	Version   string                `json:"version"`
	ModelType string                `json:"model_type"`
	CreatedAt time.Time             `json:"created_at"`
	Model     *model.Ensemble       `json:"model"`
	Schema    schema.TrainingSchema `json:"schema"`
	Explainer *ExplainerState       `json:"explainer,omitempty"`
	Metrics   Metrics               `json:"metrics"`
}

// Store is the artifact storage boundary: an opaque store keyed by model
// name. ResolveLatest selects the lexicographically greatest identifier with
// the given prefix. That only approximates recency because identifiers embed
// a sortable date token; a non-date-suffixed identifier breaks "latest".
type Store interface {
	SaveArtifact(a *Artifact) error
	ResolveLatest(prefix string) (*Artifact, error)
	ListVersions(prefix string) ([]string, error)
	Close() error
}
