package train

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mailscore/internal/artifact"
	"mailscore/internal/featurestore"
	"mailscore/internal/model"
	"mailscore/internal/registry"
	"mailscore/internal/schema"
)

const (
	conversionModelName = "conversion_predictor"
	sendTimeModelName   = "send_time_optimizer"
)

// DataSource feeds the trainer. *featurestore.Store satisfies it; tests use
// in-memory fixtures.
type DataSource interface {
	ConversionTrainingRows(ctx context.Context) ([]featurestore.OutcomeRow, error)
	SlotAggregates(ctx context.Context) ([]featurestore.SlotAggregate, error)
}

// Registrar mirrors the registry client's Register method.
type Registrar interface {
	Register(ctx context.Context, reg registry.Registration) error
}

// BoostConfig bounds the gradient boosted classifier fit.
type BoostConfig struct {
	Rounds          int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	LearningRate    float64
}

// ForestConfig bounds the bagged regression forest fit.
type ForestConfig struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
}

// Config carries the data-sufficiency thresholds and fit parameters.
type Config struct {
	MinSamples     int // conversion rows below this train a dummy
	MinSlotGroups  int // distinct slot aggregates below this train a dummy
	MinSlotSamples int // aggregates with fewer sends are discarded

	Boost  BoostConfig
	Forest ForestConfig
}

// DefaultConfig returns the thresholds and fit parameters used in production.
func DefaultConfig() Config {
	return Config{
		MinSamples:     100,
		MinSlotGroups:  50,
		MinSlotSamples: 5,
		Boost: BoostConfig{
			Rounds:          50,
			MaxDepth:        3,
			MinSamplesSplit: 10,
			MinSamplesLeaf:  5,
			LearningRate:    0.1,
		},
		Forest: ForestConfig{
			Trees:           25,
			MaxDepth:        8,
			MinSamplesSplit: 6,
			MinSamplesLeaf:  3,
			Seed:            42,
		},
	}
}

// Trainer fits both model families end to end: pull rows, encode, fit,
// persist the artifact, then register it. Registration failures are logged
// and never fail a training run.
type Trainer struct {
	data     DataSource
	store    artifact.Store
	registry Registrar
	cfg      Config
	now      func() time.Time
}

func New(data DataSource, store artifact.Store, reg Registrar, cfg Config) *Trainer {
	return &Trainer{data: data, store: store, registry: reg, cfg: cfg, now: time.Now}
}

// TrainConversionModel fits the boosted conversion classifier, or a dummy
// constant model when too few labeled outcomes exist.
func (t *Trainer) TrainConversionModel(ctx context.Context) (*artifact.Artifact, error) {
	rows, err := t.data.ConversionTrainingRows(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("conversion training rows unavailable")
		rows = nil
	}

	if len(rows) < t.cfg.MinSamples {
		log.Warn().Int("rows", len(rows)).Int("min", t.cfg.MinSamples).
			Msg("insufficient conversion data, training dummy model")
		return t.finish(ctx, t.dummyArtifact(conversionModelName, "dummy_classifier", 0, artifact.Metrics{AUC: 0.5, TrainingSamples: len(rows)}))
	}

	features := make([]schema.FeatureVector, len(rows))
	labels := make([]float64, len(rows))
	for i, row := range rows {
		features[i] = row.Features
		labels[i] = float64(row.Label)
	}

	ts := BuildSchema(features)
	x, y := encodeRows(features, labels, ts)
	if len(x) < t.cfg.MinSamples {
		log.Warn().Int("rows", len(x)).Msg("insufficient conversion data after encoding, training dummy model")
		return t.finish(ctx, t.dummyArtifact(conversionModelName, "dummy_classifier", 0, artifact.Metrics{AUC: 0.5, TrainingSamples: len(x)}))
	}

	ens := fitBoostedClassifier(x, y, len(ts), t.cfg.Boost)

	scores, err := ens.PredictBatch(x)
	if err != nil {
		return nil, fmt.Errorf("score training rows: %w", err)
	}
	auc := rankAUC(scores, y)
	expected := ens.ExpectedMargin()

	art := &artifact.Artifact{
		Name:      t.versionedName(conversionModelName),
		Version:   t.versionTag(),
		ModelType: "gradient_boosted_trees",
		CreatedAt: t.now().UTC(),
		Model:     ens,
		Schema:    ts,
		Explainer: &artifact.ExplainerState{ExpectedValues: []float64{-expected, expected}},
		Metrics:   artifact.Metrics{AUC: auc, TrainingSamples: len(x)},
	}

	log.Info().Str("artifact", art.Name).Float64("auc", auc).Int("samples", len(x)).
		Int("columns", len(ts)).Msg("conversion model trained")
	return t.finish(ctx, art)
}

// TrainSendTimeModel fits the slot open-rate regressor over per-slot
// aggregates, or a dummy constant model when coverage is too thin.
func (t *Trainer) TrainSendTimeModel(ctx context.Context) (*artifact.Artifact, error) {
	aggs, err := t.data.SlotAggregates(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("slot aggregates unavailable")
		aggs = nil
	}

	kept := aggs[:0:0]
	for _, a := range aggs {
		if a.Samples >= t.cfg.MinSlotSamples {
			kept = append(kept, a)
		}
	}

	if len(kept) < t.cfg.MinSlotGroups {
		log.Warn().Int("groups", len(kept)).Int("min", t.cfg.MinSlotGroups).
			Msg("insufficient slot coverage, training dummy model")
		return t.finish(ctx, t.dummyArtifact(sendTimeModelName, "dummy_regressor", 0.3, artifact.Metrics{TrainingSamples: len(kept)}))
	}

	features := make([]schema.FeatureVector, len(kept))
	targets := make([]float64, len(kept))
	for i, a := range kept {
		features[i] = schema.FeatureVector{
			"day_of_week": a.DayOfWeek,
			"hour_of_day": a.HourOfDay,
			"industry":    a.Industry,
			"function":    a.Function,
		}
		targets[i] = a.OpenRate
	}

	ts := BuildSchema(features)
	x, y := encodeRows(features, targets, ts)

	ens := fitForestRegressor(x, y, len(ts), t.cfg.Forest)

	predicted, err := ens.PredictBatch(x)
	if err != nil {
		return nil, fmt.Errorf("score slot grid: %w", err)
	}
	mae := meanAbsError(predicted, y)

	art := &artifact.Artifact{
		Name:      t.versionedName(sendTimeModelName),
		Version:   t.versionTag(),
		ModelType: "random_forest",
		CreatedAt: t.now().UTC(),
		Model:     ens,
		Schema:    ts,
		Metrics:   artifact.Metrics{MAE: mae, TrainingSamples: len(x)},
	}

	log.Info().Str("artifact", art.Name).Float64("mae", mae).Int("groups", len(x)).
		Msg("send time model trained")
	return t.finish(ctx, art)
}

func (t *Trainer) dummyArtifact(base, modelType string, constant float64, metrics artifact.Metrics) *artifact.Artifact {
	return &artifact.Artifact{
		Name:      t.versionedName(base),
		Version:   t.versionTag(),
		ModelType: modelType,
		CreatedAt: t.now().UTC(),
		Model:     &model.Ensemble{Kind: model.KindConstant, Base: constant},
		Schema:    schema.TrainingSchema{"dummy"},
		Metrics:   metrics,
	}
}

// finish persists the artifact and then registers it. A save failure aborts;
// a registration failure only warns.
func (t *Trainer) finish(ctx context.Context, art *artifact.Artifact) (*artifact.Artifact, error) {
	if err := t.store.SaveArtifact(art); err != nil {
		return nil, fmt.Errorf("save artifact %s: %w", art.Name, err)
	}

	if t.registry != nil {
		reg := registry.Registration{
			ModelName:       art.Name,
			ModelVersion:    art.Version,
			ModelType:       art.ModelType,
			ModelPath:       fmt.Sprintf("bolt://artifacts/%s", art.Name),
			FeatureColumns:  art.Schema,
			Metrics:         map[string]float64{"auc": art.Metrics.AUC, "mae": art.Metrics.MAE},
			TrainingSamples: art.Metrics.TrainingSamples,
		}
		if err := t.registry.Register(ctx, reg); err != nil {
			log.Warn().Err(err).Str("artifact", art.Name).Msg("model registry registration failed")
		}
	}

	return art, nil
}

func (t *Trainer) versionTag() string {
	return t.now().UTC().Format("20060102")
}

func (t *Trainer) versionedName(base string) string {
	return fmt.Sprintf("%s_v%s", base, t.versionTag())
}
