package train

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"mailscore/internal/artifact"
	"mailscore/internal/featurestore"
	"mailscore/internal/model"
	"mailscore/internal/registry"
	"mailscore/internal/schema"
)

type stubSource struct {
	rows    []featurestore.OutcomeRow
	aggs    []featurestore.SlotAggregate
	rowsErr error
	aggsErr error
}

func (s *stubSource) ConversionTrainingRows(context.Context) ([]featurestore.OutcomeRow, error) {
	return s.rows, s.rowsErr
}

func (s *stubSource) SlotAggregates(context.Context) ([]featurestore.SlotAggregate, error) {
	return s.aggs, s.aggsErr
}

type memStore struct {
	saved []*artifact.Artifact
}

func (m *memStore) SaveArtifact(a *artifact.Artifact) error {
	m.saved = append(m.saved, a)
	return nil
}

func (m *memStore) ResolveLatest(prefix string) (*artifact.Artifact, error) {
	for i := len(m.saved) - 1; i >= 0; i-- {
		if strings.HasPrefix(m.saved[i].Name, prefix) {
			return m.saved[i], nil
		}
	}
	return nil, artifact.ErrNotFound
}

func (m *memStore) ListVersions(prefix string) ([]string, error) {
	var out []string
	for _, a := range m.saved {
		if strings.HasPrefix(a.Name, prefix) {
			out = append(out, a.Name)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

type failingRegistry struct {
	calls int
}

func (f *failingRegistry) Register(context.Context, registry.Registration) error {
	f.calls++
	return errors.New("registry unreachable")
}

func newTestTrainer(data DataSource, store artifact.Store, reg Registrar) *Trainer {
	t := New(data, store, reg, DefaultConfig())
	t.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return t
}

func TestBuildSchemaDropsFirstLevel(t *testing.T) {
	rows := []schema.FeatureVector{
		{"industry": "finance", "open_rate": 0.4},
		{"industry": "technology", "open_rate": 0.2},
		{"industry": "healthcare", "open_rate": 0.1},
	}

	ts := BuildSchema(rows)

	want := []string{"industry_healthcare", "industry_technology", "open_rate"}
	if len(ts) != len(want) {
		t.Fatalf("schema = %v, want %v", ts, want)
	}
	for i, col := range want {
		if ts[i] != col {
			t.Errorf("schema[%d] = %q, want %q", i, ts[i], col)
		}
	}
}

func TestBuildSchemaDeterministic(t *testing.T) {
	rows := []schema.FeatureVector{
		{"a": "x", "b": 1.0, "c": "p"},
		{"a": "y", "b": 2.0, "c": "q"},
	}
	first := BuildSchema(rows)
	for i := 0; i < 20; i++ {
		again := BuildSchema(rows)
		if len(again) != len(first) {
			t.Fatalf("schema length changed: %v vs %v", again, first)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("schema order changed at %d: %v vs %v", j, again, first)
			}
		}
	}
}

func TestFitTreeRecoversStep(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		v := float64(i) / 40
		x = append(x, []float64{v})
		if v < 0.5 {
			y = append(y, 0)
		} else {
			y = append(y, 1)
		}
	}

	gains := make([]float64, 1)
	tree := fitTree(x, y, 1, treeConfig{maxDepth: 2, minSamplesSplit: 4, minSamplesLeaf: 2}, gains)

	if got := tree.Evaluate([]float64{0.1}); math.Abs(got) > 1e-9 {
		t.Errorf("Evaluate(0.1) = %v, want 0", got)
	}
	if got := tree.Evaluate([]float64{0.9}); math.Abs(got-1) > 1e-9 {
		t.Errorf("Evaluate(0.9) = %v, want 1", got)
	}

	root := tree.Root()
	if math.Abs(root.Value-0.5) > 1e-9 {
		t.Errorf("root value = %v, want 0.5", root.Value)
	}
	if root.Cover != 40 {
		t.Errorf("root cover = %v, want 40", root.Cover)
	}
	if gains[0] <= 0 {
		t.Errorf("expected positive gain for the splitting feature, got %v", gains[0])
	}
}

func TestFitTreeInternalValuesAreSubtreeMeans(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}}
	y := []float64{0, 0, 1, 1, 4, 4, 9, 9}

	tree := fitTree(x, y, 1, treeConfig{maxDepth: 3, minSamplesSplit: 2, minSamplesLeaf: 1}, make([]float64, 1))

	for i, n := range tree.Nodes {
		if n.Leaf() {
			continue
		}
		left := tree.Nodes[n.Left]
		right := tree.Nodes[n.Right]
		weighted := (left.Value*left.Cover + right.Value*right.Cover) / n.Cover
		if math.Abs(weighted-n.Value) > 1e-9 {
			t.Errorf("node %d: value %v != cover-weighted child mean %v", i, n.Value, weighted)
		}
		if left.Cover+right.Cover != n.Cover {
			t.Errorf("node %d: child covers %v+%v != %v", i, left.Cover, right.Cover, n.Cover)
		}
	}
}

func TestFitBoostedClassifierSeparable(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		v := float64(i%20) / 20
		x = append(x, []float64{v, float64(i % 3)})
		if v >= 0.5 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}

	ens := fitBoostedClassifier(x, y, 2, DefaultConfig().Boost)

	if ens.Kind != model.KindBoostedClassifier {
		t.Fatalf("kind = %q", ens.Kind)
	}
	if len(ens.Trees) != DefaultConfig().Boost.Rounds {
		t.Fatalf("trees = %d, want %d", len(ens.Trees), DefaultConfig().Boost.Rounds)
	}

	if p, err := ens.PredictProba([]float64{0.9, 1}); err != nil || p < 0.7 {
		t.Errorf("positive-region proba = %v (err %v), want > 0.7", p, err)
	}
	if p, err := ens.PredictProba([]float64{0.1, 1}); err != nil || p > 0.3 {
		t.Errorf("negative-region proba = %v (err %v), want < 0.3", p, err)
	}

	var total float64
	for _, imp := range ens.Importances {
		if imp < 0 {
			t.Errorf("negative importance %v", imp)
		}
		total += imp
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("importances sum = %v, want 1", total)
	}
	if ens.Importances[0] <= ens.Importances[1] {
		t.Errorf("splitting feature should dominate importances: %v", ens.Importances)
	}
}

func TestFitForestRegressorDeterministic(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 120; i++ {
		v := float64(i % 12)
		x = append(x, []float64{v})
		y = append(y, v/12)
	}

	cfg := DefaultConfig().Forest
	a := fitForestRegressor(x, y, 1, cfg)
	b := fitForestRegressor(x, y, 1, cfg)

	for _, probe := range []float64{0, 3, 7, 11} {
		pa, errA := a.Score([]float64{probe})
		pb, errB := b.Score([]float64{probe})
		if errA != nil || errB != nil {
			t.Fatalf("score errors: %v, %v", errA, errB)
		}
		if pa != pb {
			t.Errorf("probe %v: runs disagree (%v vs %v)", probe, pa, pb)
		}
	}
}

func TestRankAUC(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		labels []float64
		want   float64
	}{
		{"perfect", []float64{0.1, 0.2, 0.8, 0.9}, []float64{0, 0, 1, 1}, 1.0},
		{"inverted", []float64{0.9, 0.8, 0.2, 0.1}, []float64{0, 0, 1, 1}, 0.0},
		{"all ties", []float64{0.5, 0.5, 0.5, 0.5}, []float64{0, 0, 1, 1}, 0.5},
		{"one class", []float64{0.1, 0.9}, []float64{1, 1}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rankAUC(tc.scores, tc.labels); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("rankAUC = %v, want %v", got, tc.want)
			}
		})
	}
}

func conversionRows(n int) []featurestore.OutcomeRow {
	rows := make([]featurestore.OutcomeRow, 0, n)
	industries := []string{"technology", "finance", "healthcare"}
	for i := 0; i < n; i++ {
		openRate := float64(i%10) / 10
		label := 0
		if openRate >= 0.5 {
			label = 1
		}
		rows = append(rows, featurestore.OutcomeRow{
			Features: schema.FeatureVector{
				"industry":        industries[i%len(industries)],
				"open_rate":       openRate,
				"active_days_90d": float64(i % 30),
			},
			Label: label,
		})
	}
	return rows
}

func TestTrainConversionModel(t *testing.T) {
	store := &memStore{}
	trainer := newTestTrainer(&stubSource{rows: conversionRows(200)}, store, nil)

	art, err := trainer.TrainConversionModel(context.Background())
	if err != nil {
		t.Fatalf("TrainConversionModel: %v", err)
	}

	if art.Name != "conversion_predictor_v20240315" {
		t.Errorf("name = %q", art.Name)
	}
	if art.ModelType != "gradient_boosted_trees" {
		t.Errorf("model type = %q", art.ModelType)
	}
	if art.Model.Kind != model.KindBoostedClassifier {
		t.Errorf("kind = %q", art.Model.Kind)
	}
	if art.Metrics.AUC < 0.9 {
		t.Errorf("training AUC = %v, want >= 0.9 on separable data", art.Metrics.AUC)
	}
	if art.Metrics.TrainingSamples != 200 {
		t.Errorf("training samples = %d", art.Metrics.TrainingSamples)
	}

	if art.Explainer == nil || len(art.Explainer.ExpectedValues) != 2 {
		t.Fatalf("explainer state = %+v", art.Explainer)
	}
	expected := art.Model.ExpectedMargin()
	if art.Explainer.ExpectedValues[1] != expected || art.Explainer.ExpectedValues[0] != -expected {
		t.Errorf("expected values = %v, want [%v %v]", art.Explainer.ExpectedValues, -expected, expected)
	}

	if len(store.saved) != 1 || store.saved[0] != art {
		t.Errorf("artifact not persisted")
	}
}

func TestTrainConversionModelInsufficientData(t *testing.T) {
	store := &memStore{}
	trainer := newTestTrainer(&stubSource{rows: conversionRows(20)}, store, nil)

	art, err := trainer.TrainConversionModel(context.Background())
	if err != nil {
		t.Fatalf("TrainConversionModel: %v", err)
	}

	if art.Model.Kind != model.KindConstant {
		t.Errorf("kind = %q, want constant dummy", art.Model.Kind)
	}
	if art.ModelType != "dummy_classifier" {
		t.Errorf("model type = %q", art.ModelType)
	}
	if len(art.Schema) != 1 || art.Schema[0] != "dummy" {
		t.Errorf("schema = %v", art.Schema)
	}
	if art.Explainer != nil {
		t.Errorf("dummy artifact must not carry explainer state")
	}
	if art.Metrics.AUC != 0.5 {
		t.Errorf("dummy AUC = %v", art.Metrics.AUC)
	}
}

func TestTrainConversionModelUpstreamErrorFallsBackToDummy(t *testing.T) {
	store := &memStore{}
	trainer := newTestTrainer(&stubSource{rowsErr: errors.New("connection refused")}, store, nil)

	art, err := trainer.TrainConversionModel(context.Background())
	if err != nil {
		t.Fatalf("TrainConversionModel: %v", err)
	}
	if art.Model.Kind != model.KindConstant {
		t.Errorf("kind = %q, want constant dummy", art.Model.Kind)
	}
}

func TestRegistrationFailureDoesNotFailTraining(t *testing.T) {
	store := &memStore{}
	reg := &failingRegistry{}
	trainer := newTestTrainer(&stubSource{rows: conversionRows(200)}, store, reg)

	art, err := trainer.TrainConversionModel(context.Background())
	if err != nil {
		t.Fatalf("TrainConversionModel: %v", err)
	}
	if reg.calls != 1 {
		t.Errorf("registry calls = %d, want 1", reg.calls)
	}
	if len(store.saved) != 1 || store.saved[0] != art {
		t.Errorf("artifact not persisted despite registry failure")
	}
}

func slotAggregates(groups int) []featurestore.SlotAggregate {
	aggs := make([]featurestore.SlotAggregate, 0, groups)
	for i := 0; i < groups; i++ {
		day := i % 5
		hour := 7 + i%12
		rate := 0.1
		if day == 2 && hour == 10 {
			rate = 0.6
		}
		aggs = append(aggs, featurestore.SlotAggregate{
			DayOfWeek: day,
			HourOfDay: hour,
			Industry:  []string{"technology", "finance"}[i%2],
			Function:  "sales",
			OpenRate:  rate,
			Samples:   10,
		})
	}
	return aggs
}

func TestTrainSendTimeModel(t *testing.T) {
	store := &memStore{}
	trainer := newTestTrainer(&stubSource{aggs: slotAggregates(80)}, store, nil)

	art, err := trainer.TrainSendTimeModel(context.Background())
	if err != nil {
		t.Fatalf("TrainSendTimeModel: %v", err)
	}

	if art.Name != "send_time_optimizer_v20240315" {
		t.Errorf("name = %q", art.Name)
	}
	if art.Model.Kind != model.KindForestRegressor {
		t.Errorf("kind = %q", art.Model.Kind)
	}
	if art.ModelType != "random_forest" {
		t.Errorf("model type = %q", art.ModelType)
	}
	if art.Explainer != nil {
		t.Errorf("regressor must not carry explainer state")
	}
	if art.Metrics.MAE < 0 || art.Metrics.MAE > 0.3 {
		t.Errorf("training MAE = %v, out of plausible range", art.Metrics.MAE)
	}
}

func TestTrainSendTimeModelFiltersThinSlots(t *testing.T) {
	aggs := slotAggregates(80)
	for i := range aggs {
		if i >= 40 {
			aggs[i].Samples = 2
		}
	}
	store := &memStore{}
	trainer := newTestTrainer(&stubSource{aggs: aggs}, store, nil)

	art, err := trainer.TrainSendTimeModel(context.Background())
	if err != nil {
		t.Fatalf("TrainSendTimeModel: %v", err)
	}
	if art.Model.Kind != model.KindConstant {
		t.Errorf("kind = %q, want constant dummy after filtering thin slots", art.Model.Kind)
	}
	if art.Model.Base != 0.3 {
		t.Errorf("dummy rate = %v, want 0.3", art.Model.Base)
	}
	if art.ModelType != "dummy_regressor" {
		t.Errorf("model type = %q", art.ModelType)
	}
}
