package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"mailscore/internal/artifact"
	"mailscore/internal/explain"
	"mailscore/internal/model"
	"mailscore/internal/schema"
)

const conversionModelPrefix = "conversion_predictor"

// DefaultCacheSize bounds the per-scorer explanation cache.
const DefaultCacheSize = 1024

// Scorer scores a single email's conversion likelihood and explains it. The
// loaded artifact is resolved lazily on first use and pinned until Reload;
// identical feature vectors against the same artifact are served from an LRU
// cache.
type Scorer struct {
	store   artifact.Store
	metrics MetricsSink
	cache   *lru.Cache[string, *explain.Explanation]

	mu  sync.RWMutex
	art *artifact.Artifact
}

// NewScorer creates a scorer over the given artifact store. cacheSize <= 0
// selects DefaultCacheSize.
func NewScorer(store artifact.Store, metrics MetricsSink, cacheSize int) (*Scorer, error) {
	if metrics == nil {
		metrics = nopSink{}
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *explain.Explanation](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}
	return &Scorer{store: store, metrics: metrics, cache: cache}, nil
}

// Reload resolves the latest conversion artifact and swaps it in, purging the
// explanation cache. Returns an error wrapping schema.ErrNotReady when no
// conversion model has been trained yet.
func (s *Scorer) Reload() error {
	art, err := s.store.ResolveLatest(conversionModelPrefix)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return fmt.Errorf("no conversion model trained: %w", schema.ErrNotReady)
		}
		return fmt.Errorf("resolve conversion model: %w", err)
	}
	s.metrics.ArtifactLoadsInc()
	s.metrics.ModelAgeSet(time.Since(art.CreatedAt).Seconds())

	s.mu.Lock()
	s.art = art
	s.mu.Unlock()
	s.cache.Purge()

	log.Info().Str("artifact", art.Name).Str("type", art.ModelType).
		Int("columns", len(art.Schema)).Msg("conversion model loaded")
	return nil
}

func (s *Scorer) artifactRef() (*artifact.Artifact, error) {
	s.mu.RLock()
	art := s.art
	s.mu.RUnlock()
	if art != nil {
		return art, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.art, nil
}

// ScoreEmail scores one raw feature vector and returns the ranked-factor
// explanation. The exact attribution strategy is used when the artifact
// carries explainer state; any exact-strategy failure falls back to the
// importance approximation instead of failing the call.
func (s *Scorer) ScoreEmail(raw schema.FeatureVector) (*explain.Explanation, error) {
	start := time.Now()
	defer func() { s.metrics.LatencyObserve(time.Since(start).Seconds()) }()
	s.metrics.PredictionsInc()

	art, err := s.artifactRef()
	if err != nil {
		s.metrics.FailuresInc()
		return nil, err
	}

	key := cacheKey(art.Name, raw)
	if key != "" {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	row, err := schema.Align(raw, art.Schema)
	if err != nil {
		s.metrics.FailuresInc()
		return nil, fmt.Errorf("align features: %w", err)
	}

	probability, err := art.Model.PredictProba(row)
	if err != nil {
		s.metrics.FailuresInc()
		return nil, fmt.Errorf("score row: %w", err)
	}

	att := s.attribute(row, art)
	baseline := att.Baseline
	if att.Method == explain.MethodTreePath {
		baseline = model.Sigmoid(att.Baseline)
	}

	exp := explain.Compose(probability, baseline, att.Method, art.Schema, row, att.Impacts)
	s.metrics.ScoreObserve(probability)

	if key != "" {
		s.cache.Add(key, exp)
	}
	return exp, nil
}

// attribute runs the exact strategy when explainer state exists and falls
// back to the importance approximation on any failure.
func (s *Scorer) attribute(row []float64, art *artifact.Artifact) *explain.Attribution {
	if art.Explainer != nil {
		att, err := explain.NewTreeStrategy(art.Explainer).Explain(row, art.Model)
		if err == nil {
			return att
		}
		s.metrics.FallbackUseInc()
		log.Warn().Err(err).Str("artifact", art.Name).
			Msg("exact attribution failed, falling back to feature importance")
	}

	att, _ := explain.ImportanceStrategy{}.Explain(row, art.Model)
	return att
}

// cacheKey serializes the raw vector deterministically (JSON object keys are
// emitted sorted) and scopes it to the artifact that would score it. Returns
// "" for unencodable vectors, which simply bypasses the cache.
func cacheKey(artifactName string, raw schema.FeatureVector) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return artifactName + "|" + string(b)
}
