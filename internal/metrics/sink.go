package metrics

// Sink adapts Metrics to the narrow interface the prediction path consumes,
// keeping the predict package free of a Prometheus dependency.
type Sink struct {
	m *Metrics
}

func NewSink(m *Metrics) *Sink {
	return &Sink{m: m}
}

func (s *Sink) PredictionsInc() {
	s.m.PredictionsTotal.Inc()
}

func (s *Sink) FailuresInc() {
	s.m.PredictionFailures.Inc()
	s.m.ErrorsTotal.Inc()
}

func (s *Sink) FallbackUseInc() {
	s.m.FallbackUse.Inc()
}

func (s *Sink) SlotSearchesInc() {
	s.m.SlotSearches.Inc()
}

func (s *Sink) ArtifactLoadsInc() {
	s.m.ArtifactLoads.Inc()
}

func (s *Sink) ModelAgeSet(seconds float64) {
	s.m.ModelAge.Set(seconds)
}

func (s *Sink) LatencyObserve(seconds float64) {
	s.m.PredictionLatency.Observe(seconds)
}

func (s *Sink) ScoreObserve(probability float64) {
	s.m.PredictionScores.Observe(probability)
}
