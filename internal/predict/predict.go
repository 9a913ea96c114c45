// Package predict serves conversion scores with explanations and send-time
// slot recommendations on top of the latest stored artifacts.
package predict

// MetricsSink is the subset of metrics the prediction path records. A nil
// sink is replaced by a no-op so callers without metrics wiring stay simple.
type MetricsSink interface {
	PredictionsInc()
	FailuresInc()
	FallbackUseInc()
	SlotSearchesInc()
	ArtifactLoadsInc()
	ModelAgeSet(seconds float64)
	LatencyObserve(seconds float64)
	ScoreObserve(probability float64)
}

type nopSink struct{}

func (nopSink) PredictionsInc()        {}
func (nopSink) FailuresInc()           {}
func (nopSink) FallbackUseInc()        {}
func (nopSink) SlotSearchesInc()       {}
func (nopSink) ArtifactLoadsInc()      {}
func (nopSink) ModelAgeSet(float64)    {}
func (nopSink) LatencyObserve(float64) {}
func (nopSink) ScoreObserve(float64)   {}
