package predict

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"mailscore/internal/artifact"
	"mailscore/internal/schema"
)

const sendTimeModelPrefix = "send_time_optimizer"

// Candidate grid: every day of the week crossed with business hours 07:00
// through 18:00 inclusive, 84 slots total.
const (
	searchDays = 7
	hourStart  = 7
	hourEnd    = 19
)

// Slot is one send-time recommendation.
type Slot struct {
	DayOfWeek         int     `json:"day_of_week"`
	HourOfDay         int     `json:"hour_of_day"`
	PredictedOpenRate float64 `json:"predicted_open_rate"`
}

// DefaultSlot is returned when no send-time model has been trained: Tuesday
// 10:00 (Sunday-based day index) with the population open rate.
var DefaultSlot = Slot{DayOfWeek: 2, HourOfDay: 10, PredictedOpenRate: 0.3}

// Planner recommends the best send slot for an audience segment by scoring
// the full candidate grid with the latest send-time artifact.
type Planner struct {
	store   artifact.Store
	metrics MetricsSink

	mu  sync.RWMutex
	art *artifact.Artifact
}

// NewPlanner creates a planner over the given artifact store.
func NewPlanner(store artifact.Store, metrics MetricsSink) *Planner {
	if metrics == nil {
		metrics = nopSink{}
	}
	return &Planner{store: store, metrics: metrics}
}

// Reload resolves the latest send-time artifact and swaps it in.
func (p *Planner) Reload() error {
	art, err := p.store.ResolveLatest(sendTimeModelPrefix)
	if err != nil {
		return fmt.Errorf("resolve send time model: %w", err)
	}
	p.metrics.ArtifactLoadsInc()

	p.mu.Lock()
	p.art = art
	p.mu.Unlock()

	log.Info().Str("artifact", art.Name).Str("type", art.ModelType).
		Msg("send time model loaded")
	return nil
}

func (p *Planner) artifactRef() (*artifact.Artifact, error) {
	p.mu.RLock()
	art := p.art
	p.mu.RUnlock()
	if art != nil {
		return art, nil
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.art, nil
}

// BestSendTime scores all 84 day/hour candidates for the segment in one batch
// and returns the slot with the strictly highest predicted open rate; ties
// keep the earliest candidate in grid order. Without a trained model it
// returns DefaultSlot.
func (p *Planner) BestSendTime(industry, function string) (Slot, error) {
	p.metrics.SlotSearchesInc()

	art, err := p.artifactRef()
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			log.Info().Str("industry", industry).Str("function", function).
				Msg("no send time model trained, recommending default slot")
			return DefaultSlot, nil
		}
		p.metrics.FailuresInc()
		return Slot{}, err
	}

	slots := make([]Slot, 0, searchDays*(hourEnd-hourStart))
	rows := make([][]float64, 0, cap(slots))
	for day := 0; day < searchDays; day++ {
		for hour := hourStart; hour < hourEnd; hour++ {
			raw := schema.FeatureVector{
				"day_of_week": day,
				"hour_of_day": hour,
				"industry":    industry,
				"function":    function,
			}
			row, err := schema.Align(raw, art.Schema)
			if err != nil {
				p.metrics.FailuresInc()
				return Slot{}, fmt.Errorf("align slot candidate: %w", err)
			}
			slots = append(slots, Slot{DayOfWeek: day, HourOfDay: hour})
			rows = append(rows, row)
		}
	}

	rates, err := art.Model.PredictBatch(rows)
	if err != nil {
		p.metrics.FailuresInc()
		return Slot{}, fmt.Errorf("score slot grid: %w", err)
	}

	best := 0
	for i, rate := range rates {
		if rate > rates[best] {
			best = i
		}
	}

	slot := slots[best]
	slot.PredictedOpenRate = rates[best]
	return slot, nil
}
