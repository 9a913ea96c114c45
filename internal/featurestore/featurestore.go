// Package featurestore reads training rows from the relational feature
// store. The store is an opaque upstream collaborator: queries return tabular
// rows and nothing here interprets what a feature means. Read failures are
// UpstreamDataErrors, recoverable by the training path and never fatal to the
// process.
package featurestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"mailscore/internal/schema"
)

// ErrUpstreamData wraps feature-store read failures so callers can apply the
// documented empty-result fallback.
var ErrUpstreamData = errors.New("featurestore: upstream read failed")

// OutcomeRow is one labeled email outcome joined with its company, person,
// and email features.
type OutcomeRow struct {
	Features schema.FeatureVector
	Label    int
}

// SlotAggregate is the per-(day, hour, industry, function) open-rate
// aggregate the send-time model trains on.
type SlotAggregate struct {
	DayOfWeek int
	HourOfDay int
	Industry  string
	Function  string
	OpenRate  float64
	Samples   int
}

// ErrorCounter records upstream read failures. prometheus.Counter satisfies
// it; a nil counter is replaced by a no-op.
type ErrorCounter interface {
	Inc()
}

type nopCounter struct{}

func (nopCounter) Inc() {}

// Store reads from the feature-store database via a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	errs ErrorCounter
}

// New connects to the feature store.
func New(ctx context.Context, databaseURL string, errs ErrorCounter) (*Store, error) {
	if errs == nil {
		errs = nopCounter{}
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("featurestore: connect: %w", err)
	}
	return &Store{pool: pool, errs: errs}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const conversionRowsQuery = `
SELECT
    COALESCE((fs_company.features->>'industry')::text, 'unknown')          AS industry,
    COALESCE((fs_company.features->>'active_days_90d')::int, 0)            AS active_days_90d,
    COALESCE((fs_company.features->>'open_rate')::numeric, 0)              AS open_rate,
    COALESCE((fs_person.features->>'seniority_level')::text, 'unknown')    AS seniority_level,
    COALESCE((fs_person.features->>'person_open_rate')::numeric, 0)        AS person_open_rate,
    eo.converted::int                                                      AS label
FROM email_outcomes eo
LEFT JOIN feature_store fs_company
    ON fs_company.entity_type = 'company' AND fs_company.entity_id = eo.company_id
LEFT JOIN feature_store fs_person
    ON fs_person.entity_type = 'person' AND fs_person.entity_id = eo.person_id
WHERE eo.sent_at > NOW() - INTERVAL '180 days'
  AND eo.delivered = TRUE
LIMIT 1000`

// ConversionTrainingRows fetches labeled outcome rows for conversion
// training. On read failure it logs and returns an empty result wrapped with
// ErrUpstreamData; the trainer falls through to its insufficient-data path.
func (s *Store) ConversionTrainingRows(ctx context.Context) ([]OutcomeRow, error) {
	rows, err := s.pool.Query(ctx, conversionRowsQuery)
	if err != nil {
		s.errs.Inc()
		log.Warn().Err(err).Msg("feature store read failed, returning empty training set")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamData, err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var (
			industry, seniority             string
			activeDays, label               int
			companyOpenRate, personOpenRate float64
		)
		if err := rows.Scan(&industry, &activeDays, &companyOpenRate, &seniority, &personOpenRate, &label); err != nil {
			log.Warn().Err(err).Msg("skipping malformed training row")
			continue
		}
		out = append(out, OutcomeRow{
			Features: schema.FeatureVector{
				"industry":         industry,
				"active_days_90d":  activeDays,
				"open_rate":        companyOpenRate,
				"seniority_level":  seniority,
				"person_open_rate": personOpenRate,
			},
			Label: label,
		})
	}
	if err := rows.Err(); err != nil {
		s.errs.Inc()
		log.Warn().Err(err).Msg("feature store read interrupted, returning empty training set")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamData, err)
	}
	return out, nil
}

const slotAggregatesQuery = `
SELECT
    EXTRACT(DOW FROM eo.sent_at)::int                 AS day_of_week,
    EXTRACT(HOUR FROM eo.sent_at)::int                AS hour_of_day,
    COALESCE(c.industry, 'unknown')                   AS industry,
    COALESCE(p.function, 'unknown')                   AS function,
    AVG(CASE WHEN eo.opened THEN 1 ELSE 0 END)::float AS open_rate,
    COUNT(*)::int                                     AS sample_size
FROM email_outcomes eo
LEFT JOIN companies c ON c.id = eo.company_id
LEFT JOIN people p ON p.id = eo.person_id
WHERE eo.sent_at > NOW() - INTERVAL '180 days'
  AND eo.delivered = TRUE
GROUP BY 1, 2, 3, 4`

// SlotAggregates fetches open-rate aggregates grouped by time slot and
// recipient segment for send-time training. The failure policy matches
// ConversionTrainingRows.
func (s *Store) SlotAggregates(ctx context.Context) ([]SlotAggregate, error) {
	rows, err := s.pool.Query(ctx, slotAggregatesQuery)
	if err != nil {
		s.errs.Inc()
		log.Warn().Err(err).Msg("feature store read failed, returning empty slot aggregates")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamData, err)
	}
	defer rows.Close()

	var out []SlotAggregate
	for rows.Next() {
		var agg SlotAggregate
		if err := rows.Scan(&agg.DayOfWeek, &agg.HourOfDay, &agg.Industry, &agg.Function, &agg.OpenRate, &agg.Samples); err != nil {
			log.Warn().Err(err).Msg("skipping malformed slot aggregate")
			continue
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		s.errs.Inc()
		log.Warn().Err(err).Msg("feature store read interrupted, returning empty slot aggregates")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamData, err)
	}
	return out, nil
}
