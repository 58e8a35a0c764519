package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adpilot-inc/adpilot-engine/pkg/database"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

// MetricRepository provides data access for daily ad set metrics.
type MetricRepository interface {
	// UpsertDaily inserts or replaces the rows for their (adset, date)
	// keys. Re-ingesting a day overwrites it; counters are totals, not
	// increments.
	UpsertDaily(ctx context.Context, rows []*models.DailyMetric) error

	// ListWindow returns an ad set's rows within [since, until], oldest
	// first.
	ListWindow(ctx context.Context, adsetID string, since, until time.Time) ([]*models.DailyMetric, error)
}

type metricRepository struct {
	db *database.DB
}

// NewMetricRepository creates a new MetricRepository.
func NewMetricRepository(db *database.DB) MetricRepository {
	return &metricRepository{db: db}
}

var _ MetricRepository = (*metricRepository)(nil)

func (r *metricRepository) UpsertDaily(ctx context.Context, rows []*models.DailyMetric) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now()
	batch := &pgx.Batch{}
	query := `
		INSERT INTO adset_metrics (adset_id, date, impressions, clicks, conversions, leads, spend, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (adset_id, date) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			leads = EXCLUDED.leads,
			spend = EXCLUDED.spend
		RETURNING id`

	for _, row := range rows {
		batch.Queue(query, row.AdSetID, row.Date, row.Impressions, row.Clicks,
			row.Conversions, row.Leads, row.Spend, now)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if err := results.QueryRow().Scan(&rows[i].ID); err != nil {
			return fmt.Errorf("failed to upsert metric row %d: %w", i, err)
		}
	}
	return nil
}

func (r *metricRepository) ListWindow(ctx context.Context, adsetID string, since, until time.Time) ([]*models.DailyMetric, error) {
	query := `
		SELECT id, adset_id, date, impressions, clicks, conversions, leads, spend, created_at
		FROM adset_metrics
		WHERE adset_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date`

	rows, err := r.db.Query(ctx, query, adsetID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.DailyMetric
	for rows.Next() {
		var m models.DailyMetric
		if err := rows.Scan(&m.ID, &m.AdSetID, &m.Date, &m.Impressions,
			&m.Clicks, &m.Conversions, &m.Leads, &m.Spend, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics: %w", err)
	}
	return metrics, nil
}
