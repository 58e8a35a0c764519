package models

import (
	"time"

	"github.com/google/uuid"
)

// Metric name constants. Raw counters arrive in daily rows; derived metrics
// are computed by the aggregator and only present when their denominator is
// positive.
const (
	MetricImpressions = "impressions"
	MetricClicks      = "clicks"
	MetricConversions = "conversions"
	MetricLeads       = "leads"
	MetricSpend       = "spend"
	MetricCTR         = "ctr"
	MetricCPA         = "cpa"
	MetricCPL         = "cpl"
	MetricCPC         = "cpc"
)

// MetricSnapshot is a point-in-time view of an entity's performance. A
// missing key means the metric could not be computed for the window, which
// evaluation treats as "rule does not fire", never as zero.
type MetricSnapshot map[string]float64

// DailyMetric is one day of raw counters for an ad set, as ingested from
// the metrics collaborator.
type DailyMetric struct {
	ID          uuid.UUID `json:"id"`
	AdSetID     string    `json:"adset_id"`
	Date        time.Time `json:"date"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Conversions int64     `json:"conversions"`
	Leads       int64     `json:"leads"`
	Spend       float64   `json:"spend"`
	CreatedAt   time.Time `json:"created_at"`
}
