package services

import (
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

// AggregateDaily folds raw daily rows into a single metric snapshot over
// the window. Counters are summed; derived metrics are added only when
// their denominator is positive, so a snapshot with zero impressions has
// no CTR key at all rather than a zero or infinite one.
func AggregateDaily(rows []*models.DailyMetric) models.MetricSnapshot {
	snapshot := models.MetricSnapshot{}
	if len(rows) == 0 {
		return snapshot
	}

	var impressions, clicks, conversions, leads int64
	var spend float64
	for _, row := range rows {
		impressions += row.Impressions
		clicks += row.Clicks
		conversions += row.Conversions
		leads += row.Leads
		spend += row.Spend
	}

	snapshot[models.MetricImpressions] = float64(impressions)
	snapshot[models.MetricClicks] = float64(clicks)
	snapshot[models.MetricConversions] = float64(conversions)
	snapshot[models.MetricLeads] = float64(leads)
	snapshot[models.MetricSpend] = spend

	if impressions > 0 {
		snapshot[models.MetricCTR] = float64(clicks) / float64(impressions) * 100
	}
	if clicks > 0 {
		snapshot[models.MetricCPC] = spend / float64(clicks)
	}
	if conversions > 0 {
		snapshot[models.MetricCPA] = spend / float64(conversions)
	}
	if leads > 0 {
		snapshot[models.MetricCPL] = spend / float64(leads)
	}

	return snapshot
}
