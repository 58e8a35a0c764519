package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
	"github.com/adpilot-inc/adpilot-engine/pkg/services"
)

// MetricsHandler ingests daily performance rows for ad sets and serves the
// aggregated snapshot the rule engine evaluates against.
type MetricsHandler struct {
	metricRepo repositories.MetricRepository
	windowDays int
	logger     *zap.Logger
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(metricRepo repositories.MetricRepository, windowDays int, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{
		metricRepo: metricRepo,
		windowDays: windowDays,
		logger:     logger,
	}
}

// RegisterRoutes registers the metrics handler's routes on the given mux.
func (h *MetricsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/metrics/adsets/{aid}", h.IngestMetrics)
	mux.HandleFunc("GET /api/metrics/adsets/{aid}", h.GetSnapshot)
}

type dailyMetricRow struct {
	Date        string  `json:"date"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Leads       int64   `json:"leads"`
	Spend       float64 `json:"spend"`
}

// IngestMetrics handles POST /api/metrics/adsets/{aid}. Rows are keyed by
// (adset, date); re-posting a date replaces that day's numbers.
func (h *MetricsHandler) IngestMetrics(w http.ResponseWriter, r *http.Request) {
	adsetID := r.PathValue("aid")
	if adsetID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_adset_id", "Missing ad set ID"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var req struct {
		Rows []dailyMetricRow `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Rows) == 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "rows is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	rows := make([]*models.DailyMetric, 0, len(req.Rows))
	for _, row := range req.Rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_date", "Dates must be YYYY-MM-DD"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if row.Impressions < 0 || row.Clicks < 0 || row.Conversions < 0 || row.Leads < 0 || row.Spend < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_metrics", "Counts and spend must be non-negative"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		rows = append(rows, &models.DailyMetric{
			AdSetID:     adsetID,
			Date:        date,
			Impressions: row.Impressions,
			Clicks:      row.Clicks,
			Conversions: row.Conversions,
			Leads:       row.Leads,
			Spend:       row.Spend,
		})
	}

	if err := h.metricRepo.UpsertDaily(r.Context(), rows); err != nil {
		h.logger.Error("Failed to store metrics",
			zap.String("adset_id", adsetID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "ingest_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Message: "Metrics stored"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetSnapshot handles GET /api/metrics/adsets/{aid}. Returns the aggregated
// snapshot over the configured lookback window, derived ratios included.
func (h *MetricsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	adsetID := r.PathValue("aid")
	if adsetID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_adset_id", "Missing ad set ID"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	until := time.Now().UTC()
	since := until.AddDate(0, 0, -h.windowDays)

	rows, err := h.metricRepo.ListWindow(r.Context(), adsetID, since, until)
	if err != nil {
		h.logger.Error("Failed to load metrics",
			zap.String("adset_id", adsetID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "load_metrics_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	snapshot := services.AggregateDaily(rows)
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: snapshot}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
