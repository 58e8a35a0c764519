package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/config"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/services"
)

// AutomationHandler triggers automation sweeps over an ad account.
type AutomationHandler struct {
	sweepService services.SweepService
	cfg          *config.AutomationConfig
	logger       *zap.Logger
}

// NewAutomationHandler creates a new automation handler.
func NewAutomationHandler(sweepService services.SweepService, cfg *config.AutomationConfig, logger *zap.Logger) *AutomationHandler {
	return &AutomationHandler{
		sweepService: sweepService,
		cfg:          cfg,
		logger:       logger,
	}
}

// RegisterRoutes registers the automation handler's routes on the given mux.
func (h *AutomationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/automation/run", h.RunAutomation)
}

type runAutomationRequest struct {
	UserID          uuid.UUID `json:"user_id"`
	AccountID       string    `json:"account_id"`
	AutomationLevel string    `json:"automation_level"`
}

// RunAutomation handles POST /api/automation/run. The sweep runs in the
// background with its own deadline; the request returns 202 immediately.
func (h *AutomationHandler) RunAutomation(w http.ResponseWriter, r *http.Request) {
	var req runAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if req.UserID == uuid.Nil || req.AccountID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "user_id and account_id are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	level := req.AutomationLevel
	if level == "" {
		level = h.cfg.Level
	}
	if !models.ValidAutomationLevel(level) {
		if err := ErrorResponse(w, http.StatusBadRequest, "unknown_automation_level", "Unknown automation level: "+level); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Detach from the request context so the sweep outlives the response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SweepTimeout())
		defer cancel()

		result, err := h.sweepService.RunSweep(ctx, req.UserID, req.AccountID, level)
		if err != nil {
			h.logger.Error("Automation sweep failed",
				zap.String("account_id", req.AccountID),
				zap.Error(err))
			return
		}
		h.logger.Info("Automation sweep finished",
			zap.String("account_id", req.AccountID),
			zap.Int("adsets_evaluated", result.AdSetsEvaluated),
			zap.Int("rules_triggered", result.RulesTriggered),
			zap.Int("decisions_executed", result.DecisionsExecuted),
			zap.Int("decisions_failed", result.DecisionsFailed),
			zap.Int("decisions_pending", result.DecisionsPending),
			zap.Int("errors", len(result.Errors)))
	}()

	if err := WriteJSON(w, http.StatusAccepted, ApiResponse{
		Success: true,
		Message: "Automation sweep started",
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
