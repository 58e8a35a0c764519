package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
	"github.com/adpilot-inc/adpilot-engine/pkg/services"
)

// RuleHandler handles automation rule HTTP requests.
type RuleHandler struct {
	ruleService services.RuleService
	logger      *zap.Logger
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(ruleService services.RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		logger:      logger,
	}
}

// RegisterRoutes registers the rule handler's routes on the given mux.
func (h *RuleHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/rules"

	mux.HandleFunc("POST "+base, h.CreateRule)
	mux.HandleFunc("GET "+base, h.ListRules)
	mux.HandleFunc("GET "+base+"/{rid}", h.GetRule)
	mux.HandleFunc("PUT "+base+"/{rid}/toggle", h.ToggleRule)
	mux.HandleFunc("DELETE "+base+"/{rid}", h.DeleteRule)
	mux.HandleFunc("POST "+base+"/evaluate", h.EvaluateRules)
}

type createRuleRequest struct {
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ConditionType string    `json:"condition_type"`
	Priority      int       `json:"priority"`
	IsActive      *bool     `json:"is_active"`
	Conditions    []struct {
		Metric   string  `json:"metric"`
		Operator string  `json:"operator"`
		Value    float64 `json:"value"`
	} `json:"conditions"`
	Actions []struct {
		ActionType string `json:"action_type"`
		Value      string `json:"value"`
		Priority   int    `json:"priority"`
	} `json:"actions"`
}

// CreateRule handles POST /api/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	rule := &models.Rule{
		UserID:        req.UserID,
		Name:          req.Name,
		Description:   req.Description,
		ConditionType: req.ConditionType,
		Priority:      req.Priority,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	for _, c := range req.Conditions {
		rule.Conditions = append(rule.Conditions, models.RuleCondition{
			Metric: c.Metric, Operator: c.Operator, Value: c.Value,
		})
	}
	for _, a := range req.Actions {
		rule.Actions = append(rule.Actions, models.RuleAction{
			ActionType: a.ActionType, Value: a.Value, Priority: a.Priority,
		})
	}

	if err := h.ruleService.CreateRule(r.Context(), rule); err != nil {
		if errors.Is(err, apperrors.ErrInvalidRule) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_rule", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to create rule", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "create_rule_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: rule}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListRules handles GET /api/rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	filter := repositories.RuleFilter{
		ActiveOnly:    r.URL.Query().Get("active") == "true",
		ConditionType: r.URL.Query().Get("condition_type"),
		ActionType:    r.URL.Query().Get("action_type"),
	}
	if idStr := r.URL.Query().Get("user_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_user_id", "Invalid user_id"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		filter.UserID = id
	}

	rules, err := h.ruleService.ListRules(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list rules", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_rules_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if rules == nil {
		rules = make([]*models.Rule, 0)
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: rules}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetRule handles GET /api/rules/{rid}
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	rule, err := h.ruleService.GetRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "rule_not_found", "Rule not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get rule", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_rule_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: rule}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ToggleRule handles PUT /api/rules/{rid}/toggle
func (h *RuleHandler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	rule, err := h.ruleService.ToggleRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "rule_not_found", "Rule not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to toggle rule", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "toggle_rule_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: rule}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DeleteRule handles DELETE /api/rules/{rid}
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ruleService.DeleteRule(r.Context(), ruleID); err != nil {
		h.logger.Error("Failed to delete rule", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "delete_rule_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Rule deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type evaluateRequest struct {
	UserID  uuid.UUID             `json:"user_id"`
	Metrics models.MetricSnapshot `json:"metrics"`
}

// EvaluateRules handles POST /api/rules/evaluate. Dry-run: returns which
// active rules a metric snapshot would trigger, without creating decisions.
func (h *RuleHandler) EvaluateRules(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	triggered, err := h.ruleService.Evaluate(r.Context(), req.UserID, req.Metrics)
	if err != nil {
		h.logger.Error("Failed to evaluate rules", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "evaluate_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: triggered}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
