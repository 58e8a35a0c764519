package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
	"github.com/adpilot-inc/adpilot-engine/pkg/services"
)

// DecisionHandler handles decision lifecycle HTTP requests.
type DecisionHandler struct {
	decisionService services.DecisionService
	logger          *zap.Logger
}

// NewDecisionHandler creates a new decision handler.
func NewDecisionHandler(decisionService services.DecisionService, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisionService: decisionService,
		logger:          logger,
	}
}

// RegisterRoutes registers the decision handler's routes on the given mux.
func (h *DecisionHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/decisions"

	mux.HandleFunc("GET "+base, h.ListDecisions)
	mux.HandleFunc("GET "+base+"/{did}", h.GetDecision)
	mux.HandleFunc("POST "+base+"/{did}/approve", h.ApproveDecision)
	mux.HandleFunc("POST "+base+"/{did}/reject", h.RejectDecision)
}

// ListDecisions handles GET /api/decisions?user_id=&status=&limit=
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && !models.ValidDecisionStatus(status) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_status", "Unknown decision status"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 500 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	decisions, err := h.decisionService.List(r.Context(), userID, status, limit)
	if err != nil {
		h.logger.Error("Failed to list decisions", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_decisions_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if decisions == nil {
		decisions = make([]*models.Decision, 0)
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: decisions}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetDecision handles GET /api/decisions/{did}
func (h *DecisionHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	decisionID, ok := ParseDecisionID(w, r, h.logger)
	if !ok {
		return
	}

	decision, err := h.decisionService.Get(r.Context(), decisionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "decision_not_found", "Decision not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get decision", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_decision_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: decision}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
}

// ApproveDecision handles POST /api/decisions/{did}/approve
func (h *DecisionHandler) ApproveDecision(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.decisionService.Approve)
}

// RejectDecision handles POST /api/decisions/{did}/reject
func (h *DecisionHandler) RejectDecision(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.decisionService.Reject)
}

func (h *DecisionHandler) review(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, decisionID uuid.UUID, reviewer string) (*models.Decision, error)) {
	decisionID, ok := ParseDecisionID(w, r, h.logger)
	if !ok {
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reviewer == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "reviewer is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	decision, err := fn(r.Context(), decisionID, req.Reviewer)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			if err := ErrorResponse(w, http.StatusNotFound, "decision_not_found", "Decision not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrInvalidTransition):
			if err := ErrorResponse(w, http.StatusConflict, "invalid_transition", "Decision is not awaiting review"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Failed to review decision",
				zap.String("decision_id", decisionID.String()),
				zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "review_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: decision}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
