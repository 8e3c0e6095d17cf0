package handlers

import (
	"context"
	"net/http"
	"time"

	"campusQuestAPI/internal/report"
	"campusQuestAPI/middleware"
	"campusQuestAPI/services"
)

type ReportHandler struct {
	rewardService *services.RewardService
}

func NewReportHandler(rewardService *services.RewardService) *ReportHandler {
	return &ReportHandler{rewardService: rewardService}
}

// SubmitReport converts a self-reported grade into EP.
func (h *ReportHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req report.SubmitRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rep, err := h.rewardService.SubmitReport(ctx, userID, &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, rep)
}
