package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"campusQuestAPI/internal/parliament"
	"campusQuestAPI/middleware"
	"campusQuestAPI/services"
)

type ParliamentHandler struct {
	parliamentService *services.ParliamentService
}

func NewParliamentHandler(parliamentService *services.ParliamentService) *ParliamentHandler {
	return &ParliamentHandler{parliamentService: parliamentService}
}

func (h *ParliamentHandler) CreateMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	role, ok := middleware.GetRole(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req parliament.CreateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	membership, err := h.parliamentService.CreateMembership(ctx, role, &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, membership)
}

func (h *ParliamentHandler) DeactivateMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	role, ok := middleware.GetRole(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	membershipID, err := uuid.Parse(mux.Vars(r)["membershipId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid membership id")
		return
	}

	if err := h.parliamentService.Deactivate(ctx, role, membershipID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *ParliamentHandler) GetMyMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	membership, err := h.parliamentService.GetByUser(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, membership)
}

func (h *ParliamentHandler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	roster, err := h.parliamentService.List(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, roster)
}
