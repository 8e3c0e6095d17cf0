package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"campusQuestAPI/internal/duel"
	"campusQuestAPI/middleware"
	"campusQuestAPI/services"
)

type DuelHandler struct {
	duelService *services.DuelService
}

func NewDuelHandler(duelService *services.DuelService) *DuelHandler {
	return &DuelHandler{duelService: duelService}
}

func (h *DuelHandler) CreateDuel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req duel.CreateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	d, err := h.duelService.Create(ctx, userID, &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, d)
}

func (h *DuelHandler) AcceptDuel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duelID, err := uuid.Parse(mux.Vars(r)["duelId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid duel id")
		return
	}

	d, err := h.duelService.Accept(ctx, userID, duelID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, d)
}

func (h *DuelHandler) CancelDuel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duelID, err := uuid.Parse(mux.Vars(r)["duelId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid duel id")
		return
	}

	d, err := h.duelService.Cancel(ctx, userID, duelID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, d)
}

func (h *DuelHandler) ResolveDuel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duelID, err := uuid.Parse(mux.Vars(r)["duelId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid duel id")
		return
	}

	var req duel.ResolveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	winnerID, err := uuid.Parse(req.WinnerID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid winner id")
		return
	}

	d, err := h.duelService.Resolve(ctx, userID, duelID, winnerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, d)
}

func (h *DuelHandler) GetDuel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duelID, err := uuid.Parse(mux.Vars(r)["duelId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid duel id")
		return
	}

	d, err := h.duelService.Get(ctx, userID, duelID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, d)
}

func (h *DuelHandler) ListDuels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duels, err := h.duelService.ListForUser(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, duels)
}
