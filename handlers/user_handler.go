package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/middleware"
	"campusQuestAPI/services"
)

type UserHandler struct {
	userService   *services.UserService
	ledgerService *services.LedgerService
}

func NewUserHandler(userService *services.UserService, ledgerService *services.LedgerService) *UserHandler {
	return &UserHandler{
		userService:   userService,
		ledgerService: ledgerService,
	}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	profile, err := h.userService.GetProfile(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	kind := ledger.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = ledger.KindEP
	}
	if !kind.Valid() {
		respondWithError(w, http.StatusBadRequest, "Unknown currency kind")
		return
	}

	balance, err := h.ledgerService.Balance(ctx, h.ledgerService.Pool(), userID, kind)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ledger.BalanceResponse{UserID: userID, Kind: kind, Balance: balance})
}

func (h *UserHandler) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	kind := ledger.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = ledger.KindEP
	}
	if !kind.Valid() {
		respondWithError(w, http.StatusBadRequest, "Unknown currency kind")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.ledgerService.History(ctx, userID, kind, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, entries)
}

func (h *UserHandler) GetSchoolLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	board, err := h.userService.SchoolLeaderboard(ctx, userID, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

func (h *UserHandler) GetParliamentLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	board, err := h.userService.ParliamentLeaderboard(ctx, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

func (h *UserHandler) GetRankTable(w http.ResponseWriter, r *http.Request) {
	kind := ledger.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = ledger.KindEP
	}
	if !kind.Valid() {
		respondWithError(w, http.StatusBadRequest, "Unknown currency kind")
		return
	}

	respondWithJSON(w, http.StatusOK, h.userService.RankTable(kind))
}
