package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"campusQuestAPI/internal/quest"
	"campusQuestAPI/middleware"
	"campusQuestAPI/services"
)

type QuestHandler struct {
	questService *services.QuestService
}

func NewQuestHandler(questService *services.QuestService) *QuestHandler {
	return &QuestHandler{questService: questService}
}

// GetQuests returns the caller's quests for the window named by the period
// path variable, assigning fresh ones on first call.
func (h *QuestHandler) GetQuests(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	period := quest.Period(mux.Vars(r)["period"])

	quests, err := h.questService.GetOrAssign(ctx, userID, period)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, quests)
}

func (h *QuestHandler) CompleteQuest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	questID, err := uuid.Parse(mux.Vars(r)["questId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quest id")
		return
	}

	var req quest.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.QuestID = questID.String()
	if err := validate.Struct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	assignment, err := h.questService.Complete(ctx, userID, questID, req.Proof)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, assignment)
}
