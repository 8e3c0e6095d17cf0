package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"campusQuestAPI/internal/task"
	"campusQuestAPI/middleware"
	"campusQuestAPI/services"
)

type TaskHandler struct {
	taskService   *services.TaskService
	rewardService *services.RewardService
}

func NewTaskHandler(taskService *services.TaskService, rewardService *services.RewardService) *TaskHandler {
	return &TaskHandler{
		taskService:   taskService,
		rewardService: rewardService,
	}
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tasks, err := h.taskService.ListActive(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) ListMyInstances(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	instances, err := h.taskService.ListForUser(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, instances)
}

func (h *TaskHandler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req task.ClaimRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	instance, err := h.taskService.Claim(ctx, userID, taskID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, instance)
}

func (h *TaskHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	instanceID, err := uuid.Parse(mux.Vars(r)["instanceId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid instance id")
		return
	}

	instance, err := h.taskService.SubmitForReview(ctx, userID, instanceID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, instance)
}

// ApproveTask settles an instance with its XP reward. Admin only.
func (h *TaskHandler) ApproveTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	role, ok := middleware.GetRole(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req task.ApproveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	instanceID, err := uuid.Parse(req.InstanceID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid instance id")
		return
	}

	instance, err := h.rewardService.ApproveTask(ctx, role, instanceID, req.BonusXP)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, instance)
}

func (h *TaskHandler) RejectTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	role, ok := middleware.GetRole(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	instanceID, err := uuid.Parse(mux.Vars(r)["instanceId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid instance id")
		return
	}

	instance, err := h.taskService.Reject(ctx, role, instanceID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, instance)
}

func (h *TaskHandler) SetTopPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	role, ok := middleware.GetRole(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	instanceID, err := uuid.Parse(mux.Vars(r)["instanceId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid instance id")
		return
	}

	var req struct {
		Position int `json:"position" validate:"required,gte=1"`
	}
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	instance, err := h.taskService.SetTopPosition(ctx, role, instanceID, req.Position)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, instance)
}

// AwardTop pays the percentage curve out to the ranked instances. Admin only.
func (h *TaskHandler) AwardTop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	role, ok := middleware.GetRole(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req task.AwardTopRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	paid, err := h.rewardService.AwardTop(ctx, role, taskID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"winners_paid": paid})
}
