package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/NerdyNot/NerdyOps/internal/dtos"
	"github.com/NerdyNot/NerdyOps/internal/services"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

// RunnerController is the agent-facing side of the execution channel:
// pulling approved work and reporting results. Guarded by the shared
// agent key, not operator JWTs.
type RunnerController struct {
	taskService *services.TaskService
	validate    *validator.Validate
}

func NewRunnerController(ts *services.TaskService) *RunnerController {
	return &RunnerController{
		taskService: ts,
		validate:    validator.New(),
	}
}

// ----------------------------------------------------------------
// GET /api/v1/runner/next-task?agent_id=...
//
// 200 with the task, or 204 when nothing is waiting.
// ----------------------------------------------------------------
func (c *RunnerController) NextTaskHandler(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"agent_id query parameter required", nil, nil,
		)
		return
	}

	task, err := c.taskService.NextTask(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, utils.ErrAgentNotFound) {
			utils.RespondErrorWithCode(
				w, http.StatusNotFound, utils.ErrCodeNotFound,
				"Agent not registered", nil, nil,
			)
			return
		}
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to fetch next task", nil, err,
		)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.BuildTaskDTO(task))
}

// ----------------------------------------------------------------
// POST /api/v1/runner/report
//
// A non-empty error field marks the task failed; otherwise completed.
// ----------------------------------------------------------------
func (c *RunnerController) ReportResultHandler(w http.ResponseWriter, r *http.Request) {
	var body dtos.ReportResultRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"Invalid JSON for report payload", nil, err,
		)
		return
	}
	if err := c.validate.Struct(&body); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeValidation,
			err.Error(), nil, nil,
		)
		return
	}

	task, err := c.taskService.ReportResult(r.Context(), body.TaskID, body.Output, body.Error)
	if err != nil {
		var conflict *utils.TaskConflictError
		switch {
		case errors.Is(err, utils.ErrTaskNotFound):
			utils.RespondErrorWithCode(
				w, http.StatusNotFound, utils.ErrCodeNotFound,
				"Task not found", nil, nil,
			)
		case errors.As(err, &conflict):
			var details any
			if conflict.Current != nil {
				details = dtos.BuildTaskDTO(conflict.Current)
			}
			utils.RespondErrorWithCode(
				w, http.StatusConflict, utils.ErrCodeConflict,
				"Task is not awaiting a result", details, nil,
			)
		default:
			utils.RespondErrorWithCode(
				w, http.StatusInternalServerError, utils.ErrCodeInternal,
				"Failed to record result", nil, err,
			)
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.BuildTaskDTO(task))
}
