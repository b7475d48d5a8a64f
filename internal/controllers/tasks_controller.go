package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/NerdyNot/NerdyOps/internal/dtos"
	"github.com/NerdyNot/NerdyOps/internal/middleware"
	"github.com/NerdyNot/NerdyOps/internal/services"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

/*
TasksController is the operator surface of the task lifecycle. Every
mutating response carries the authoritative stored record (or, on
conflict, the current state that won), so the dashboard reconciles by
refetch-and-prune instead of guessing.
*/
type TasksController struct {
	taskService *services.TaskService
	validate    *validator.Validate
}

func NewTasksController(ts *services.TaskService) *TasksController {
	return &TasksController{
		taskService: ts,
		validate:    validator.New(),
	}
}

func requesterID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(middleware.ContextKeyUserID).(string)
	return id, ok && id != ""
}

// ----------------------------------------------------------------
// POST /api/v1/tasks/submit
//
// Single-agent and multi-agent submission share this endpoint: the
// input is fanned out to every listed agent as an independent task.
// ----------------------------------------------------------------
func (c *TasksController) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		utils.RespondErrorWithCode(
			w, http.StatusUnauthorized, utils.ErrCodeUnauthorized,
			"No userID in context", nil, nil,
		)
		return
	}

	var body dtos.SubmitTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"Invalid JSON for submit payload", nil, err,
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
	targets := body.TargetAgentIDs()
	if len(targets) == 0 {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeValidation,
			"Either agent_id or agent_ids must name at least one agent", nil, utils.ErrNoTargets,
		)
		return
	}

	entries := c.taskService.Submit(r.Context(), body.Input, userID, targets)

	results := make([]dtos.DispatchEntryDTO, 0, len(entries))
	status := http.StatusCreated
	for _, e := range entries {
		dto := dtos.DispatchEntryDTO{AgentID: e.AgentID}
		if e.Err != nil {
			dto.Status = "error"
			dto.Error = e.Err.Error()
			status = http.StatusMultiStatus
		} else {
			dto.Status = "created"
			dto.TaskID = utils.Ptr(e.Task.ID)
			t := dtos.BuildTaskDTO(e.Task)
			dto.Task = &t
		}
		results = append(results, dto)
	}

	utils.RespondWithJSON(w, status, dtos.SubmitTasksResponse{
		Results: results,
		Total:   len(results),
	})
}

// ----------------------------------------------------------------
// GET /api/v1/tasks/pending[?agent_id=...]
// ----------------------------------------------------------------
func (c *TasksController) ListPendingHandler(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")

	tasks, err := c.taskService.ListPending(r.Context(), agentID)
	if err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to list pending tasks", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ListTasksResponse{
		Tasks: dtos.BuildTaskDTOs(tasks),
		Total: len(tasks),
	})
}

// ----------------------------------------------------------------
// GET /api/v1/tasks/completed
// ----------------------------------------------------------------
func (c *TasksController) ListCompletedHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := c.taskService.ListCompleted(r.Context())
	if err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to list completed tasks", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ListTasksResponse{
		Tasks: dtos.BuildTaskDTOs(tasks),
		Total: len(tasks),
	})
}

// ----------------------------------------------------------------
// GET /api/v1/tasks/summary
// ----------------------------------------------------------------
func (c *TasksController) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := c.taskService.Summary(r.Context())
	if err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to build task summary", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, summary)
}

// ----------------------------------------------------------------
// GET /api/v1/tasks/agent/{agent_id}
// ----------------------------------------------------------------
func (c *TasksController) ListForAgentHandler(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]

	tasks, err := c.taskService.ListForAgent(r.Context(), agentID)
	if err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to list agent tasks", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.ListTasksResponse{
		Tasks: dtos.BuildTaskDTOs(tasks),
		Total: len(tasks),
	})
}

// ----------------------------------------------------------------
// GET /api/v1/tasks/{task_id}
// ----------------------------------------------------------------
func (c *TasksController) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(mux.Vars(r)["task_id"])
	if err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"task_id must be a UUID", nil, err,
		)
		return
	}

	task, err := c.taskService.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, utils.ErrTaskNotFound) {
			utils.RespondErrorWithCode(
				w, http.StatusNotFound, utils.ErrCodeNotFound,
				"Task not found", nil, nil,
			)
			return
		}
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to fetch task", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.BuildTaskDTO(task))
}

// ----------------------------------------------------------------
// POST /api/v1/tasks/approve and /api/v1/tasks/reject  (operator role)
// ----------------------------------------------------------------
func (c *TasksController) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	c.decideHandler(w, r, true)
}

func (c *TasksController) RejectHandler(w http.ResponseWriter, r *http.Request) {
	c.decideHandler(w, r, false)
}

func (c *TasksController) decideHandler(w http.ResponseWriter, r *http.Request, approve bool) {
	userID, ok := requesterID(r)
	if !ok {
		utils.RespondErrorWithCode(
			w, http.StatusUnauthorized, utils.ErrCodeUnauthorized,
			"No userID in context", nil, nil,
		)
		return
	}

	var body dtos.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"Invalid JSON for decision payload", nil, err,
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

	outcome := c.taskService.Decide(r.Context(), body.TaskID, userID, approve)
	switch outcome.Result {
	case services.DecisionAccepted:
		utils.RespondWithJSON(w, http.StatusOK, dtos.BuildTaskDTO(outcome.Task))

	case services.DecisionConflict:
		// 409 with the current record: the task was already decided or
		// finished. The client replaces its stale copy with Details.
		var details any
		if outcome.Task != nil {
			details = dtos.BuildTaskDTO(outcome.Task)
		}
		utils.RespondErrorWithCode(
			w, http.StatusConflict, utils.ErrCodeConflict,
			"Task is no longer pending", details, nil,
		)

	case services.DecisionNotFound:
		utils.RespondErrorWithCode(
			w, http.StatusNotFound, utils.ErrCodeNotFound,
			"Task not found", nil, nil,
		)

	default:
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to apply decision", nil, outcome.Err,
		)
	}
}

// ----------------------------------------------------------------
// POST /api/v1/tasks/batch-approve and /api/v1/tasks/batch-reject
//
// Always 200 with one outcome per requested id; partial failure is
// expressed per entry, never as an aborted batch.
// ----------------------------------------------------------------
func (c *TasksController) BatchApproveHandler(w http.ResponseWriter, r *http.Request) {
	c.batchDecideHandler(w, r, true)
}

func (c *TasksController) BatchRejectHandler(w http.ResponseWriter, r *http.Request) {
	c.batchDecideHandler(w, r, false)
}

func (c *TasksController) batchDecideHandler(w http.ResponseWriter, r *http.Request, approve bool) {
	userID, ok := requesterID(r)
	if !ok {
		utils.RespondErrorWithCode(
			w, http.StatusUnauthorized, utils.ErrCodeUnauthorized,
			"No userID in context", nil, nil,
		)
		return
	}

	var body dtos.BatchDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"Invalid JSON for batch decision payload", nil, err,
		)
		return
	}

	outcomes := c.taskService.DecideBatch(r.Context(), body.TaskIDs, userID, approve)

	results := make([]dtos.DecisionOutcomeDTO, 0, len(outcomes))
	for _, o := range outcomes {
		dto := dtos.DecisionOutcomeDTO{
			TaskID: o.TaskID,
			Result: string(o.Result),
		}
		if o.Task != nil {
			t := dtos.BuildTaskDTO(o.Task)
			dto.Task = &t
		}
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
		results = append(results, dto)
	}

	utils.RespondWithJSON(w, http.StatusOK, dtos.BatchDecisionResponse{
		Results: results,
		Total:   len(results),
	})
}
