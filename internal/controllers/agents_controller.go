package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/NerdyNot/NerdyOps/internal/constants"
	"github.com/NerdyNot/NerdyOps/internal/dtos"
	"github.com/NerdyNot/NerdyOps/internal/services"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

type AgentsController struct {
	agentService *services.AgentService
	validate     *validator.Validate
}

func NewAgentsController(as *services.AgentService) *AgentsController {
	return &AgentsController{
		agentService: as,
		validate:     validator.New(),
	}
}

// ----------------------------------------------------------------
// POST /api/v1/agents/register  (agent key)
// ----------------------------------------------------------------
func (c *AgentsController) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var body dtos.RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"Invalid JSON for register payload", nil, err,
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

	agent, err := c.agentService.Register(r.Context(), &body)
	if err != nil {
		if errors.Is(err, utils.ErrUnsupportedOSType) {
			utils.RespondErrorWithCode(
				w, http.StatusBadRequest, utils.ErrCodeValidation,
				"Unsupported os_type", nil, err,
			)
			return
		}
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to register agent", nil, err,
		)
		return
	}

	dto := dtos.BuildAgentDTO(agent, time.Now().UTC(), constants.HeartbeatTimeout)
	utils.RespondWithJSON(w, http.StatusOK, dto)
}

// ----------------------------------------------------------------
// POST /api/v1/agents/heartbeat  (agent key)
// ----------------------------------------------------------------
func (c *AgentsController) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	var body dtos.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"Invalid JSON for heartbeat payload", nil, err,
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

	if err := c.agentService.Heartbeat(r.Context(), body.AgentID, body.Status); err != nil {
		if errors.Is(err, utils.ErrAgentNotFound) {
			utils.RespondErrorWithCode(
				w, http.StatusNotFound, utils.ErrCodeNotFound,
				"Agent not registered", nil, nil,
			)
			return
		}
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to record heartbeat", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----------------------------------------------------------------
// GET /api/v1/agents  (operator)
// ----------------------------------------------------------------
func (c *AgentsController) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := c.agentService.ListAgents(r.Context())
	if err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to list agents", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// ----------------------------------------------------------------
// DELETE /api/v1/agents/{agent_id}  (operator role)
//
// Removes the directory entry only; the agent's task history stays.
// ----------------------------------------------------------------
func (c *AgentsController) DeleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]
	if agentID == "" {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload,
			"agent_id path parameter required", nil, nil,
		)
		return
	}

	if err := c.agentService.DeleteAgent(r.Context(), agentID); err != nil {
		if errors.Is(err, utils.ErrAgentNotFound) {
			utils.RespondErrorWithCode(
				w, http.StatusNotFound, utils.ErrCodeNotFound,
				"Agent not found", nil, nil,
			)
			return
		}
		utils.RespondErrorWithCode(
			w, http.StatusInternalServerError, utils.ErrCodeInternal,
			"Failed to delete agent", nil, err,
		)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted", "agent_id": agentID})
}
