package dtos

import (
	"time"

	"github.com/google/uuid"

	"github.com/NerdyNot/NerdyOps/internal/models"
)

/*
SubmitTasksRequest fans the same input out to every targeted agent.
Both payload shapes are accepted: a singular agent_id or an agent_ids
list. At least one target must be given.
*/
type SubmitTasksRequest struct {
	Input    string   `json:"input" validate:"required"`
	AgentID  string   `json:"agent_id" validate:"omitempty"`
	AgentIDs []string `json:"agent_ids" validate:"omitempty,min=1,dive,required"`
}

// TargetAgentIDs normalizes the two payload shapes to one target list.
// The list form wins when both are present.
func (r *SubmitTasksRequest) TargetAgentIDs() []string {
	if len(r.AgentIDs) > 0 {
		return r.AgentIDs
	}
	if r.AgentID != "" {
		return []string{r.AgentID}
	}
	return nil
}

/*
DispatchEntryDTO is one per-target outcome of a fan-out submission. The
response always carries exactly one entry per requested agent, in
request order; a failed target never rolls back its siblings.
*/
type DispatchEntryDTO struct {
	AgentID string     `json:"agent_id"`
	TaskID  *uuid.UUID `json:"task_id,omitempty"`
	Status  string     `json:"status"` // "created" or "error"
	Error   string     `json:"error,omitempty"`
	Task    *TaskDTO   `json:"task,omitempty"`
}

type SubmitTasksResponse struct {
	Results []DispatchEntryDTO `json:"results"`
	Total   int                `json:"total"`
}

type DecisionRequest struct {
	TaskID uuid.UUID `json:"task_id" validate:"required"`
}

type BatchDecisionRequest struct {
	TaskIDs []uuid.UUID `json:"task_ids" validate:"required"`
}

/*
DecisionOutcomeDTO is the per-task verdict of an approve/reject call.
On "conflict" the Task field holds the authoritative current record so
the dashboard can reconcile without a second fetch.
*/
type DecisionOutcomeDTO struct {
	TaskID uuid.UUID `json:"task_id"`
	Result string    `json:"result"` // accepted | conflict | not_found | error
	Task   *TaskDTO  `json:"task,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type BatchDecisionResponse struct {
	Results []DecisionOutcomeDTO `json:"results"`
	Total   int                  `json:"total"`
}

type TaskDTO struct {
	TaskID         uuid.UUID  `json:"task_id"`
	AgentID        string     `json:"agent_id"`
	Input          string     `json:"input"`
	ScriptCode     string     `json:"script_code,omitempty"`
	Status         string     `json:"status"`
	SubmittedBy    string     `json:"submitted_by"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	ApprovedBy     *string    `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Output         string     `json:"output,omitempty"`
	Error          string     `json:"error,omitempty"`
	Interpretation string     `json:"interpretation,omitempty"`
	RowVersion     int64      `json:"row_version"`
}

type ListTasksResponse struct {
	Tasks []TaskDTO `json:"tasks"`
	Total int       `json:"total"`
}

/*
TaskSummaryResponse gives the dashboard its headline counters. Failures
means tasks whose execution reported an error.
*/
type TaskSummaryResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type ReportResultRequest struct {
	TaskID uuid.UUID `json:"task_id" validate:"required"`
	Output string    `json:"output"`
	Error  string    `json:"error"`
}

func BuildTaskDTO(t *models.Task) TaskDTO {
	return TaskDTO{
		TaskID:         t.ID,
		AgentID:        t.AgentID,
		Input:          t.Input,
		ScriptCode:     t.ScriptCode,
		Status:         string(t.Status),
		SubmittedBy:    t.SubmittedBy,
		SubmittedAt:    t.SubmittedAt,
		ApprovedBy:     t.ApprovedBy,
		ApprovedAt:     t.ApprovedAt,
		RejectedAt:     t.RejectedAt,
		DeliveredAt:    t.DeliveredAt,
		CompletedAt:    t.CompletedAt,
		Output:         t.Output,
		Error:          t.Error,
		Interpretation: t.Interpretation,
		RowVersion:     t.RowVersion,
	}
}

func BuildTaskDTOs(tasks []*models.Task) []TaskDTO {
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, BuildTaskDTO(t))
	}
	return out
}
