package models

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusApproved  TaskStatus = "approved"
	TaskStatusRejected  TaskStatus = "rejected"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition may leave s.
// Note "approved" is not terminal: the execution channel still moves it
// to completed or failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusRejected || s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one operator-initiated, single-agent unit of work. A
// multi-agent submission creates one Task per target; there is no task
// with more than one target.
//
// Lifecycle: pending -> approved -> {completed, failed}, or
// pending -> rejected. At most one of ApprovedAt/RejectedAt is ever
// set, and only the one matching the gate decision taken.
type Task struct {
	Versioned

	ID         uuid.UUID  `json:"task_id"`
	AgentID    string     `json:"agent_id"`
	Input      string     `json:"input"`
	ScriptCode string     `json:"script_code"`
	Status     TaskStatus `json:"status"`

	SubmittedBy string     `json:"submitted_by"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ApprovedBy  *string    `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`

	// DeliveredAt is stamped when the agent pulls the approved task, so
	// a task is handed out once even if the agent polls repeatedly.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Output         string `json:"output,omitempty"`
	Error          string `json:"error,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) GetID() string {
	return t.ID.String()
}
