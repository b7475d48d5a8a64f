package utils

import (
	"errors"

	"github.com/NerdyNot/NerdyOps/internal/models"
)

/*
Sentinel errors for orchestrator domain logic.
The controller can do: if errors.Is(err, ErrXYZ) { ... }
*/
var (
	ErrAgentNotFound     = errors.New("agent_not_found")
	ErrTaskNotFound      = errors.New("task_not_found")
	ErrUnsupportedOSType = errors.New("unsupported_os_type")
	ErrNoTargets         = errors.New("no_targets")
	ErrScriptGeneration  = errors.New("script_generation_failed")
)

/*
TaskConflictError is returned when a task is no longer pending (or no
longer approved, for the execution channel) at decision time. It carries
the latest Task so the controller can hand the authoritative state back
to the client instead of leaving it to guess.
*/
type TaskConflictError struct {
	Current *models.Task
}

func (e *TaskConflictError) Error() string {
	return "task_conflict"
}

func NewTaskConflictError(current *models.Task) error {
	return &TaskConflictError{Current: current}
}
