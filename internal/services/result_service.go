package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

// NextTask hands the agent its oldest approved, undelivered task, or
// nil when nothing is waiting. Delivery is recorded in the store, so a
// crash-and-repoll agent is never handed the same task twice.
func (s *TaskService) NextTask(ctx context.Context, agentID string) (*models.Task, error) {
	if _, err := s.agentRepo.GetByID(ctx, agentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrAgentNotFound
		}
		return nil, fmt.Errorf("look up agent %s: %w", agentID, err)
	}

	task, err := s.taskRepo.DeliverNextAtomic(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("deliver next task for agent %s: %w", agentID, err)
	}
	utils.Logger.Infof("Delivered task %s to agent %s", task.ID, agentID)
	return task, nil
}

// ReportResult records an execution result for an approved task. A
// non-empty error marks the task failed (an unreachable host counts as
// a failure, not a retry); otherwise completed. Either way the task
// reaches a terminal state exactly once.
func (s *TaskService) ReportResult(ctx context.Context, taskID uuid.UUID, output, execError string) (*models.Task, error) {
	newStatus := models.TaskStatusCompleted
	if execError != "" {
		newStatus = models.TaskStatusFailed
	}

	current, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrTaskNotFound
		}
		return nil, err
	}

	interpretation := ""
	if s.script != nil {
		interpretation, err = s.script.Interpret(ctx, current.Input, output, execError)
		if err != nil {
			// the raw output still gets stored; summary is best-effort
			utils.Logger.WithError(err).Warnf("Interpretation failed for task %s", taskID)
			interpretation = ""
		}
	}

	updated, err := s.taskRepo.FinishAtomic(ctx, taskID, newStatus, output, execError, interpretation)
	switch {
	case err == nil:
		// fallthrough below

	case errors.Is(err, repositories.ErrTaskNotApproved):
		if updated == nil {
			updated, _ = s.taskRepo.GetByID(ctx, taskID)
		}
		return nil, utils.NewTaskConflictError(updated)

	case errors.Is(err, pgx.ErrNoRows):
		return nil, utils.ErrTaskNotFound

	default:
		return nil, fmt.Errorf("finish task %s: %w", taskID, err)
	}

	utils.Logger.Infof("Task %s reported %s by agent %s", taskID, newStatus, updated.AgentID)

	if newStatus == models.TaskStatusFailed &&
		s.notifier != nil && s.cfg.LDFlag_NotifyOnTaskFailure {
		s.notifier.NotifyTaskFailed(ctx, updated)
	}
	return updated, nil
}
