package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

// DecisionResult classifies the outcome of one approve/reject attempt.
type DecisionResult string

const (
	DecisionAccepted DecisionResult = "accepted"
	DecisionConflict DecisionResult = "conflict"
	DecisionNotFound DecisionResult = "not_found"
	DecisionError    DecisionResult = "error"
)

/*
DecisionOutcome reports one gate verdict. On DecisionAccepted, Task is
the updated record. On DecisionConflict, Task is the authoritative
current record so the caller can reconcile stale state without a second
fetch; retrying a conflicted decision is therefore a harmless no-op.
*/
type DecisionOutcome struct {
	TaskID uuid.UUID
	Result DecisionResult
	Task   *models.Task
	Err    error
}

// Decide moves one pending task to approved or rejected. The check and
// the write happen atomically in the store; a task that was decided,
// finished, or removed in the meantime yields a conflict or not-found
// outcome, never a double transition.
func (s *TaskService) Decide(ctx context.Context, taskID uuid.UUID, actor string, approve bool) DecisionOutcome {
	current, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DecisionOutcome{TaskID: taskID, Result: DecisionNotFound}
		}
		return DecisionOutcome{TaskID: taskID, Result: DecisionError, Err: err}
	}
	if current.Status != models.TaskStatusPending {
		return DecisionOutcome{TaskID: taskID, Result: DecisionConflict, Task: current}
	}

	newStatus := models.TaskStatusApproved
	if !approve {
		newStatus = models.TaskStatusRejected
	}

	updated, err := s.taskRepo.DecideAtomic(ctx, taskID, newStatus, actor, current.RowVersion)
	switch {
	case err == nil:
		utils.Logger.Infof("Task %s %s by %s", taskID, newStatus, actor)
		return DecisionOutcome{TaskID: taskID, Result: DecisionAccepted, Task: updated}

	case errors.Is(err, repositories.ErrVersionConflict),
		errors.Is(err, repositories.ErrTaskNotPending):
		// Lost the race. The row returned with the error is the state
		// that won; fall back to a re-read if the repo couldn't give it.
		if updated == nil {
			updated, _ = s.taskRepo.GetByID(ctx, taskID)
		}
		return DecisionOutcome{TaskID: taskID, Result: DecisionConflict, Task: updated}

	case errors.Is(err, pgx.ErrNoRows):
		return DecisionOutcome{TaskID: taskID, Result: DecisionNotFound}

	default:
		return DecisionOutcome{TaskID: taskID, Result: DecisionError, Err: err}
	}
}

/*
DecideBatch applies the same decision to every listed task. Guarantees:

  - exactly one outcome per input id, in input order
  - each task resolves independently; a conflict or missing sibling
    never aborts the rest
  - duplicate ids are attempted independently (the second resolves as a
    conflict against the first)
  - empty input yields an empty result

There is deliberately no all-or-nothing mode.
*/
func (s *TaskService) DecideBatch(ctx context.Context, taskIDs []uuid.UUID, actor string, approve bool) []DecisionOutcome {
	results := make([]DecisionOutcome, len(taskIDs))
	if len(taskIDs) == 0 {
		return results
	}

	sem := make(chan struct{}, s.dispatchLimit)
	var wg sync.WaitGroup
	for i, id := range taskIDs {
		wg.Add(1)
		go func(idx int, taskID uuid.UUID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = s.Decide(ctx, taskID, actor, approve)
		}(i, id)
	}
	wg.Wait()

	return results
}
