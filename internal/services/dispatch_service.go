package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

/*
DispatchEntry is the per-target outcome of a fan-out submission. Task
is set when creation succeeded, Err otherwise; never both.
*/
type DispatchEntry struct {
	AgentID string
	Task    *models.Task
	Err     error
}

/*
Submit fans one input out to every target agent, creating an
independent pending task per target. Guarantees:

  - exactly one entry per requested agent, in request order
  - a failing target (unknown agent, script generation error) yields an
    error entry and never rolls back or blocks its siblings
  - at most dispatchLimit creations run concurrently
*/
func (s *TaskService) Submit(ctx context.Context, input, submittedBy string, agentIDs []string) []DispatchEntry {
	results := make([]DispatchEntry, len(agentIDs))
	if len(agentIDs) == 0 {
		return results
	}

	submittedAt := time.Now().UTC()

	sem := make(chan struct{}, s.dispatchLimit)
	var wg sync.WaitGroup
	for i, agentID := range agentIDs {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			task, err := s.createTaskForAgent(ctx, input, submittedBy, submittedAt, id)
			results[idx] = DispatchEntry{AgentID: id, Task: task, Err: err}
		}(i, agentID)
	}
	wg.Wait()

	for _, e := range results {
		if e.Err != nil {
			utils.Logger.WithError(e.Err).Warnf("Dispatch to agent %s failed", e.AgentID)
		}
	}
	return results
}

func (s *TaskService) createTaskForAgent(
	ctx context.Context,
	input, submittedBy string,
	submittedAt time.Time,
	agentID string,
) (*models.Task, error) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrAgentNotFound
		}
		return nil, fmt.Errorf("look up agent %s: %w", agentID, err)
	}
	if !models.IsSupportedOSType(agent.OSType) {
		return nil, fmt.Errorf("%w: %q", utils.ErrUnsupportedOSType, agent.OSType)
	}

	script, err := s.script.GenerateScript(ctx, input, agent.OSType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrScriptGeneration, err)
	}

	task := &models.Task{
		ID:          uuid.New(),
		AgentID:     agentID,
		Input:       input,
		ScriptCode:  script,
		Status:      models.TaskStatusPending,
		SubmittedBy: submittedBy,
		SubmittedAt: submittedAt,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task for agent %s: %w", agentID, err)
	}

	stored, err := s.taskRepo.GetByID(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("reload task %s: %w", task.ID, err)
	}
	return stored, nil
}
