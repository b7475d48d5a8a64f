package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/config"
	"github.com/NerdyNot/NerdyOps/internal/dtos"
	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

/*
TaskService owns the task lifecycle: fan-out submission, the approval
gate, the agent-facing delivery/report channel, and the read paths the
dashboard polls. Split across task_service.go, dispatch_service.go,
approval_service.go and result_service.go.
*/
type TaskService struct {
	cfg       *config.Config
	taskRepo  repositories.TaskRepository
	agentRepo repositories.AgentRepository
	script    ScriptGenerator
	notifier  Notifier

	dispatchLimit int
}

func NewTaskService(
	cfg *config.Config,
	taskRepo repositories.TaskRepository,
	agentRepo repositories.AgentRepository,
	script ScriptGenerator,
	notifier Notifier,
) *TaskService {
	limit := cfg.DispatchConcurrency
	if limit < 1 {
		limit = 1
	}
	return &TaskService{
		cfg:           cfg,
		taskRepo:      taskRepo,
		agentRepo:     agentRepo,
		script:        script,
		notifier:      notifier,
		dispatchLimit: limit,
	}
}

func (s *TaskService) GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListPending returns pending tasks fleet-wide, or for a single agent
// when agentID is non-empty. Oldest submission first, the order the
// approval queue is worked in.
func (s *TaskService) ListPending(ctx context.Context, agentID string) ([]*models.Task, error) {
	if agentID != "" {
		return s.taskRepo.ListByAgentAndStatus(ctx, agentID, models.TaskStatusPending)
	}
	return s.taskRepo.ListByStatus(ctx, models.TaskStatusPending)
}

func (s *TaskService) ListCompleted(ctx context.Context) ([]*models.Task, error) {
	return s.taskRepo.ListCompleted(ctx)
}

// ListForAgent returns every task recorded for the agent, any status.
// The task table is the source of truth here: history stays queryable
// after the agent is deleted from the directory.
func (s *TaskService) ListForAgent(ctx context.Context, agentID string) ([]*models.Task, error) {
	return s.taskRepo.ListByAgent(ctx, agentID)
}

func (s *TaskService) Summary(ctx context.Context) (*dtos.TaskSummaryResponse, error) {
	counts, err := s.taskRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	var out dtos.TaskSummaryResponse
	for _, c := range counts {
		out.Total += c.Count
		switch c.Status {
		case models.TaskStatusPending:
			out.Pending = c.Count
		case models.TaskStatusApproved:
			out.Approved = c.Count
		case models.TaskStatusRejected:
			out.Rejected = c.Count
		case models.TaskStatusCompleted:
			out.Completed = c.Count
		case models.TaskStatusFailed:
			out.Failed = c.Count
		}
	}
	return &out, nil
}
