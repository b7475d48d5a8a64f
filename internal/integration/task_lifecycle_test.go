//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
)

func newIntegrationAgent(t *testing.T, ctx context.Context) *models.Agent {
	t.Helper()
	agent := &models.Agent{
		ID:                 "itest-" + uuid.NewString()[:8],
		Hostname:           "itest.internal",
		OSType:             "linux",
		SelfReportedStatus: models.AgentStatusIdle,
	}
	require.NoError(t, agentRepo.Upsert(ctx, agent))
	t.Cleanup(func() {
		_, _ = agentRepo.Delete(context.Background(), agent.ID)
	})
	return agent
}

func newIntegrationTask(t *testing.T, ctx context.Context, agentID string) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:          uuid.New(),
		AgentID:     agentID,
		Input:       "echo integration",
		ScriptCode:  "#!/bin/sh\necho integration",
		Status:      models.TaskStatusPending,
		SubmittedBy: "itest",
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, taskRepo.Create(ctx, task))
	return task
}

func TestTaskLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	agent := newIntegrationAgent(t, ctx)
	task := newIntegrationTask(t, ctx, agent.ID)

	stored, err := taskRepo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusPending, stored.Status)
	require.Equal(t, int64(1), stored.RowVersion)

	approved, err := taskRepo.DecideAtomic(ctx, task.ID, models.TaskStatusApproved, "itest-op", stored.RowVersion)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.Equal(t, int64(2), approved.RowVersion)

	delivered, err := taskRepo.DeliverNextAtomic(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, delivered.ID)
	require.NotNil(t, delivered.DeliveredAt)

	finished, err := taskRepo.FinishAtomic(ctx, task.ID, models.TaskStatusCompleted, "integration", "", "")
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, finished.Status)
	require.NotNil(t, finished.CompletedAt)
}

func TestDecideAtomicStaleVersionLosesRace(t *testing.T) {
	ctx := context.Background()
	agent := newIntegrationAgent(t, ctx)
	task := newIntegrationTask(t, ctx, agent.ID)

	winner, err := taskRepo.DecideAtomic(ctx, task.ID, models.TaskStatusApproved, "op-a", 1)
	require.NoError(t, err)

	// op-b still holds version 1; the store must refuse and hand back
	// the row op-a produced
	current, err := taskRepo.DecideAtomic(ctx, task.ID, models.TaskStatusRejected, "op-b", 1)
	require.ErrorIs(t, err, repositories.ErrVersionConflict)
	require.NotNil(t, current)
	require.Equal(t, models.TaskStatusApproved, current.Status)
	require.Equal(t, winner.RowVersion, current.RowVersion)
	require.Nil(t, current.RejectedAt)
}

func TestDecideAtomicNonPendingConflicts(t *testing.T) {
	ctx := context.Background()
	agent := newIntegrationAgent(t, ctx)
	task := newIntegrationTask(t, ctx, agent.ID)

	approved, err := taskRepo.DecideAtomic(ctx, task.ID, models.TaskStatusApproved, "op-a", 1)
	require.NoError(t, err)

	_, err = taskRepo.DecideAtomic(ctx, task.ID, models.TaskStatusRejected, "op-b", approved.RowVersion)
	require.ErrorIs(t, err, repositories.ErrTaskNotPending)
}

func TestDeliverNextAtomicSkipsDeliveredTasks(t *testing.T) {
	ctx := context.Background()
	agent := newIntegrationAgent(t, ctx)
	task := newIntegrationTask(t, ctx, agent.ID)

	_, err := taskRepo.DecideAtomic(ctx, task.ID, models.TaskStatusApproved, "op", 1)
	require.NoError(t, err)

	first, err := taskRepo.DeliverNextAtomic(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, first.ID)

	_, err = taskRepo.DeliverNextAtomic(ctx, agent.ID)
	require.Error(t, err) // nothing left to hand out
}

func TestAgentUpsertRefreshesLiveness(t *testing.T) {
	ctx := context.Background()
	agent := newIntegrationAgent(t, ctx)

	before, err := agentRepo.GetByID(ctx, agent.ID)
	require.NoError(t, err)

	agent.Hostname = "renamed.internal"
	require.NoError(t, agentRepo.Upsert(ctx, agent))

	after, err := agentRepo.GetByID(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed.internal", after.Hostname)
	require.Greater(t, after.RowVersion, before.RowVersion)
	require.False(t, after.LastReportTime.Before(before.LastReportTime))
}
