package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/NerdyNot/NerdyOps/internal/models"
)

func newTaskServiceForTest() (*TaskService, *fakeTaskRepo, *fakeAgentRepo, *recordingNotifier) {
	taskRepo := newFakeTaskRepo()
	agentRepo := newFakeAgentRepo()
	notifier := &recordingNotifier{}
	svc := NewTaskService(testConfig(), taskRepo, agentRepo, &stubScript{}, notifier)
	return svc, taskRepo, agentRepo, notifier
}

func seedPendingTask(repo *fakeTaskRepo, agentID string) *models.Task {
	t := &models.Task{
		ID:          uuid.New(),
		AgentID:     agentID,
		Input:       "restart nginx",
		ScriptCode:  "#!/bin/sh\nsystemctl restart nginx",
		Status:      models.TaskStatusPending,
		SubmittedBy: "alice",
		SubmittedAt: time.Now().UTC(),
	}
	repo.seed(t)
	return t
}

func TestDecideApprovesPendingTask(t *testing.T) {
	svc, taskRepo, _, _ := newTaskServiceForTest()
	task := seedPendingTask(taskRepo, "web-01")

	out := svc.Decide(context.Background(), task.ID, "bob", true)

	require.Equal(t, DecisionAccepted, out.Result)
	require.NotNil(t, out.Task)
	require.Equal(t, models.TaskStatusApproved, out.Task.Status)
	require.NotNil(t, out.Task.ApprovedAt)
	require.Nil(t, out.Task.RejectedAt)
	require.Equal(t, "bob", *out.Task.ApprovedBy)
	require.Greater(t, out.Task.RowVersion, task.RowVersion)
}

func TestDecideRejectsPendingTask(t *testing.T) {
	svc, taskRepo, _, _ := newTaskServiceForTest()
	task := seedPendingTask(taskRepo, "web-01")

	out := svc.Decide(context.Background(), task.ID, "bob", false)

	require.Equal(t, DecisionAccepted, out.Result)
	require.Equal(t, models.TaskStatusRejected, out.Task.Status)
	require.NotNil(t, out.Task.RejectedAt)
	require.Nil(t, out.Task.ApprovedAt)
	require.Nil(t, out.Task.ApprovedBy)
}

func TestDecideConflictReturnsCurrentState(t *testing.T) {
	svc, taskRepo, _, _ := newTaskServiceForTest()
	task := seedPendingTask(taskRepo, "web-01")

	first := svc.Decide(context.Background(), task.ID, "bob", true)
	require.Equal(t, DecisionAccepted, first.Result)

	// A second decision, approve or reject, must observe the first.
	second := svc.Decide(context.Background(), task.ID, "carol", false)
	require.Equal(t, DecisionConflict, second.Result)
	require.NotNil(t, second.Task)
	require.Equal(t, models.TaskStatusApproved, second.Task.Status)
	require.Equal(t, "bob", *second.Task.ApprovedBy)
	require.Nil(t, second.Task.RejectedAt)
}

func TestDecideConflictRetryIsNoOp(t *testing.T) {
	svc, taskRepo, _, _ := newTaskServiceForTest()
	task := seedPendingTask(taskRepo, "web-01")

	svc.Decide(context.Background(), task.ID, "bob", true)
	conflicted := svc.Decide(context.Background(), task.ID, "carol", false)
	retried := svc.Decide(context.Background(), task.ID, "carol", false)

	require.Equal(t, DecisionConflict, conflicted.Result)
	require.Equal(t, DecisionConflict, retried.Result)
	require.Equal(t, conflicted.Task.Status, retried.Task.Status)
	require.Equal(t, conflicted.Task.RowVersion, retried.Task.RowVersion)
}

func TestDecideUnknownTask(t *testing.T) {
	svc, _, _, _ := newTaskServiceForTest()

	out := svc.Decide(context.Background(), uuid.New(), "bob", true)

	require.Equal(t, DecisionNotFound, out.Result)
	require.Nil(t, out.Task)
}

func TestDecideBatchReturnsOutcomePerInput(t *testing.T) {
	svc, taskRepo, _, _ := newTaskServiceForTest()

	t1 := seedPendingTask(taskRepo, "web-01")
	t2 := seedPendingTask(taskRepo, "web-02")
	missing := uuid.New()

	// t2 is already rejected: its batch entry must conflict without
	// disturbing the siblings.
	pre := svc.Decide(context.Background(), t2.ID, "bob", false)
	require.Equal(t, DecisionAccepted, pre.Result)

	ids := []uuid.UUID{t1.ID, t2.ID, missing}
	outcomes := svc.DecideBatch(context.Background(), ids, "bob", true)

	require.Len(t, outcomes, len(ids))
	require.Equal(t, t1.ID, outcomes[0].TaskID)
	require.Equal(t, DecisionAccepted, outcomes[0].Result)
	require.Equal(t, t2.ID, outcomes[1].TaskID)
	require.Equal(t, DecisionConflict, outcomes[1].Result)
	require.Equal(t, models.TaskStatusRejected, outcomes[1].Task.Status)
	require.Equal(t, missing, outcomes[2].TaskID)
	require.Equal(t, DecisionNotFound, outcomes[2].Result)
}

func TestDecideBatchEmptyInput(t *testing.T) {
	svc, _, _, _ := newTaskServiceForTest()

	outcomes := svc.DecideBatch(context.Background(), nil, "bob", true)

	require.Empty(t, outcomes)
}

func TestDecideBatchDuplicateIDsResolveIndependently(t *testing.T) {
	svc, taskRepo, _, _ := newTaskServiceForTest()
	task := seedPendingTask(taskRepo, "web-01")

	outcomes := svc.DecideBatch(
		context.Background(),
		[]uuid.UUID{task.ID, task.ID},
		"bob",
		true,
	)

	require.Len(t, outcomes, 2)
	accepted, conflicted := 0, 0
	for _, o := range outcomes {
		switch o.Result {
		case DecisionAccepted:
			accepted++
		case DecisionConflict:
			conflicted++
			require.Equal(t, models.TaskStatusApproved, o.Task.Status)
		}
	}
	require.Equal(t, 1, accepted)
	require.Equal(t, 1, conflicted)

	stored, err := taskRepo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusApproved, stored.Status)
}

func TestDecideBatchLargeInputAllResolved(t *testing.T) {
	svc, taskRepo, _, _ := newTaskServiceForTest()

	var ids []uuid.UUID
	for i := 0; i < 50; i++ {
		ids = append(ids, seedPendingTask(taskRepo, "web-01").ID)
	}

	outcomes := svc.DecideBatch(context.Background(), ids, "bob", true)

	require.Len(t, outcomes, 50)
	for i, o := range outcomes {
		require.Equal(t, ids[i], o.TaskID)
		require.Equal(t, DecisionAccepted, o.Result)
	}
}
