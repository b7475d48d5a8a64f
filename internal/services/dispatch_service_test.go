package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NerdyNot/NerdyOps/internal/config"
	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

func seedAgent(repo *fakeAgentRepo, id, osType string) {
	repo.seed(&models.Agent{
		ID:                 id,
		Hostname:           id + ".internal",
		OSType:             osType,
		SelfReportedStatus: models.AgentStatusIdle,
		LastReportTime:     time.Now().UTC(),
	})
}

func TestSubmitCreatesOneTaskPerTarget(t *testing.T) {
	svc, taskRepo, agentRepo, _ := newTaskServiceForTest()
	seedAgent(agentRepo, "web-01", "linux")
	seedAgent(agentRepo, "web-02", "linux")
	seedAgent(agentRepo, "win-01", "windows")

	targets := []string{"web-01", "web-02", "win-01"}
	entries := svc.Submit(context.Background(), "check disk space", "alice", targets)

	require.Len(t, entries, 3)
	for i, e := range entries {
		require.Equal(t, targets[i], e.AgentID)
		require.NoError(t, e.Err)
		require.NotNil(t, e.Task)
		require.Equal(t, models.TaskStatusPending, e.Task.Status)
		require.Equal(t, "alice", e.Task.SubmittedBy)
		require.Equal(t, "check disk space", e.Task.Input)
		require.NotEmpty(t, e.Task.ScriptCode)
	}

	// each target got its own independent task
	require.NotEqual(t, entries[0].Task.ID, entries[1].Task.ID)
	require.NotEqual(t, entries[1].Task.ID, entries[2].Task.ID)

	pending, err := taskRepo.ListByStatus(context.Background(), models.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
}

func TestSubmitUnknownAgentDoesNotRollBackSiblings(t *testing.T) {
	svc, taskRepo, agentRepo, _ := newTaskServiceForTest()
	seedAgent(agentRepo, "web-01", "linux")
	seedAgent(agentRepo, "web-02", "linux")

	targets := []string{"web-01", "ghost", "web-02"}
	entries := svc.Submit(context.Background(), "uptime", "alice", targets)

	require.Len(t, entries, 3)
	require.NoError(t, entries[0].Err)
	require.ErrorIs(t, entries[1].Err, utils.ErrAgentNotFound)
	require.Nil(t, entries[1].Task)
	require.NoError(t, entries[2].Err)

	pending, err := taskRepo.ListByStatus(context.Background(), models.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestSubmitScriptGenerationFailureIsPerTarget(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	agentRepo := newFakeAgentRepo()
	svc := NewTaskService(testConfig(), taskRepo, agentRepo,
		&stubScript{generateErr: errors.New("model unavailable")}, nil)
	seedAgent(agentRepo, "web-01", "linux")

	entries := svc.Submit(context.Background(), "uptime", "alice", []string{"web-01"})

	require.Len(t, entries, 1)
	require.ErrorIs(t, entries[0].Err, utils.ErrScriptGeneration)

	pending, err := taskRepo.ListByStatus(context.Background(), models.TaskStatusPending)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSubmitEmptyTargets(t *testing.T) {
	svc, _, _, _ := newTaskServiceForTest()

	entries := svc.Submit(context.Background(), "uptime", "alice", nil)

	require.Empty(t, entries)
}

// slowScript gauges how many generations run at once.
type slowScript struct {
	active int32
	peak   int32
}

func (s *slowScript) GenerateScript(ctx context.Context, input, osType string) (string, error) {
	n := atomic.AddInt32(&s.active, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&s.active, -1)
	return "#!/bin/sh\n" + input, nil
}

func (s *slowScript) Interpret(ctx context.Context, input, output, execError string) (string, error) {
	return "", nil
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	agentRepo := newFakeAgentRepo()
	gauge := &slowScript{}
	cfg := &config.Config{DispatchConcurrency: 2}
	svc := NewTaskService(cfg, taskRepo, agentRepo, gauge, nil)

	var targets []string
	for i := 0; i < 12; i++ {
		id := string(rune('a'+i)) + "-agent"
		seedAgent(agentRepo, id, "linux")
		targets = append(targets, id)
	}

	entries := svc.Submit(context.Background(), "uptime", "alice", targets)

	require.Len(t, entries, 12)
	for _, e := range entries {
		require.NoError(t, e.Err)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&gauge.peak), int32(2))
}
