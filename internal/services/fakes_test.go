package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/config"
	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
)

func testConfig() *config.Config {
	return &config.Config{
		DispatchConcurrency:        4,
		LDFlag_NotifyOnTaskFailure: true,
	}
}

// ---------------------------------------------------------------
// fakeAgentRepo: in-memory AgentRepository with the same row-version
// semantics as the SQL implementation.
// ---------------------------------------------------------------

type fakeAgentRepo struct {
	mu     sync.Mutex
	agents map[string]*models.Agent
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{agents: make(map[string]*models.Agent)}
}

func copyAgent(a *models.Agent) *models.Agent {
	cp := *a
	return &cp
}

func (f *fakeAgentRepo) seed(a *models.Agent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.RowVersion == 0 {
		a.RowVersion = 1
	}
	f.agents[a.ID] = copyAgent(a)
}

func (f *fakeAgentRepo) Upsert(ctx context.Context, agent *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := f.agents[agent.ID]; ok {
		cp := copyAgent(agent)
		cp.RowVersion = existing.RowVersion + 1
		cp.CreatedAt = existing.CreatedAt
		cp.LastReportTime = now
		f.agents[agent.ID] = cp
		return nil
	}
	cp := copyAgent(agent)
	cp.RowVersion = 1
	cp.CreatedAt = now
	cp.LastReportTime = now
	f.agents[agent.ID] = cp
	return nil
}

func (f *fakeAgentRepo) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyAgent(a), nil
}

func (f *fakeAgentRepo) ListAll(ctx context.Context) ([]*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		out = append(out, copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAgentRepo) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[id]; !ok {
		return false, nil
	}
	delete(f.agents, id)
	return true, nil
}

func (f *fakeAgentRepo) UpdateHeartbeat(ctx context.Context, id string, selfStatus string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return false, nil
	}
	a.SelfReportedStatus = selfStatus
	a.LastReportTime = now
	a.RowVersion++
	return true, nil
}

func (f *fakeAgentRepo) ListStale(ctx context.Context, cutoff time.Time) ([]*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Agent
	for _, a := range f.agents {
		if a.LastReportTime.Before(cutoff) && a.SelfReportedStatus != models.AgentStatusDown {
			out = append(out, copyAgent(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAgentRepo) UpdateIfVersion(ctx context.Context, agent *models.Agent, expectedVersion int64) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.agents[agent.ID]
	if !ok || stored.RowVersion != expectedVersion {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	cp := copyAgent(agent)
	cp.RowVersion = expectedVersion + 1
	f.agents[agent.ID] = cp
	return pgconn.CommandTag("UPDATE 1"), nil
}

func (f *fakeAgentRepo) UpdateWithRetry(
	ctx context.Context,
	id string,
	mutate func(*models.Agent) error,
	updateIfVersion repositories.UpdateIfVersionFunc[*models.Agent],
) error {
	return repositories.WithRetry(ctx, 3, id, f.GetByID, updateIfVersion, mutate)
}

// ---------------------------------------------------------------
// fakeTaskRepo: in-memory TaskRepository mirroring the CAS semantics
// of the SQL transitions.
// ---------------------------------------------------------------

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]*models.Task)}
}

func copyTask(t *models.Task) *models.Task {
	cp := *t
	return &cp
}

func (f *fakeTaskRepo) seed(t *models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.RowVersion == 0 {
		t.RowVersion = 1
	}
	f.tasks[t.ID] = copyTask(t)
}

func (f *fakeTaskRepo) Create(ctx context.Context, task *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := copyTask(task)
	cp.RowVersion = 1
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	f.tasks[task.ID] = cp
	return nil
}

func (f *fakeTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyTask(t), nil
}

func (f *fakeTaskRepo) list(filter func(*models.Task) bool) []*models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, t := range f.tasks {
		if filter(t) {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (f *fakeTaskRepo) ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	return f.list(func(t *models.Task) bool { return t.Status == status }), nil
}

func (f *fakeTaskRepo) ListByAgent(ctx context.Context, agentID string) ([]*models.Task, error) {
	return f.list(func(t *models.Task) bool { return t.AgentID == agentID }), nil
}

func (f *fakeTaskRepo) ListByAgentAndStatus(ctx context.Context, agentID string, status models.TaskStatus) ([]*models.Task, error) {
	return f.list(func(t *models.Task) bool { return t.AgentID == agentID && t.Status == status }), nil
}

func (f *fakeTaskRepo) ListCompleted(ctx context.Context) ([]*models.Task, error) {
	out := f.list(func(t *models.Task) bool {
		return t.Status == models.TaskStatusCompleted || t.Status == models.TaskStatusFailed
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ApprovedAt == nil || out[j].ApprovedAt == nil {
			return out[j].ApprovedAt == nil
		}
		return out[i].ApprovedAt.After(*out[j].ApprovedAt)
	})
	return out, nil
}

func (f *fakeTaskRepo) CountByStatus(ctx context.Context) ([]repositories.TaskStatusCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.TaskStatus]int)
	for _, t := range f.tasks {
		counts[t.Status]++
	}
	out := make([]repositories.TaskStatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, repositories.TaskStatusCount{Status: status, Count: n})
	}
	return out, nil
}

func (f *fakeTaskRepo) DecideAtomic(
	ctx context.Context,
	taskID uuid.UUID,
	newStatus models.TaskStatus,
	decidedBy string,
	expectedVersion int64,
) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if t.RowVersion != expectedVersion {
		return copyTask(t), repositories.ErrVersionConflict
	}
	if t.Status != models.TaskStatusPending {
		return copyTask(t), repositories.ErrTaskNotPending
	}

	now := time.Now().UTC()
	t.Status = newStatus
	if newStatus == models.TaskStatusApproved {
		t.ApprovedBy = &decidedBy
		t.ApprovedAt = &now
	} else {
		t.RejectedAt = &now
	}
	t.RowVersion++
	t.UpdatedAt = now
	return copyTask(t), nil
}

func (f *fakeTaskRepo) DeliverNextAtomic(ctx context.Context, agentID string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next *models.Task
	for _, t := range f.tasks {
		if t.AgentID != agentID || t.Status != models.TaskStatusApproved || t.DeliveredAt != nil {
			continue
		}
		if next == nil || (t.ApprovedAt != nil && next.ApprovedAt != nil && t.ApprovedAt.Before(*next.ApprovedAt)) {
			next = t
		}
	}
	if next == nil {
		return nil, pgx.ErrNoRows
	}
	now := time.Now().UTC()
	next.DeliveredAt = &now
	next.RowVersion++
	next.UpdatedAt = now
	return copyTask(next), nil
}

func (f *fakeTaskRepo) FinishAtomic(
	ctx context.Context,
	taskID uuid.UUID,
	newStatus models.TaskStatus,
	output, execError, interpretation string,
) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if t.Status != models.TaskStatusApproved {
		return copyTask(t), repositories.ErrTaskNotApproved
	}

	now := time.Now().UTC()
	t.Status = newStatus
	t.Output = output
	t.Error = execError
	t.Interpretation = interpretation
	t.CompletedAt = &now
	t.RowVersion++
	t.UpdatedAt = now
	return copyTask(t), nil
}

// ---------------------------------------------------------------
// stub script generator and notifier
// ---------------------------------------------------------------

type stubScript struct {
	generateErr error
}

func (s *stubScript) GenerateScript(ctx context.Context, input, osType string) (string, error) {
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return "#!/bin/sh\n" + input, nil
}

func (s *stubScript) Interpret(ctx context.Context, input, output, execError string) (string, error) {
	if execError != "" {
		return "execution failed", nil
	}
	return "execution succeeded", nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	agentsDown  []string
	failedTasks []uuid.UUID
}

func (n *recordingNotifier) NotifyAgentDown(ctx context.Context, agent *models.Agent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.agentsDown = append(n.agentsDown, agent.ID)
}

func (n *recordingNotifier) NotifyTaskFailed(ctx context.Context, task *models.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failedTasks = append(n.failedTasks, task.ID)
}
