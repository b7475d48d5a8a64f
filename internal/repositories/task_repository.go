package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/models"
)

// Sentinel errors for the atomic transitions. The conflicting row is
// returned alongside the error so callers can surface it.
var (
	ErrVersionConflict = errors.New("row_version_conflict")
	ErrTaskNotPending  = errors.New("task_not_pending")
	ErrTaskNotApproved = errors.New("task_not_approved")
)

// TaskStatusCount is one row of the fleet-wide summary.
type TaskStatusCount struct {
	Status models.TaskStatus `json:"status"`
	Count  int               `json:"count"`
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)

	ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
	ListByAgent(ctx context.Context, agentID string) ([]*models.Task, error)
	ListByAgentAndStatus(ctx context.Context, agentID string, status models.TaskStatus) ([]*models.Task, error)
	ListCompleted(ctx context.Context) ([]*models.Task, error)
	CountByStatus(ctx context.Context) ([]TaskStatusCount, error)

	// DecideAtomic moves a pending task to approved or rejected. The row
	// is locked, the version and the pending guard are re-checked inside
	// the transaction, and the stored row is returned either way so the
	// caller can surface the authoritative state on conflict.
	DecideAtomic(ctx context.Context, taskID uuid.UUID, newStatus models.TaskStatus, decidedBy string, expectedVersion int64) (*models.Task, error)

	// DeliverNextAtomic hands the oldest undelivered approved task for an
	// agent to its runner, stamping delivered_at so repeated polls never
	// hand out the same task twice. Returns pgx.ErrNoRows when the agent
	// has nothing waiting.
	DeliverNextAtomic(ctx context.Context, agentID string) (*models.Task, error)

	// FinishAtomic records an execution result, moving an approved task
	// to completed or failed.
	FinishAtomic(ctx context.Context, taskID uuid.UUID, newStatus models.TaskStatus, output, execError, interpretation string) (*models.Task, error)
}

type taskRepo struct {
	db DB
}

func NewTaskRepository(db DB) TaskRepository {
	return &taskRepo{db: db}
}

func baseSelectTask() string {
	return `
        SELECT
            id, agent_id, input, script_code, status,
            submitted_by, submitted_at, approved_by, approved_at, rejected_at,
            delivered_at, completed_at,
            output, error, interpretation,
            row_version, created_at, updated_at
        FROM tasks
    `
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID,
		&t.AgentID,
		&t.Input,
		&t.ScriptCode,
		&t.Status,
		&t.SubmittedBy,
		&t.SubmittedAt,
		&t.ApprovedBy,
		&t.ApprovedAt,
		&t.RejectedAt,
		&t.DeliveredAt,
		&t.CompletedAt,
		&t.Output,
		&t.Error,
		&t.Interpretation,
		&t.RowVersion,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *taskRepo) Create(ctx context.Context, task *models.Task) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO tasks (
            id, agent_id, input, script_code, status,
            submitted_by, submitted_at,
            output, error, interpretation,
            created_at, updated_at, row_version
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,'','','',NOW(),NOW(),1
        )
    `,
		task.ID,
		task.AgentID,
		task.Input,
		task.ScriptCode,
		task.Status,
		task.SubmittedBy,
		task.SubmittedAt,
	)
	return err
}

func (r *taskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	row := r.db.QueryRow(ctx, baseSelectTask()+" WHERE id=$1", id)
	return scanTask(row)
}

func (r *taskRepo) ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	q := baseSelectTask() + " WHERE status=$1 ORDER BY submitted_at"
	rows, err := r.db.Query(ctx, q, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepo) ListByAgent(ctx context.Context, agentID string) ([]*models.Task, error) {
	q := baseSelectTask() + " WHERE agent_id=$1 ORDER BY submitted_at"
	rows, err := r.db.Query(ctx, q, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepo) ListByAgentAndStatus(ctx context.Context, agentID string, status models.TaskStatus) ([]*models.Task, error) {
	q := baseSelectTask() + " WHERE agent_id=$1 AND status=$2 ORDER BY submitted_at"
	rows, err := r.db.Query(ctx, q, agentID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListCompleted returns finished tasks newest-approval-first, the order
// the dashboard's history view wants. Failed executions are part of the
// history, so both terminal execution states are included.
func (r *taskRepo) ListCompleted(ctx context.Context) ([]*models.Task, error) {
	q := baseSelectTask() + `
        WHERE status IN ($1, $2)
        ORDER BY approved_at DESC NULLS LAST
    `
	rows, err := r.db.Query(ctx, q, models.TaskStatusCompleted, models.TaskStatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepo) CountByStatus(ctx context.Context) ([]TaskStatusCount, error) {
	rows, err := r.db.Query(ctx, `
        SELECT status, COUNT(*) FROM tasks GROUP BY status
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskStatusCount
	for rows.Next() {
		var c TaskStatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *taskRepo) DecideAtomic(
	ctx context.Context,
	taskID uuid.UUID,
	newStatus models.TaskStatus,
	decidedBy string,
	expectedVersion int64,
) (*models.Task, error) {
	if newStatus != models.TaskStatusApproved && newStatus != models.TaskStatusRejected {
		return nil, fmt.Errorf("decision must be approved or rejected, got %q", newStatus)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	row := tx.QueryRow(ctx, baseSelectTask()+" WHERE id=$1 FOR UPDATE", taskID)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, pgx.ErrNoRows
	}
	if task.RowVersion != expectedVersion {
		return task, ErrVersionConflict
	}
	if task.Status != models.TaskStatusPending {
		return task, ErrTaskNotPending
	}

	if newStatus == models.TaskStatusApproved {
		_, err = tx.Exec(ctx, `
            UPDATE tasks
            SET status='approved',
                approved_by=$1,
                approved_at=NOW(),
                row_version=row_version+1,
                updated_at=NOW()
            WHERE id=$2
        `, decidedBy, taskID)
	} else {
		// approved_by/approved_at belong to the approval transition only
		_, err = tx.Exec(ctx, `
            UPDATE tasks
            SET status='rejected',
                rejected_at=NOW(),
                row_version=row_version+1,
                updated_at=NOW()
            WHERE id=$1
        `, taskID)
	}
	if err != nil {
		return nil, err
	}

	newRow := tx.QueryRow(ctx, baseSelectTask()+" WHERE id=$1", taskID)
	return scanTask(newRow)
}

func (r *taskRepo) DeliverNextAtomic(ctx context.Context, agentID string) (*models.Task, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	// SKIP LOCKED so two concurrent polls from the same agent cannot
	// block on, or both receive, the same row.
	row := tx.QueryRow(ctx, baseSelectTask()+`
        WHERE agent_id=$1
          AND status='approved'
          AND delivered_at IS NULL
        ORDER BY approved_at
        LIMIT 1
        FOR UPDATE SKIP LOCKED
    `, agentID)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
        UPDATE tasks
        SET delivered_at=$1,
            row_version=row_version+1,
            updated_at=NOW()
        WHERE id=$2
    `, now, task.ID)
	if err != nil {
		return nil, err
	}

	task.DeliveredAt = &now
	task.RowVersion++
	return task, nil
}

func (r *taskRepo) FinishAtomic(
	ctx context.Context,
	taskID uuid.UUID,
	newStatus models.TaskStatus,
	output, execError, interpretation string,
) (*models.Task, error) {
	if newStatus != models.TaskStatusCompleted && newStatus != models.TaskStatusFailed {
		return nil, fmt.Errorf("result must be completed or failed, got %q", newStatus)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	row := tx.QueryRow(ctx, baseSelectTask()+" WHERE id=$1 FOR UPDATE", taskID)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, pgx.ErrNoRows
	}
	if task.Status != models.TaskStatusApproved {
		return task, ErrTaskNotApproved
	}

	_, err = tx.Exec(ctx, `
        UPDATE tasks
        SET status=$1,
            output=$2,
            error=$3,
            interpretation=$4,
            completed_at=NOW(),
            row_version=row_version+1,
            updated_at=NOW()
        WHERE id=$5
    `, newStatus, output, execError, interpretation, taskID)
	if err != nil {
		return nil, err
	}

	newRow := tx.QueryRow(ctx, baseSelectTask()+" WHERE id=$1", taskID)
	return scanTask(newRow)
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
