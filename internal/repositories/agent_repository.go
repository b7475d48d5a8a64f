package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/models"
)

type AgentRepository interface {
	Upsert(ctx context.Context, agent *models.Agent) error
	GetByID(ctx context.Context, id string) (*models.Agent, error)
	ListAll(ctx context.Context) ([]*models.Agent, error)
	Delete(ctx context.Context, id string) (bool, error)

	// UpdateHeartbeat refreshes the agent's self-report, bumping
	// last_report_time to now.
	UpdateHeartbeat(ctx context.Context, id string, selfStatus string, now time.Time) (bool, error)

	// ListStale returns agents whose last report is older than the cutoff
	// and that are not already marked down.
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.Agent, error)

	UpdateIfVersion(ctx context.Context, agent *models.Agent, expectedVersion int64) (pgconn.CommandTag, error)
	UpdateWithRetry(ctx context.Context, id string, mutate func(*models.Agent) error, updateIfVersion UpdateIfVersionFunc[*models.Agent]) error
}

type agentRepo struct {
	*BaseVersionedRepo[*models.Agent]
	db DB
}

func NewAgentRepository(db DB) AgentRepository {
	return &agentRepo{
		BaseVersionedRepo: NewBaseRepo(db, baseSelectAgent()+" WHERE id=$1", scanAgent),
		db:                db,
	}
}

func baseSelectAgent() string {
	return `
        SELECT
            id, hostname, os_type, private_ip, shell_version,
            self_reported_status, last_report_time,
            row_version, created_at, updated_at
        FROM agents
    `
}

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.ID,
		&a.Hostname,
		&a.OSType,
		&a.PrivateIP,
		&a.ShellVersion,
		&a.SelfReportedStatus,
		&a.LastReportTime,
		&a.RowVersion,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Upsert registers a new agent or refreshes an existing registration.
// Re-registering overwrites the descriptive fields and counts as a
// fresh liveness report.
func (r *agentRepo) Upsert(ctx context.Context, agent *models.Agent) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO agents (
            id, hostname, os_type, private_ip, shell_version,
            self_reported_status, last_report_time,
            created_at, updated_at, row_version
        ) VALUES (
            $1,$2,$3,$4,$5,$6,NOW(),NOW(),NOW(),1
        )
        ON CONFLICT (id) DO UPDATE SET
            hostname=EXCLUDED.hostname,
            os_type=EXCLUDED.os_type,
            private_ip=EXCLUDED.private_ip,
            shell_version=EXCLUDED.shell_version,
            self_reported_status=EXCLUDED.self_reported_status,
            last_report_time=NOW(),
            updated_at=NOW(),
            row_version=agents.row_version+1
    `,
		agent.ID,
		agent.Hostname,
		agent.OSType,
		agent.PrivateIP,
		agent.ShellVersion,
		agent.SelfReportedStatus,
	)
	return err
}

func (r *agentRepo) ListAll(ctx context.Context) ([]*models.Agent, error) {
	rows, err := r.db.Query(ctx, baseSelectAgent()+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *agentRepo) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM agents WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *agentRepo) UpdateHeartbeat(ctx context.Context, id string, selfStatus string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE agents
        SET self_reported_status=$1,
            last_report_time=$2,
            row_version=row_version+1,
            updated_at=NOW()
        WHERE id=$3
    `, selfStatus, now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *agentRepo) ListStale(ctx context.Context, cutoff time.Time) ([]*models.Agent, error) {
	rows, err := r.db.Query(ctx, baseSelectAgent()+`
        WHERE last_report_time < $1
          AND self_reported_status <> $2
    `, cutoff, models.AgentStatusDown)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *agentRepo) UpdateIfVersion(ctx context.Context, agent *models.Agent, expectedVersion int64) (pgconn.CommandTag, error) {
	return r.db.Exec(ctx, `
        UPDATE agents
        SET hostname=$1,
            os_type=$2,
            private_ip=$3,
            shell_version=$4,
            self_reported_status=$5,
            last_report_time=$6,
            row_version=row_version+1,
            updated_at=NOW()
        WHERE id=$7 AND row_version=$8
    `,
		agent.Hostname,
		agent.OSType,
		agent.PrivateIP,
		agent.ShellVersion,
		agent.SelfReportedStatus,
		agent.LastReportTime,
		agent.ID,
		expectedVersion,
	)
}
