package app

import (
	"context"

	"github.com/NerdyNot/NerdyOps/internal/utils"
)

// schemaStatements are applied in order at startup. Everything is
// IF NOT EXISTS so a restart against a live database is a no-op.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agents (
        id                   TEXT PRIMARY KEY,
        hostname             TEXT NOT NULL,
        os_type              TEXT NOT NULL,
        private_ip           TEXT NOT NULL DEFAULT '',
        shell_version        TEXT NOT NULL DEFAULT '',
        self_reported_status TEXT NOT NULL,
        last_report_time     TIMESTAMPTZ NOT NULL,
        row_version          BIGINT NOT NULL DEFAULT 1,
        created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS tasks (
        id             UUID PRIMARY KEY,
        agent_id       TEXT NOT NULL,
        input          TEXT NOT NULL,
        script_code    TEXT NOT NULL DEFAULT '',
        status         TEXT NOT NULL,
        submitted_by   TEXT NOT NULL,
        submitted_at   TIMESTAMPTZ NOT NULL,
        approved_by    TEXT,
        approved_at    TIMESTAMPTZ,
        rejected_at    TIMESTAMPTZ,
        delivered_at   TIMESTAMPTZ,
        completed_at   TIMESTAMPTZ,
        output         TEXT NOT NULL DEFAULT '',
        error          TEXT NOT NULL DEFAULT '',
        interpretation TEXT NOT NULL DEFAULT '',
        row_version    BIGINT NOT NULL DEFAULT 1,
        created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	// Note: no FK from tasks to agents. Deleting an agent keeps its task
	// history intact.
	`CREATE INDEX IF NOT EXISTS idx_tasks_agent_id ON tasks (agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_delivery
        ON tasks (agent_id, approved_at)
        WHERE status = 'approved' AND delivered_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_agents_last_report ON agents (last_report_time)`,
}

// EnsureSchema creates the tables and indexes the service needs.
func (a *App) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := a.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	utils.Logger.Info("Database schema ensured")
	return nil
}
