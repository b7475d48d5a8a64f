package app

import (
	"context"

	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

// SeedTestData registers a small fleet for local development and
// preview environments. Idempotent: registration is an upsert.
func SeedTestData(ctx context.Context, agentRepo repositories.AgentRepository) error {
	agents := []*models.Agent{
		{
			ID:                 "dev-web-01",
			Hostname:           "dev-web-01.internal",
			OSType:             "linux",
			PrivateIP:          "10.0.1.10",
			ShellVersion:       "bash 5.2",
			SelfReportedStatus: models.AgentStatusIdle,
		},
		{
			ID:                 "dev-db-01",
			Hostname:           "dev-db-01.internal",
			OSType:             "linux",
			PrivateIP:          "10.0.1.20",
			ShellVersion:       "bash 5.2",
			SelfReportedStatus: models.AgentStatusIdle,
		},
		{
			ID:                 "dev-win-01",
			Hostname:           "dev-win-01.internal",
			OSType:             "windows",
			PrivateIP:          "10.0.2.10",
			ShellVersion:       "PowerShell 7.4",
			SelfReportedStatus: models.AgentStatusIdle,
		},
	}

	for _, a := range agents {
		if err := agentRepo.Upsert(ctx, a); err != nil {
			return err
		}
	}
	utils.Logger.Infof("Seeded %d test agents", len(agents))
	return nil
}
