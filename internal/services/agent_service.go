package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/NerdyNot/NerdyOps/internal/config"
	"github.com/NerdyNot/NerdyOps/internal/constants"
	"github.com/NerdyNot/NerdyOps/internal/dtos"
	"github.com/NerdyNot/NerdyOps/internal/models"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

// errAgentFresh aborts a sweep mutation when the agent reported in
// again between the stale listing and the update.
var errAgentFresh = errors.New("agent_reported_recently")

type AgentService struct {
	cfg       *config.Config
	agentRepo repositories.AgentRepository
	notifier  Notifier
}

func NewAgentService(
	cfg *config.Config,
	agentRepo repositories.AgentRepository,
	notifier Notifier,
) *AgentService {
	return &AgentService{
		cfg:       cfg,
		agentRepo: agentRepo,
		notifier:  notifier,
	}
}

// Register upserts the agent's directory entry. A re-registration for
// a known agent_id refreshes the descriptive fields and counts as a
// liveness report.
func (s *AgentService) Register(ctx context.Context, req *dtos.RegisterAgentRequest) (*models.Agent, error) {
	if !models.IsSupportedOSType(req.OSType) {
		return nil, fmt.Errorf("%w: %q", utils.ErrUnsupportedOSType, req.OSType)
	}

	status := models.AgentStatusIdle
	agent := &models.Agent{
		ID:                 req.AgentID,
		Hostname:           req.Hostname,
		OSType:             req.OSType,
		PrivateIP:          req.PrivateIP,
		ShellVersion:       req.ShellVersion,
		SelfReportedStatus: status,
	}
	if err := s.agentRepo.Upsert(ctx, agent); err != nil {
		return nil, fmt.Errorf("register agent %s: %w", req.AgentID, err)
	}

	stored, err := s.agentRepo.GetByID(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("reload agent %s: %w", req.AgentID, err)
	}
	utils.Logger.Infof("Registered agent %s (%s, %s)", stored.ID, stored.Hostname, stored.OSType)
	return stored, nil
}

// Heartbeat records a self-reported status and refreshes the liveness
// timestamp.
func (s *AgentService) Heartbeat(ctx context.Context, agentID, status string) error {
	ok, err := s.agentRepo.UpdateHeartbeat(ctx, agentID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("heartbeat for agent %s: %w", agentID, err)
	}
	if !ok {
		return utils.ErrAgentNotFound
	}
	return nil
}

func (s *AgentService) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	agent, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrAgentNotFound
		}
		return nil, err
	}
	return agent, nil
}

func (s *AgentService) ListAgents(ctx context.Context) (*dtos.ListAgentsResponse, error) {
	agents, err := s.agentRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]dtos.AgentDTO, 0, len(agents))
	for _, a := range agents {
		out = append(out, dtos.BuildAgentDTO(a, now, constants.HeartbeatTimeout))
	}
	return &dtos.ListAgentsResponse{Agents: out, Total: len(out)}, nil
}

// DeleteAgent removes the directory entry only. Tasks already recorded
// for the agent, whatever their state, are left untouched.
func (s *AgentService) DeleteAgent(ctx context.Context, agentID string) error {
	ok, err := s.agentRepo.Delete(ctx, agentID)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", agentID, err)
	}
	if !ok {
		return utils.ErrAgentNotFound
	}
	utils.Logger.Infof("Deleted agent %s from directory", agentID)
	return nil
}

// RunLivenessSweep marks agents silent for longer than the heartbeat
// timeout as down. Runs on a schedule; each mark goes through the
// optimistic-lock retry loop so a heartbeat racing the sweep wins.
func (s *AgentService) RunLivenessSweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-constants.HeartbeatTimeout)

	stale, err := s.agentRepo.ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale agents: %w", err)
	}

	for _, candidate := range stale {
		agentID := candidate.ID
		err := s.agentRepo.UpdateWithRetry(
			ctx,
			agentID,
			func(a *models.Agent) error {
				if !a.LastReportTime.Before(cutoff) || a.SelfReportedStatus == models.AgentStatusDown {
					return errAgentFresh
				}
				a.SelfReportedStatus = models.AgentStatusDown
				return nil
			},
			s.agentRepo.UpdateIfVersion,
		)
		switch {
		case err == nil:
			utils.Logger.Warnf("Liveness sweep marked agent %s down", agentID)
			if s.notifier != nil {
				s.notifier.NotifyAgentDown(ctx, candidate)
			}
		case errors.Is(err, errAgentFresh):
			// agent came back between listing and update
		case errors.Is(err, pgx.ErrNoRows):
			// agent deleted mid-sweep
		default:
			utils.Logger.WithError(err).Errorf("Liveness sweep failed for agent %s", agentID)
		}
	}
	return nil
}
