package dtos

import (
	"time"

	"github.com/NerdyNot/NerdyOps/internal/models"
)

/*
RegisterAgentRequest is the payload an agent sends on startup. Sending
it again for a known agent_id refreshes the registration.
*/
type RegisterAgentRequest struct {
	AgentID      string `json:"agent_id" validate:"required"`
	Hostname     string `json:"hostname" validate:"required"`
	OSType       string `json:"os_type" validate:"required"`
	PrivateIP    string `json:"private_ip"`
	ShellVersion string `json:"shell_version"`
}

type HeartbeatRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

/*
AgentDTO is the directory view of one agent. EffectiveStatus is derived
at read time; the stored self-reported value is kept alongside it so the
dashboard can show both.
*/
type AgentDTO struct {
	AgentID            string    `json:"agent_id"`
	Hostname           string    `json:"hostname"`
	OSType             string    `json:"os_type"`
	PrivateIP          string    `json:"private_ip,omitempty"`
	ShellVersion       string    `json:"shell_version,omitempty"`
	SelfReportedStatus string    `json:"self_reported_status"`
	EffectiveStatus    string    `json:"effective_status"`
	LastReportTime     time.Time `json:"last_report_time"`
	RegisteredAt       time.Time `json:"registered_at"`
}

type ListAgentsResponse struct {
	Agents []AgentDTO `json:"agents"`
	Total  int        `json:"total"`
}

func BuildAgentDTO(a *models.Agent, now time.Time, heartbeatTimeout time.Duration) AgentDTO {
	return AgentDTO{
		AgentID:            a.ID,
		Hostname:           a.Hostname,
		OSType:             a.OSType,
		PrivateIP:          a.PrivateIP,
		ShellVersion:       a.ShellVersion,
		SelfReportedStatus: a.SelfReportedStatus,
		EffectiveStatus:    a.EffectiveStatus(now, heartbeatTimeout),
		LastReportTime:     a.LastReportTime,
		RegisteredAt:       a.CreatedAt,
	}
}
