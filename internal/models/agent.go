package models

import (
	"time"
)

// Agent status values. EffectiveStatus in the DTO layer overrides the
// self-reported value with "down" when the heartbeat is stale.
const (
	AgentStatusActive = "active"
	AgentStatusIdle   = "idle"
	AgentStatusDown   = "down"
)

// SupportedOSTypes lists the OS families an agent may register as.
var SupportedOSTypes = []string{"linux", "windows", "darwin"}

// Agent is a registered remote host. The ID is chosen by the agent at
// first registration and stays stable across heartbeats.
type Agent struct {
	Versioned

	ID                 string `json:"agent_id"`
	Hostname           string `json:"hostname"`
	OSType             string `json:"os_type"`
	PrivateIP          string `json:"private_ip"`
	ShellVersion       string `json:"shell_version"`
	SelfReportedStatus string `json:"self_reported_status"`

	LastReportTime time.Time `json:"last_report_time"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *Agent) GetID() string {
	return a.ID
}

// EffectiveStatus is the liveness the dashboard should display: "down"
// when the last report is older than timeout, otherwise whatever the
// agent last said about itself.
func (a *Agent) EffectiveStatus(now time.Time, timeout time.Duration) string {
	if now.Sub(a.LastReportTime) > timeout {
		return AgentStatusDown
	}
	return a.SelfReportedStatus
}

// IsSupportedOSType reports whether t is one of the OS families agents
// are allowed to register as.
func IsSupportedOSType(t string) bool {
	for _, s := range SupportedOSTypes {
		if s == t {
			return true
		}
	}
	return false
}
