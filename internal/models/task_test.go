package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTerminalStatuses(t *testing.T) {
	require.False(t, TaskStatusPending.Terminal())
	require.False(t, TaskStatusApproved.Terminal())
	require.True(t, TaskStatusRejected.Terminal())
	require.True(t, TaskStatusCompleted.Terminal())
	require.True(t, TaskStatusFailed.Terminal())
}

func TestAgentEffectiveStatus(t *testing.T) {
	now := time.Now().UTC()
	a := &Agent{
		SelfReportedStatus: AgentStatusActive,
		LastReportTime:     now.Add(-30 * time.Second),
	}
	require.Equal(t, AgentStatusActive, a.EffectiveStatus(now, time.Minute))

	a.LastReportTime = now.Add(-61 * time.Second)
	require.Equal(t, AgentStatusDown, a.EffectiveStatus(now, time.Minute))
}
