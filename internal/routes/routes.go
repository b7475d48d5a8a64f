package routes

const (
	// Health
	Health = "/health"

	// Agent directory (operator-facing)
	AgentsBase   = "/api/v1/agents"
	AgentsDelete = "/api/v1/agents/{agent_id}"

	// Agent directory (agent-facing)
	AgentsRegister  = "/api/v1/agents/register"
	AgentsHeartbeat = "/api/v1/agents/heartbeat"

	// Task lifecycle (operator-facing)
	TasksSubmit       = "/api/v1/tasks/submit"
	TasksPending      = "/api/v1/tasks/pending"
	TasksCompleted    = "/api/v1/tasks/completed"
	TasksSummary      = "/api/v1/tasks/summary"
	TasksForAgent     = "/api/v1/tasks/agent/{agent_id}"
	TasksApprove      = "/api/v1/tasks/approve"
	TasksReject       = "/api/v1/tasks/reject"
	TasksBatchApprove = "/api/v1/tasks/batch-approve"
	TasksBatchReject  = "/api/v1/tasks/batch-reject"
	TasksGet          = "/api/v1/tasks/{task_id}"

	// Execution channel (agent-facing)
	RunnerNextTask = "/api/v1/runner/next-task"
	RunnerReport   = "/api/v1/runner/report"
)
