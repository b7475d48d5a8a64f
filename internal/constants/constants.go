package constants

import "time"

const (
	// HeartbeatTimeout is how long an agent may stay silent before the
	// directory reports it as down.
	HeartbeatTimeout = 60 * time.Second

	// DefaultDispatchConcurrency caps how many per-target task creations
	// run at once during a fan-out submission.
	DefaultDispatchConcurrency = 16
)
