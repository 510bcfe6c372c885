// Package config loads and validates the pilot agent's configuration file
// (agent_0.cfg, JSON) and the environment variables layered on top of it.
package config

import "time"

// AgentTarget selects where a sub-agent runs, per §4.9 and §6.
type AgentTarget string

const (
	// AgentTargetLocal runs the sub-agent on the same node as agent_0.
	AgentTargetLocal AgentTarget = "local"
	// AgentTargetNode runs the sub-agent on an allocated node, via the
	// configured agent launch method.
	AgentTargetNode AgentTarget = "node"
)

// SubAgentConfig describes one entry of the "agents" map in agent_0.cfg.
type SubAgentConfig struct {
	Target AgentTarget `json:"target"`
}

// Config is the parsed, validated contents of agent_0.cfg plus defaults,
// mirroring the field names given in spec §6.
type Config struct {
	PilotID   string `json:"pilot_id"`
	SessionID string `json:"session_id"`

	// RuntimeMinutes is the pilot's total walltime budget.
	RuntimeMinutes int `json:"runtime"`

	// Cores is the number of cores requested from the LRMS; used to
	// detect AllocationTooSmall (§4.1).
	Cores int `json:"cores"`

	LRMS               string `json:"lrms"`
	Scheduler          string `json:"scheduler"`
	Spawner            string `json:"spawner"`
	TaskLaunchMethod   string `json:"task_launch_method"`
	MPILaunchMethod    string `json:"mpi_launch_method"`
	AgentLaunchMethod  string `json:"agent_launch_method"`

	Agents map[string]SubAgentConfig `json:"agents"`

	// DBPollSleeptime is the supervisor's store poll interval, in seconds.
	DBPollSleeptime float64 `json:"db_poll_sleeptime"`

	PilotSandbox string `json:"pilot_sandbox"`

	// Derived/defaulted fields, not part of the JSON wire format but
	// resolved once at load time (see defaults.go).
	Derived Derived `json:"-"`
}

// Derived holds the tunables spec.md leaves as implementation constants
// (QUEUE_POLL_SLEEPTIME, BULK_COLLECTION_TIME, tail size, ...), exposed
// here so they can be overridden by environment variables without
// changing agent_0.cfg's documented schema.
type Derived struct {
	// QueuePollSleeptime caps busy-waiting in workers that found no work
	// (§4.5 step 5). Default 1.0s.
	QueuePollSleeptime time.Duration

	// BulkCollectionTime is the updater's flush deadline (§4.7). Default 1.0s.
	BulkCollectionTime time.Duration

	// TailSize is the number of bytes read from stdout/stderr on finalize
	// (§4.5 step 4). Default 64 KiB.
	TailSize int

	// SlotHistoryCap bounds the scheduler's release-history snapshot
	// (§4.2). Default 4 MiB.
	SlotHistoryCap int

	// MaxDocumentSize is the coordination store's per-document cap (§6).
	// Default 16 MiB.
	MaxDocumentSize int
}

// DBPollInterval returns DBPollSleeptime as a time.Duration.
func (c *Config) DBPollInterval() time.Duration {
	return time.Duration(c.DBPollSleeptime * float64(time.Second))
}

// Runtime returns the pilot's walltime budget as a time.Duration.
func (c *Config) Runtime() time.Duration {
	return time.Duration(c.RuntimeMinutes) * time.Minute
}
