// Package store is the coordination-store client: the typed CRUD surface
// the agent uses to pull CU and command documents and to report pilot and
// CU lifecycle state back (spec.md §6, "Coordination store (collaborator)").
//
// The store is the system of record; the agent keeps no state of its own
// across restarts. Three logical collections are keyed by session id:
// pilots (".p"), units (".cu"), and misc (".w").
package store

import "time"

// Collection suffixes, appended to a session id to name a Mongo collection
// (spec.md §6).
const (
	CollectionPilots = "p"
	CollectionUnits  = "cu"
	CollectionMisc   = "w"
)

// MaxDocumentBytes is the hard per-document cap the store enforces
// (spec.md §6: "A single document must not exceed 16 MiB").
const MaxDocumentBytes = 16 * 1024 * 1024

// MaxSlotHistoryBytes caps the slothistory field specifically (spec.md §6).
const MaxSlotHistoryBytes = 4 * 1024 * 1024

// StateEntry is one entry of a statehistory or slothistory array, stored
// with a monotonic timestamp (spec.md §3 invariant 4).
type StateEntry struct {
	State     string    `bson:"state"`
	Timestamp time.Time `bson:"timestamp"`
}

// UnitDocument is the on-the-wire shape of a unit in the ".cu" collection.
// Field names match the original system's documents (spec.md §3–§4) so
// that a store populated by another component in the pipeline needs no
// translation layer.
type UnitDocument struct {
	UID         string         `bson:"uid"`
	Description map[string]any `bson:"description"`

	State        string       `bson:"state"`
	StateHistory []StateEntry `bson:"statehistory"`

	AgentInputDirectives  []map[string]any `bson:"Agent_Input_Directives"`
	AgentOutputDirectives []map[string]any `bson:"Agent_Output_Directives"`
	FTWOutputStatus       string           `bson:"FTW_Output_Status"`

	SlotHistory []map[string]any `bson:"slothistory"`

	StdoutTail string `bson:"stdout"`
	StderrTail string `bson:"stderr"`
	ExitCode   *int   `bson:"exit_code"`

	Sandbox string `bson:"sandbox"`
}

// PilotDocument is the on-the-wire shape of a pilot in the ".p" collection.
type PilotDocument struct {
	UID          string       `bson:"uid"`
	State        string       `bson:"state"`
	StateHistory []StateEntry `bson:"statehistory"`

	// Cmd carries pending commands addressed to this pilot (cancel_pilot,
	// cancel_unit, keepalive), drained and cleared by the supervisor
	// (spec.md §4.9 "Command dispatch").
	Cmd []Command `bson:"cmd"`
}

// Command is one control-channel message delivered through the pilot
// document's "cmd" array (spec.md §4.9).
type Command struct {
	Name string `bson:"cmd"`
	Arg  string `bson:"arg"`
}

const (
	CmdCancelPilot = "cancel_pilot"
	CmdCancelUnit  = "cancel_unit"
	CmdKeepAlive   = "keep_alive"
)
