package domain

import "time"

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the CRUD operations captured by the change log.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Origin tells observers where a mutation came from. Rows written while
// applying remote data must not be echoed back to the remote authority.
type Origin string

// Mutation origins.
const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
	// OriginSystem marks bookkeeping writes such as access tracking and login
	// counters. They keep UpdatedAt and are not logged for sync.
	OriginSystem Origin = "system"
)

// Local reports whether the mutation is a user edit made on this node.
func (o Origin) Local() bool { return o == "" || o == OriginLocal }

// Change describes a mutation applied to an entity during a transaction.
// Before and After hold typed entity values (never maps).
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Origin   Origin
	Before   any
	After    any
}

// ChangeRecord is one durable entry of the outbound change log consumed by
// cloud sync. Only the sync engine flips Synced and bumps Attempts.
type ChangeRecord struct {
	ID         string        `json:"id"`
	Seq        int64         `json:"seq"`
	EntityKind EntityType    `json:"entity_kind"`
	EntityID   string        `json:"entity_id"`
	Operation  Action        `json:"operation"`
	Payload    ChangePayload `json:"payload"`
	Timestamp  time.Time     `json:"timestamp"`
	Synced     bool          `json:"synced"`
	SyncedAt   *time.Time    `json:"synced_at"`
	Attempts   int           `json:"attempts"`
	LastError  string        `json:"last_error,omitempty"`
}
