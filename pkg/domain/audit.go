package domain

import "time"

// AuditAction enumerates compliance-relevant events.
type AuditAction string

// Audit actions.
const (
	AuditCreate             AuditAction = "CREATE"
	AuditUpdate             AuditAction = "UPDATE"
	AuditView               AuditAction = "VIEW"
	AuditDelete             AuditAction = "DELETE"
	AuditLogin              AuditAction = "LOGIN"
	AuditLoginFailed        AuditAction = "LOGIN_FAILED"
	AuditLogout             AuditAction = "LOGOUT"
	AuditDispenseMedication AuditAction = "DISPENSE_MEDICATION"
	AuditProcessSale        AuditAction = "PROCESS_SALE"
	AuditVoidSale           AuditAction = "VOID_SALE"
	AuditStockAdjustment    AuditAction = "STOCK_ADJUSTMENT"
	AuditExport             AuditAction = "EXPORT"
	AuditSync               AuditAction = "SYNC"
)

// FieldChange is one entry of a computed diff.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// AuditEntry is an append-only compliance log row.
type AuditEntry struct {
	ID             string        `json:"id"`
	Seq            int64         `json:"seq"`
	Timestamp      time.Time     `json:"timestamp"`
	ActorID        string        `json:"actor_id"`
	ActorName      string        `json:"actor_name"`
	ActorRole      Role          `json:"actor_role"`
	OrganizationID string        `json:"organization_id"`
	Action         AuditAction   `json:"action"`
	EntityType     EntityType    `json:"entity_type"`
	EntityID       string        `json:"entity_id"`
	EntityName     string        `json:"entity_name"`
	OldValues      ChangePayload `json:"old_values"`
	NewValues      ChangePayload `json:"new_values"`
	Changes        []FieldChange `json:"changes"`
	Sensitive      bool          `json:"sensitive"`
	Automated      bool          `json:"automated"`
	Description    string        `json:"description"`
}

// Session is the actor context resolved by the auth layer. It is passed
// explicitly to every mutating call; components never cache it.
type Session struct {
	ActorID        string
	ActorName      string
	Role           Role
	OrganizationID string
	FacilityID     string
}

// Valid reports whether the session carries an actor identity.
func (s *Session) Valid() bool {
	return s != nil && s.ActorID != ""
}
