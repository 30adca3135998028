package audit

import "time"

// ChangeType classifies a mutation.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// AdminUserID is recorded when a mutation has no authenticated principal
// (system-triggered changes).
const AdminUserID = "admin"

// Loggable is implemented by entities that can appear in the audit trail.
// The entity supplies its own identifier, class name and short summary.
type Loggable interface {
	LogID() string
	LogClass() string
	LogMessage() string
}

// Entry is one immutable audit log record. Entries are append-only; nothing
// in the core updates or deletes them, and they are never consulted for
// authorization decisions.
type Entry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	EntityID    string     `json:"entity_id"`
	EntityClass string     `json:"entity_class"`
	Type        ChangeType `json:"type"`
	Message     string     `json:"message"`
	CreateDate  time.Time  `json:"create_date"`
}

// Filter narrows an audit log search.
type Filter struct {
	EntityID string
	UserID   string
	Limit    int
}
