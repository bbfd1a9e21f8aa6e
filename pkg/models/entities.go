package models

import "time"

type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskCompleted TaskStatus = "completed"
)

// Task is a unit of work assigned to a role or to a specific actor.
type Task struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	EventID       string         `json:"event_id"`
	AssignedRole  string         `json:"assigned_role,omitempty"`
	AssignedActor string         `json:"assigned_actor,omitempty"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Priority      Priority       `json:"priority"`
	Status        TaskStatus     `json:"status"`
	EntityRef     *EntityRef     `json:"entity_ref,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type Notification struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	EventID        string    `json:"event_id"`
	RecipientActor string    `json:"recipient_actor"`
	Message        string    `json:"message"`
	Severity       Severity  `json:"severity"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

type Escalation struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	EventID   string     `json:"event_id"`
	Reason    string     `json:"reason"`
	Severity  Severity   `json:"severity"`
	EntityRef *EntityRef `json:"entity_ref,omitempty"`
	RaisedBy  string     `json:"raised_by"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
