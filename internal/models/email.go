package models

import "time"

// EmailStatus enumerates delivery states for queued emails. Pending and
// failed entries are non-terminal and get picked up again by the
// reconciliation pass until MaxAttempts is reached.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// QueuedEmail is one entry in the persisted email queue.
type QueuedEmail struct {
	ID           string      `db:"id" json:"id"`
	Recipient    string      `db:"recipient" json:"recipient"`
	Subject      string      `db:"subject" json:"subject"`
	BodyHTML     string      `db:"body_html" json:"body_html"`
	Template     string      `db:"template" json:"template"`
	Status       EmailStatus `db:"status" json:"status"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	Attempts     int         `db:"attempts" json:"attempts"`
	SentAt       *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// TeamsMessage is the structured payload forwarded to the Teams webhook.
type TeamsMessage struct {
	Title string `json:"title" validate:"required"`
	Text  string `json:"text" validate:"required"`
	Color string `json:"color"`
}
