package models

import "time"

// InvitationStatus enumerates the invitation lifecycle.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation represents a pending user invitation.
type Invitation struct {
	ID         string           `db:"id" json:"id"`
	Email      string           `db:"email" json:"email"`
	Role       UserRole         `db:"role" json:"role"`
	Token      string           `db:"token" json:"-"`
	Status     InvitationStatus `db:"status" json:"status"`
	InvitedBy  string           `db:"invited_by" json:"invited_by"`
	ExpiresAt  time.Time        `db:"expires_at" json:"expires_at"`
	AcceptedAt *time.Time       `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// InvitationFilter captures filtering criteria for listing invitations.
type InvitationFilter struct {
	Status   *InvitationStatus
	Email    string
	Page     int
	PageSize int
}

// CreateInvitationRequest is the payload for inviting a new user.
type CreateInvitationRequest struct {
	Email string   `json:"email" validate:"required,email"`
	Role  UserRole `json:"role" validate:"required"`
}

// AcceptInvitationRequest completes an invitation and creates the account.
type AcceptInvitationRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}
