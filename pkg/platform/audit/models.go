// Package audit records what happened to credentials: who was issued what,
// which verifications passed and why others failed. Events carry derived
// DIDs and masked identity numbers only.
package audit

import (
	"context"
	"time"
)

// Action names an auditable credential operation.
type Action string

const (
	ActionCredentialIssued   Action = "credential_issued"
	ActionCredentialVerified Action = "credential_verified"
	ActionVerificationFailed Action = "verification_failed"
	ActionCredentialImported Action = "credential_imported"
	ActionCredentialDeleted  Action = "credential_deleted"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Action       Action    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
	Subject      string    `json:"subject"`
	CredentialID string    `json:"credential_id,omitempty"`
	Issuer       string    `json:"issuer,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	// MaskedNumber is the identity number with the middle digits hidden.
	MaskedNumber string `json:"masked_cpf,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	ClientIP     string `json:"client_ip,omitempty"`
}

// Store persists or forwards events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can read events back.
type Lister interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
