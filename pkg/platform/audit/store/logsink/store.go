// Package logsink writes audit events to a structured logger. It is the
// degraded path when the broker is unavailable.
package logsink

import (
	"context"
	"log/slog"

	audit "semear/pkg/platform/audit"
)

type Store struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger.With("component", "audit")}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"action", event.Action,
		"timestamp", event.Timestamp,
		"subject", event.Subject,
		"credential_id", event.CredentialID,
		"issuer", event.Issuer,
		"reason", event.Reason,
		"masked_cpf", event.MaskedNumber,
		"request_id", event.RequestID,
	)
	return nil
}
