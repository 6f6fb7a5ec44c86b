package credential

import (
	"context"
	"errors"

	"semear/internal/identity"
	dErrors "semear/pkg/domain-errors"
)

// Verification outcomes. Each is distinct so callers can tell a foreign
// credential from a forged or corrupted one.
var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrInvalidSignature    = errors.New("invalid credential signature")
	ErrExpired             = errors.New("credential expired")
	ErrNotMine             = errors.New("credential belongs to another identity")
)

// UserMessage renders a verification failure for the producer.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, identity.ErrInvalidIdentity):
		return "CPF inválido. Confira os números digitados."
	case errors.Is(err, ErrMalformedCredential):
		return "Este QR code não contém uma credencial válida."
	case errors.Is(err, ErrInvalidSignature):
		return "A assinatura da credencial não confere. Ela pode ter sido adulterada."
	case errors.Is(err, ErrExpired):
		return "Esta credencial expirou. Peça um novo recibo à cooperativa."
	case errors.Is(err, ErrNotMine):
		return "Esta credencial pertence a outro produtor."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "A verificação demorou demais. Tente novamente."
	default:
		return "Não foi possível verificar a credencial."
	}
}

// ToDomainError maps a verification failure onto a coded error for transport.
func ToDomainError(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) && !errors.Is(err, identity.ErrInvalidIdentity) {
		return err
	}
	msg := UserMessage(err)
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, msg)
	case errors.Is(err, ErrMalformedCredential):
		return dErrors.Wrap(err, dErrors.CodeBadRequest, msg)
	case errors.Is(err, ErrInvalidSignature):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, msg)
	case errors.Is(err, ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, msg)
	case errors.Is(err, ErrNotMine):
		return dErrors.Wrap(err, dErrors.CodeForbidden, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// Reason is a stable machine-readable tag for a verification outcome, used in
// API responses and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, identity.ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, ErrMalformedCredential):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNotMine):
		return "not_mine"
	default:
		return "error"
	}
}
