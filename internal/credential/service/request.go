package service

import (
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"semear/internal/credential"
	"semear/internal/identity"
	dErrors "semear/pkg/domain-errors"
)

const (
	minNameLength    = 3
	minProductLength = 2
)

// IssueRequest is the raw input for one delivery receipt.
type IssueRequest struct {
	ProducerName string
	CPF          string
	Product      string
	Quantity     float64
	Unit         string
	DeliveredAt  time.Time
}

// Normalize trims and validates the request. Invalid input returns a
// validation error with a message fit for the operator.
func (r IssueRequest) Normalize() (credential.Producer, credential.DeliveryEvent, error) {
	name := strings.TrimSpace(r.ProducerName)
	product := strings.TrimSpace(r.Product)
	unit := strings.TrimSpace(r.Unit)

	if name == "" || strings.TrimSpace(r.CPF) == "" {
		return invalid("CPF e nome do produtor são obrigatórios")
	}
	n, err := identity.Parse(r.CPF)
	if err != nil {
		return credential.Producer{}, credential.DeliveryEvent{}, err
	}
	if utf8.RuneCountInString(name) < minNameLength {
		return invalid("o nome do produtor deve ter pelo menos 3 caracteres")
	}
	if product == "" || unit == "" {
		return invalid("produto, quantidade e unidade são obrigatórios")
	}
	if !(r.Quantity > 0) || math.IsInf(r.Quantity, 1) {
		return invalid("a quantidade deve ser um número maior que 0")
	}
	if utf8.RuneCountInString(product) < minProductLength {
		return invalid("o nome do produto deve ter pelo menos 2 caracteres")
	}

	return credential.Producer{Name: name, Number: n},
		credential.DeliveryEvent{Product: product, Quantity: r.Quantity, Unit: unit, DeliveredAt: r.DeliveredAt},
		nil
}

// ErrInvalidRequest marks every validation failure from Normalize.
var ErrInvalidRequest = errors.New("invalid issue request")

func invalid(msg string) (credential.Producer, credential.DeliveryEvent, error) {
	return credential.Producer{}, credential.DeliveryEvent{}, dErrors.Wrap(ErrInvalidRequest, dErrors.CodeValidation, msg)
}
