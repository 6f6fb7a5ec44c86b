package handler

import (
	"strings"
	"time"

	"semear/internal/credential/service"
	dErrors "semear/pkg/domain-errors"
)

// maxTokenLength bounds credential tokens accepted for verification.
const maxTokenLength = 16 << 10

// IssueRequest is the body of POST /api/credentials and the legacy
// POST /api/emitir-vc.
type IssueRequest struct {
	Producer *ProducerInput `json:"produtor"`
	Delivery *DeliveryInput `json:"entrega"`
}

type ProducerInput struct {
	CPF  string `json:"cpf"`
	Name string `json:"nome"`
}

type DeliveryInput struct {
	Product  string   `json:"produto"`
	Quantity *float64 `json:"quantidade"`
	Unit     string   `json:"unidade"`
	// Date is optional; the issuance time is used when empty.
	Date string `json:"data,omitempty"`

	deliveredAt time.Time
}

// Validate checks presence only; field rules live in the service.
func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "corpo da requisição é obrigatório")
	}
	if r.Producer == nil {
		return dErrors.New(dErrors.CodeValidation, "dados do produtor são obrigatórios")
	}
	if r.Delivery == nil {
		return dErrors.New(dErrors.CodeValidation, "dados da entrega são obrigatórios")
	}
	if r.Delivery.Quantity == nil {
		return dErrors.New(dErrors.CodeValidation, "produto, quantidade e unidade são obrigatórios")
	}
	if d := strings.TrimSpace(r.Delivery.Date); d != "" {
		t, err := parseDate(d)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "data da entrega deve estar no formato AAAA-MM-DD ou RFC 3339")
		}
		r.Delivery.deliveredAt = t
	}
	return nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

// ToService converts the validated body into the service request.
func (r *IssueRequest) ToService() service.IssueRequest {
	return service.IssueRequest{
		ProducerName: r.Producer.Name,
		CPF:          r.Producer.CPF,
		Product:      r.Delivery.Product,
		Quantity:     *r.Delivery.Quantity,
		Unit:         r.Delivery.Unit,
		DeliveredAt:  r.Delivery.deliveredAt,
	}
}

// VerifyRequest is the body of POST /api/credentials/verify.
type VerifyRequest struct {
	Token string `json:"token"`
	CPF   string `json:"cpf"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "corpo da requisição é obrigatório")
	}
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" || strings.TrimSpace(r.CPF) == "" {
		return dErrors.New(dErrors.CodeValidation, "token e cpf são obrigatórios")
	}
	if len(r.Token) > maxTokenLength {
		return dErrors.New(dErrors.CodeValidation, "token excede o tamanho máximo")
	}
	return nil
}
