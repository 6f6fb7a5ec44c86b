package handler

import (
	"time"

	"semear/internal/credential"
	"semear/internal/did"
)

// IssueResponse is returned with 201 after issuance.
type IssueResponse struct {
	Success    bool      `json:"success"`
	ID         string    `json:"id"`
	Ref        string    `json:"ref"`
	Token      string    `json:"vc_jwt"`
	QRData     string    `json:"qr_data"`
	SubjectDID did.DID   `json:"subject_did"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Message    string    `json:"message"`
}

// LegacyIssueResponse keeps the field names older issuer front-ends read.
type LegacyIssueResponse struct {
	Success bool   `json:"success"`
	VCJWT   string `json:"vcJWT"`
	QRData  string `json:"qrData"`
	Ref     string `json:"ref"`
	Message string `json:"message"`
}

// CredentialResponse is the public view of a stored credential. The identity
// number is always masked.
type CredentialResponse struct {
	ID           string    `json:"id"`
	Ref          string    `json:"ref"`
	Token        string    `json:"vc_jwt"`
	SubjectDID   did.DID   `json:"subject_did"`
	ProducerName string    `json:"produtor_nome"`
	MaskedCPF    string    `json:"cpf_mascarado"`
	Product      string    `json:"produto"`
	Quantity     float64   `json:"quantidade"`
	Unit         string    `json:"unidade"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func fromRecord(rec credential.Record) CredentialResponse {
	return CredentialResponse{
		ID:           rec.ID.String(),
		Ref:          string(rec.Ref),
		Token:        rec.Token,
		SubjectDID:   rec.SubjectDID,
		ProducerName: rec.ProducerName,
		MaskedCPF:    rec.Number.Masked(),
		Product:      rec.Product,
		Quantity:     rec.Quantity,
		Unit:         rec.Unit,
		IssuedAt:     rec.IssuedAt,
		ExpiresAt:    rec.ExpiresAt,
	}
}

func fromRecords(recs []credential.Record) []CredentialResponse {
	out := make([]CredentialResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out
}

type ListResponse struct {
	MaskedCPF   string               `json:"cpf_mascarado"`
	Total       int                  `json:"total"`
	Credentials []CredentialResponse `json:"credentials"`
}

// LegacyListResponse mirrors GET /api/vcs/{cpf}.
type LegacyListResponse struct {
	Success bool                 `json:"success"`
	CPF     string               `json:"cpf"`
	TotalVC int                  `json:"totalVCs"`
	VCs     []CredentialResponse `json:"vcs"`
}

// VerifyResponse reports a verification outcome. Result is a stable tag;
// Message is meant for the producer.
type VerifyResponse struct {
	Valid            bool             `json:"valid"`
	Result           string           `json:"result"`
	Data             *credential.Data `json:"data,omitempty"`
	Error            string           `json:"error,omitempty"`
	ErrorDescription string           `json:"error_description,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Store     string    `json:"store"`
	Error     string    `json:"error,omitempty"`
}
