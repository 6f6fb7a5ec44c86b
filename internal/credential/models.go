package credential

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"semear/internal/did"
	"semear/internal/identity"
)

const (
	// DefaultValidity is how long a delivery receipt stays verifiable.
	DefaultValidity = 365 * 24 * time.Hour

	TypeVerifiableCredential = "VerifiableCredential"
	TypeDeliveryReceipt      = "ReciboAgricola"

	contextW3C    = "https://www.w3.org/2018/credentials/v1"
	contextSemear = "https://semear.app/contexts/v1"
)

// ID identifies a stored credential. It is also the jti claim.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID accepts any UUID spelling and returns the canonical form.
func ParseID(raw string) (ID, error) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("credential id %q: %w", raw, err)
	}
	return ID(u.String()), nil
}

func (id ID) String() string {
	return string(id)
}

// Ref is a short, URL-safe handle printed in QR codes.
type Ref string

// RefFor encodes the UUID bytes of id in base58.
func RefFor(id ID) (Ref, error) {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return "", fmt.Errorf("credential id %q: %w", id, err)
	}
	return Ref(base58.Encode(u[:])), nil
}

// ParseRef recovers the credential ID from a ref.
func ParseRef(ref Ref) (ID, error) {
	raw, err := base58.Decode(string(ref))
	if err != nil {
		return "", fmt.Errorf("credential ref %q: %w", ref, err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("credential ref %q: %w", ref, err)
	}
	return ID(u.String()), nil
}

// Producer is the cooperative member a receipt is issued to.
type Producer struct {
	Name   string
	Number identity.Number
}

// DeliveryEvent describes one delivery of produce to the cooperative.
type DeliveryEvent struct {
	Product     string
	Quantity    float64
	Unit        string
	DeliveredAt time.Time
}

// Cooperative is the issuing organization as it appears inside credentials.
type Cooperative struct {
	Name string  `json:"nome"`
	DID  did.DID `json:"did"`
}

// Payload is the JWT claim set of a delivery receipt.
type Payload struct {
	jwt.RegisteredClaims
	VC VC `json:"vc"`
}

type VC struct {
	Context           []string `json:"@context"`
	Type              []string `json:"type"`
	CredentialSubject Subject  `json:"credentialSubject"`
}

type Subject struct {
	ID          did.DID       `json:"id"`
	Producer    ProducerClaim `json:"produtor"`
	Delivery    DeliveryClaim `json:"entrega"`
	Cooperative Cooperative   `json:"cooperativa"`
}

// ProducerClaim carries the display name only; the identity number never
// leaves the issuer.
type ProducerClaim struct {
	Name string `json:"nome"`
}

type DeliveryClaim struct {
	Product  string    `json:"produto"`
	Quantity float64   `json:"quantidade"`
	Unit     string    `json:"unidade"`
	Date     time.Time `json:"data"`
}

// Data is what a successful verification hands back to the caller.
type Data struct {
	ID          string        `json:"id"`
	Issuer      did.DID       `json:"issuer"`
	Subject     did.DID       `json:"subject"`
	Producer    ProducerClaim `json:"produtor"`
	Delivery    DeliveryClaim `json:"entrega"`
	Cooperative Cooperative   `json:"cooperativa"`
	IssuedAt    time.Time     `json:"issued_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

func dataFrom(p *Payload) *Data {
	d := &Data{
		ID:          p.ID,
		Issuer:      did.DID(p.Issuer),
		Subject:     did.DID(p.Subject),
		Producer:    p.VC.CredentialSubject.Producer,
		Delivery:    p.VC.CredentialSubject.Delivery,
		Cooperative: p.VC.CredentialSubject.Cooperative,
	}
	if p.IssuedAt != nil {
		d.IssuedAt = p.IssuedAt.Time
	}
	if p.ExpiresAt != nil {
		d.ExpiresAt = p.ExpiresAt.Time
	}
	return d
}

// Record is the issuer-side persisted view of a credential. Records are
// immutable; corrections are new credentials.
type Record struct {
	ID           ID
	Ref          Ref
	Number       identity.Number
	ProducerName string
	SubjectDID   did.DID
	Token        string
	Product      string
	Quantity     float64
	Unit         string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Stats summarizes issuance for the dashboard.
type Stats struct {
	TotalCredentials int `json:"total_credentials"`
	UniqueProducers  int `json:"unique_producers"`
}
