package credential

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"semear/internal/did"
	jwttoken "semear/internal/jwt_token"
	"semear/internal/rotation"
	"semear/pkg/requestcontext"
)

// IssuePayload builds the unsigned claim set for a delivery. The subject DID is
// derived for the period containing now under cfg and frozen into the payload.
func IssuePayload(id ID, producer Producer, event DeliveryEvent, cfg rotation.Config, coop Cooperative, now time.Time, validity time.Duration) Payload {
	subject := did.Current(producer.Number, cfg, now)
	if validity <= 0 {
		validity = DefaultValidity
	}
	deliveredAt := event.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = now
	}

	return Payload{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    coop.DID.String(),
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			ID:        id.String(),
		},
		VC: VC{
			Context: []string{contextW3C, contextSemear},
			Type:    []string{TypeVerifiableCredential, TypeDeliveryReceipt},
			CredentialSubject: Subject{
				ID:          subject,
				Producer:    ProducerClaim{Name: producer.Name},
				Delivery:    DeliveryClaim{Product: event.Product, Quantity: event.Quantity, Unit: event.Unit, Date: deliveredAt.UTC()},
				Cooperative: coop,
			},
		},
	}
}

// Issued is a freshly signed credential.
type Issued struct {
	ID         ID
	Token      string
	Payload    Payload
	SubjectDID did.DID
}

// Issuer signs delivery receipts with the cooperative key.
type Issuer struct {
	engine   *jwttoken.Engine
	key      *did.IssuerKey
	cfg      rotation.Config
	coop     Cooperative
	validity time.Duration
	clock    func() time.Time
}

type IssuerOption func(*Issuer)

func WithValidity(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.validity = d
		}
	}
}

// WithIssuerClock overrides the request time. Used by tests and tools.
func WithIssuerClock(clock func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.clock = clock
	}
}

func NewIssuer(engine *jwttoken.Engine, key *did.IssuerKey, cfg rotation.Config, name string, opts ...IssuerOption) (*Issuer, error) {
	if engine == nil {
		return nil, errors.New("issuer requires a signature engine")
	}
	if key == nil {
		return nil, did.ErrInvalidKey
	}
	if cfg.IsZero() {
		return nil, errors.New("issuer requires a rotation config")
	}
	i := &Issuer{
		engine:   engine,
		key:      key,
		cfg:      cfg,
		coop:     Cooperative{Name: name, DID: key.DID()},
		validity: DefaultValidity,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Cooperative returns the issuer as embedded in credentials.
func (i *Issuer) Cooperative() Cooperative {
	return i.coop
}

// Config returns the rotation config subjects are derived under.
func (i *Issuer) Config() rotation.Config {
	return i.cfg
}

// Issue derives the producer's current DID and signs a receipt for event.
func (i *Issuer) Issue(ctx context.Context, producer Producer, event DeliveryEvent) (*Issued, error) {
	if err := producer.Number.Validate(); err != nil {
		return nil, err
	}
	now := i.now(ctx)
	id := NewID()
	payload := IssuePayload(id, producer, event, i.cfg, i.coop, now, i.validity)

	token, err := i.engine.Sign(payload, i.key)
	if err != nil {
		return nil, err
	}
	return &Issued{
		ID:         id,
		Token:      token,
		Payload:    payload,
		SubjectDID: payload.VC.CredentialSubject.ID,
	}, nil
}

func (i *Issuer) now(ctx context.Context) time.Time {
	if i.clock != nil {
		return i.clock()
	}
	return requestcontext.Now(ctx)
}
