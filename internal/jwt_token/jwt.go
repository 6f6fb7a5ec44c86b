package jwttoken

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"semear/internal/did"
)

var (
	// ErrSignature covers every reason a token's signature cannot be trusted.
	ErrSignature = errors.New("invalid signature")
	// ErrUntrustedIssuer is returned when an allow-list is configured and the
	// token's issuer is not on it. It also matches ErrSignature.
	ErrUntrustedIssuer = fmt.Errorf("%w: untrusted issuer", ErrSignature)
)

// Engine signs credential payloads with the cooperative key and verifies them
// against the public key embedded in the issuer DID.
type Engine struct {
	trusted map[did.DID]struct{}
	parser  *jwt.Parser
}

type Option func(*Engine)

// WithTrustedIssuers restricts verification to the given issuer DIDs. With no
// allow-list any well-formed issuer did:key is accepted.
func WithTrustedIssuers(issuers ...did.DID) Option {
	return func(e *Engine) {
		for _, iss := range issuers {
			if iss == "" {
				continue
			}
			e.trusted[iss] = struct{}{}
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		trusted: make(map[did.DID]struct{}),
		// expiry and ownership are separate gates owned by the caller
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{AlgES256K}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sign serializes claims as a compact ES256K JWS. The kid header names the
// issuer DID so verifiers can resolve the key without a registry.
func (e *Engine) Sign(claims jwt.Claims, key *did.IssuerKey) (string, error) {
	if key == nil {
		return "", did.ErrInvalidKey
	}
	token := jwt.NewWithClaims(ES256K, claims)
	token.Header["kid"] = key.DID().String()

	signed, err := token.SignedString(key.Private())
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify checks the signature of token and decodes it into claims. The key is
// recovered from the iss claim. Cancellation of ctx abandons the wait.
func (e *Engine) Verify(ctx context.Context, token string, claims jwt.Claims) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.parser.ParseWithClaims(token, claims, e.keyFunc)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSignature) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
}

// Trusts reports whether iss passes the allow-list.
func (e *Engine) Trusts(iss did.DID) bool {
	if len(e.trusted) == 0 {
		return true
	}
	_, ok := e.trusted[iss]
	return ok
}

func (e *Engine) keyFunc(token *jwt.Token) (interface{}, error) {
	iss, err := token.Claims.GetIssuer()
	if err != nil || iss == "" {
		return nil, fmt.Errorf("%w: missing issuer", ErrSignature)
	}
	issuer := did.DID(iss)
	if !e.Trusts(issuer) {
		return nil, ErrUntrustedIssuer
	}
	pub, err := did.ParseIssuerDID(issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return pub, nil
}
