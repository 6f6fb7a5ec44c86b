package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"semear/internal/did"
	"semear/internal/identity"
	jwttoken "semear/internal/jwt_token"
	"semear/internal/rotation"
	"semear/pkg/requestcontext"
)

// DefaultSignatureTimeout bounds the cryptographic check only.
const DefaultSignatureTimeout = 5 * time.Second

// Verifier checks that a credential is well formed, signed by a trusted
// issuer, unexpired and issued to the local identity, in that order.
type Verifier struct {
	engine     *jwttoken.Engine
	cfg        rotation.Config
	clock      func() time.Time
	sigTimeout time.Duration
}

type VerifierOption func(*Verifier)

// WithClock fixes "now" for expiry and ownership checks.
func WithClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.clock = clock
	}
}

// WithSignatureTimeout sets the budget for signature verification. Zero
// disables the timeout.
func WithSignatureTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d >= 0 {
			v.sigTimeout = d
		}
	}
}

func NewVerifier(engine *jwttoken.Engine, cfg rotation.Config, opts ...VerifierOption) (*Verifier, error) {
	if engine == nil {
		return nil, errors.New("verifier requires a signature engine")
	}
	if cfg.IsZero() {
		return nil, errors.New("verifier requires a rotation config")
	}
	v := &Verifier{
		engine:     engine,
		cfg:        cfg,
		sigTimeout: DefaultSignatureTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Config returns the rotation config ownership is checked under.
func (v *Verifier) Config() rotation.Config {
	return v.cfg
}

// Verify runs all four gates against token for the holder of local.
func (v *Verifier) Verify(ctx context.Context, token string, local identity.Number) (*Data, error) {
	if err := local.Validate(); err != nil {
		return nil, err
	}

	payload, err := Decode(token)
	if err != nil {
		return nil, err
	}

	if err := v.verifySignature(ctx, token); err != nil {
		return nil, err
	}

	now := v.now(ctx)
	if !now.Before(payload.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w at %s", ErrExpired, payload.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}

	// recomputed per call so a config change is picked up immediately
	owned := did.NewSet(did.HistoricalFor(local, v.cfg, now))
	if !owned.Contains(did.DID(payload.Subject)) {
		return nil, ErrNotMine
	}

	return dataFrom(payload), nil
}

func (v *Verifier) verifySignature(ctx context.Context, token string) error {
	sctx := ctx
	if v.sigTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, v.sigTimeout)
		defer cancel()
	}

	var verified Payload
	err := v.engine.Verify(sctx, token, &verified)
	if err == nil {
		return nil
	}
	// caller cancellation is not a verdict on the credential
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrInvalidSignature) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
}

func (v *Verifier) now(ctx context.Context) time.Time {
	if v.clock != nil {
		return v.clock()
	}
	return requestcontext.Now(ctx)
}

// Decode parses the compact serialization without checking the signature and
// enforces the claims every delivery receipt must carry.
func Decode(token string) (*Payload, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedCredential, len(parts))
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(parts[0], &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedCredential, err)
	}
	if header.Alg == "" {
		return nil, fmt.Errorf("%w: header: missing alg", ErrMalformedCredential)
	}

	var payload Payload
	if err := decodeSegment(parts[1], &payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedCredential, err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return nil, fmt.Errorf("%w: signature segment", ErrMalformedCredential)
	}

	if err := payload.validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

func decodeSegment(seg string, into any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

func (p *Payload) validate() error {
	missing := func(claim string) error {
		return fmt.Errorf("%w: missing %s", ErrMalformedCredential, claim)
	}
	switch {
	case p.Issuer == "":
		return missing("iss")
	case p.Subject == "":
		return missing("sub")
	case p.IssuedAt == nil:
		return missing("iat")
	case p.ExpiresAt == nil:
		return missing("exp")
	case p.VC.CredentialSubject.ID == "":
		return missing("vc.credentialSubject.id")
	}
	if string(p.VC.CredentialSubject.ID) != p.Subject {
		return fmt.Errorf("%w: credentialSubject.id does not match sub", ErrMalformedCredential)
	}
	if !slices.Contains(p.VC.Type, TypeDeliveryReceipt) {
		return fmt.Errorf("%w: not a %s", ErrMalformedCredential, TypeDeliveryReceipt)
	}
	return nil
}

// Result pairs a batch entry with its outcome.
type Result struct {
	Data *Data
	Err  error
}

// VerifyBatch verifies tokens concurrently. Results are aligned with tokens;
// the returned error is non-nil only when ctx ends first.
func (v *Verifier) VerifyBatch(ctx context.Context, tokens []string, local identity.Number) ([]Result, error) {
	results := make([]Result, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, token := range tokens {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := v.Verify(gctx, token, local)
			results[i] = Result{Data: data, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
