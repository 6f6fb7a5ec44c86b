package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	"semear/pkg/platform/audit"
)

// Receipts is the storage a wallet needs.
type Receipts interface {
	Put(ctx context.Context, r Receipt) error
	Get(ctx context.Context, id string) (Receipt, error)
	List(ctx context.Context) ([]Receipt, error)
	Delete(ctx context.Context, id string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Wallet holds receipts for a single producer.
type Wallet struct {
	owner    identity.Number
	verifier *credential.Verifier
	receipts Receipts
	fetcher  *Fetcher
	audit    AuditPublisher
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*Wallet)

func WithFetcher(f *Fetcher) Option {
	return func(w *Wallet) {
		w.fetcher = f
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(w *Wallet) {
		w.audit = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wallet) {
		w.logger = logger
	}
}

// WithClock sets the time recorded as Receipt.SavedAt.
func WithClock(clock func() time.Time) Option {
	return func(w *Wallet) {
		w.clock = clock
	}
}

// New builds a wallet for owner. The verifier must be configured with the
// same rotation settings as the issuing cooperative.
func New(owner identity.Number, verifier *credential.Verifier, receipts Receipts, opts ...Option) (*Wallet, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if verifier == nil || receipts == nil {
		return nil, errors.New("wallet: verifier and receipt store are required")
	}
	w := &Wallet{
		owner:    owner,
		verifier: verifier,
		receipts: receipts,
		fetcher:  NewFetcher(nil),
		logger:   slog.New(slog.DiscardHandler),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Wallet) Owner() identity.Number {
	return w.owner
}

// DIDs returns the owner's DIDs for the verification window at now,
// current period first.
func (w *Wallet) DIDs(now time.Time) []did.DID {
	return did.HistoricalFor(w.owner, w.verifier.Config(), now)
}

// Resolve turns scanned QR content into a token: URLs are fetched from the
// issuer, strings starting with "eyJ" are taken as a JWT.
func (w *Wallet) Resolve(ctx context.Context, qr string) (string, error) {
	qr = strings.TrimSpace(qr)
	switch {
	case strings.HasPrefix(qr, "http://"), strings.HasPrefix(qr, "https://"):
		return w.fetcher.Fetch(ctx, qr)
	case strings.HasPrefix(qr, "eyJ"):
		return qr, nil
	default:
		return "", ErrUnknownPayload
	}
}

// Check verifies a scanned credential for the owner without storing it.
func (w *Wallet) Check(ctx context.Context, qr string) (string, *credential.Data, error) {
	token, err := w.Resolve(ctx, qr)
	if err != nil {
		return "", nil, err
	}
	data, err := w.verifier.Verify(ctx, token, w.owner)
	if err != nil {
		return token, nil, err
	}
	return token, data, nil
}

// Import resolves, verifies and stores a scanned credential. A credential
// for another producer fails with credential.ErrNotMine and a repeated
// import with ErrAlreadySaved.
func (w *Wallet) Import(ctx context.Context, qr string) (*Receipt, error) {
	token, data, err := w.Check(ctx, qr)
	if err != nil {
		w.logger.InfoContext(ctx, "receipt rejected", "reason", credential.Reason(err), "error", err)
		return nil, err
	}

	r := Receipt{
		ID:      ReceiptID(token),
		Token:   token,
		Data:    *data,
		SavedAt: w.clock().UTC(),
	}
	if err := w.receipts.Put(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadySaved) {
			return nil, err
		}
		return nil, fmt.Errorf("save receipt: %w", err)
	}

	w.emit(ctx, audit.ActionCredentialImported, r)
	w.logger.InfoContext(ctx, "receipt saved", "receipt_id", r.ID, "credential_id", r.Data.ID, "subject", r.Data.Subject)
	return &r, nil
}

func (w *Wallet) List(ctx context.Context) ([]Receipt, error) {
	return w.receipts.List(ctx)
}

func (w *Wallet) Get(ctx context.Context, id string) (Receipt, error) {
	return w.receipts.Get(ctx, id)
}

func (w *Wallet) Delete(ctx context.Context, id string) error {
	r, err := w.receipts.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := w.receipts.Delete(ctx, id); err != nil {
		return err
	}
	w.emit(ctx, audit.ActionCredentialDeleted, r)
	return nil
}

func (w *Wallet) emit(ctx context.Context, action audit.Action, r Receipt) {
	if w.audit == nil {
		return
	}
	err := w.audit.Emit(ctx, audit.Event{
		Action:       action,
		Subject:      r.Data.Subject.String(),
		CredentialID: r.Data.ID,
		Issuer:       r.Data.Issuer.String(),
		MaskedNumber: w.owner.Masked(),
	})
	if err != nil {
		w.logger.WarnContext(ctx, "failed to emit audit event", "action", action, "error", err)
	}
}
