// Package service orchestrates credential issuance and server-side
// verification on top of the signer, the verifier and a credential store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	"semear/internal/platform/metrics"
	"semear/internal/rotation"
	dErrors "semear/pkg/domain-errors"
	"semear/pkg/platform/audit"
	"semear/pkg/platform/sentinel"
	"semear/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, rec credential.Record) error
	FindByID(ctx context.Context, id credential.ID) (credential.Record, error)
	FindByRef(ctx context.Context, ref credential.Ref) (credential.Record, error)
	FindByNumber(ctx context.Context, n identity.Number) ([]credential.Record, error)
	FindBySubjects(ctx context.Context, subjects []did.DID) ([]credential.Record, error)
	Stats(ctx context.Context) (credential.Stats, error)
	Health(ctx context.Context) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service issues, stores and verifies delivery receipts.
type Service struct {
	issuer   *credential.Issuer
	verifier *credential.Verifier
	store    Store
	logger   *slog.Logger
	audit    AuditPublisher
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	clock    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the time used for Record.CreatedAt.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// New constructs a Service. Issuer and verifier must share one rotation config.
func New(issuer *credential.Issuer, verifier *credential.Verifier, store Store, opts ...Option) (*Service, error) {
	if issuer == nil || verifier == nil || store == nil {
		return nil, errors.New("service: issuer, verifier and store are required")
	}
	if issuer.Config().Fingerprint() != verifier.Config().Fingerprint() {
		return nil, errors.New("service: issuer and verifier rotation configs differ")
	}
	s := &Service{
		issuer:   issuer,
		verifier: verifier,
		store:    store,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("semear/credential"),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue validates the request, signs a credential, stores it and emits a
// credential_issued audit event. The record carries the short Ref used in QR codes.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*credential.Record, error) {
	ctx, span := s.tracer.Start(ctx, "credential.Issue")
	defer span.End()
	start := time.Now()

	producer, event, err := req.Normalize()
	if err != nil {
		s.metrics.IncIssueFailure("validation")
		return nil, spanError(span, err)
	}

	issued, err := s.issuer.Issue(ctx, producer, event)
	if err != nil {
		s.metrics.IncIssueFailure("sign")
		s.logger.ErrorContext(ctx, "failed to sign credential", "masked_cpf", producer.Number.Masked(), "error", err)
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeInternal, "falha ao assinar a credencial"))
	}
	ref, err := credential.RefFor(issued.ID)
	if err != nil {
		s.metrics.IncIssueFailure("ref")
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeInternal, "falha ao gerar referência"))
	}
	span.SetAttributes(
		attribute.String("credential.id", issued.ID.String()),
		attribute.String("credential.subject", issued.SubjectDID.String()),
	)

	rec := credential.Record{
		ID:           issued.ID,
		Ref:          ref,
		Number:       producer.Number,
		ProducerName: producer.Name,
		SubjectDID:   issued.SubjectDID,
		Token:        issued.Token,
		Product:      event.Product,
		Quantity:     event.Quantity,
		Unit:         event.Unit,
		IssuedAt:     issued.Payload.IssuedAt.Time,
		ExpiresAt:    issued.Payload.ExpiresAt.Time,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		s.metrics.IncIssueFailure("store")
		s.logger.ErrorContext(ctx, "failed to store credential",
			"credential_id", rec.ID,
			"masked_cpf", producer.Number.Masked(),
			"error", err,
		)
		return nil, spanError(span, storeError(err, "falha ao salvar a credencial"))
	}

	s.emit(ctx, audit.Event{
		Action:       audit.ActionCredentialIssued,
		Subject:      rec.SubjectDID.String(),
		CredentialID: rec.ID.String(),
		Issuer:       s.issuer.Cooperative().DID.String(),
		MaskedNumber: producer.Number.Masked(),
	})
	s.logger.InfoContext(ctx, "credential issued",
		"credential_id", rec.ID,
		"ref", rec.Ref,
		"subject", rec.SubjectDID,
		"masked_cpf", producer.Number.Masked(),
		"product", rec.Product,
	)
	s.metrics.ObserveIssue(time.Since(start))
	return &rec, nil
}

// ListByNumber returns every credential issued to the identity, newest first.
func (s *Service) ListByNumber(ctx context.Context, rawNumber string) ([]credential.Record, error) {
	n, err := identity.Parse(rawNumber)
	if err != nil {
		return nil, credential.ToDomainError(err)
	}
	recs, err := s.store.FindByNumber(ctx, n)
	if err != nil {
		s.metrics.IncLookup("by_number", "error")
		return nil, storeError(err, "falha ao buscar credenciais")
	}
	s.metrics.IncLookup("by_number", hitOrMiss(len(recs) > 0))
	return recs, nil
}

// ListActive returns the identity's credentials whose subject DID is still
// inside the verification window, i.e. the ones a wallet would accept today.
func (s *Service) ListActive(ctx context.Context, rawNumber string) ([]credential.Record, error) {
	n, err := identity.Parse(rawNumber)
	if err != nil {
		return nil, credential.ToDomainError(err)
	}
	subjects := did.HistoricalFor(n, s.verifier.Config(), requestcontext.Now(ctx))
	recs, err := s.store.FindBySubjects(ctx, subjects)
	if err != nil {
		s.metrics.IncLookup("by_subjects", "error")
		return nil, storeError(err, "falha ao buscar credenciais")
	}
	s.metrics.IncLookup("by_subjects", hitOrMiss(len(recs) > 0))
	return recs, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (credential.Record, error) {
	id, err := credential.ParseID(rawID)
	if err != nil {
		return credential.Record{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "identificador de credencial inválido")
	}
	rec, err := s.store.FindByID(ctx, id)
	s.metrics.IncLookup("by_id", lookupResult(err))
	if err != nil {
		return credential.Record{}, storeError(err, "falha ao buscar credencial")
	}
	return rec, nil
}

// GetByRef resolves the short reference printed in QR codes.
func (s *Service) GetByRef(ctx context.Context, ref string) (credential.Record, error) {
	rec, err := s.store.FindByRef(ctx, credential.Ref(ref))
	s.metrics.IncLookup("by_ref", lookupResult(err))
	if err != nil {
		return credential.Record{}, storeError(err, "falha ao buscar credencial")
	}
	return rec, nil
}

func (s *Service) Stats(ctx context.Context) (credential.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return credential.Stats{}, storeError(err, "falha ao calcular estatísticas")
	}
	return st, nil
}

// Verify runs the full verification pipeline on behalf of the holder of
// rawNumber. Failures come back as domain errors carrying the user message.
func (s *Service) Verify(ctx context.Context, token, rawNumber string) (*credential.Data, error) {
	ctx, span := s.tracer.Start(ctx, "credential.Verify")
	defer span.End()
	start := time.Now()

	n, err := identity.Parse(rawNumber)
	var data *credential.Data
	if err == nil {
		data, err = s.verifier.Verify(ctx, token, n)
	}
	reason := credential.Reason(err)
	span.SetAttributes(attribute.String("credential.result", reason))
	s.metrics.ObserveVerify(reason, time.Since(start))

	event := audit.Event{Action: audit.ActionCredentialVerified}
	if !n.IsZero() {
		event.MaskedNumber = n.Masked()
	}
	if p, decodeErr := credential.Decode(token); decodeErr == nil {
		event.Subject = p.Subject
		event.CredentialID = p.ID
		event.Issuer = p.Issuer
	}
	if err != nil {
		event.Action = audit.ActionVerificationFailed
		event.Reason = reason
		s.emit(ctx, event)
		s.logger.InfoContext(ctx, "credential verification failed", "reason", reason, "masked_cpf", event.MaskedNumber)
		return nil, spanError(span, credential.ToDomainError(err))
	}
	s.emit(ctx, event)
	return data, nil
}

// CooperativeInfo is the public description of the issuer.
type CooperativeInfo struct {
	Name         string        `json:"nome"`
	DID          did.DID       `json:"did"`
	RotationMode rotation.Mode `json:"rotation_mode"`
	HistoryDepth int           `json:"history_depth"`
	Timezone     string        `json:"timezone"`
	Fingerprint  string        `json:"config_fingerprint"`
}

func (s *Service) Cooperative() CooperativeInfo {
	coop := s.issuer.Cooperative()
	cfg := s.issuer.Config()
	return CooperativeInfo{
		Name:         coop.Name,
		DID:          coop.DID,
		RotationMode: cfg.Mode(),
		HistoryDepth: cfg.Depth(),
		Timezone:     cfg.Location().String(),
		Fingerprint:  cfg.Fingerprint(),
	}
}

func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Health(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "armazenamento indisponível")
	}
	return nil
}

// emit publishes an audit event. Audit failures are logged, never returned.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "credencial não encontrada")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "credencial já registrada")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "armazenamento indisponível")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return "hit"
	case errors.Is(err, sentinel.ErrNotFound):
		return "miss"
	default:
		return "error"
	}
}

func hitOrMiss(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
