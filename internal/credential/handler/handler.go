package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"semear/internal/credential"
	"semear/internal/credential/service"
	"semear/internal/identity"
	dErrors "semear/pkg/domain-errors"
	"semear/pkg/platform/httputil"
	"semear/pkg/requestcontext"
)

// Service defines the credential operations the HTTP layer needs.
type Service interface {
	Issue(ctx context.Context, req service.IssueRequest) (*credential.Record, error)
	ListByNumber(ctx context.Context, rawNumber string) ([]credential.Record, error)
	ListActive(ctx context.Context, rawNumber string) ([]credential.Record, error)
	Get(ctx context.Context, rawID string) (credential.Record, error)
	GetByRef(ctx context.Context, ref string) (credential.Record, error)
	Stats(ctx context.Context) (credential.Stats, error)
	Verify(ctx context.Context, token, rawNumber string) (*credential.Data, error)
	Cooperative() service.CooperativeInfo
	Health(ctx context.Context) error
}

// Handler wires credential endpoints to the credential service.
type Handler struct {
	service   Service
	logger    *slog.Logger
	publicURL string
	storeName string
	started   time.Time
}

type Option func(*Handler)

// WithPublicURL makes QR payloads point at the ref endpoint instead of
// embedding the whole token.
func WithPublicURL(url string) Option {
	return func(h *Handler) {
		h.publicURL = url
	}
}

// WithStoreName labels the active backend in health responses.
func WithStoreName(name string) Option {
	return func(h *Handler) {
		h.storeName = name
	}
}

// New constructs a credential handler with its dependencies.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger, started: time.Now()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts credential endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/credentials", h.HandleIssue)
	r.Post("/api/credentials/verify", h.HandleVerify)
	r.Get("/api/credentials/ref/{ref}", h.HandleGetByRef)
	r.Get("/api/credentials/{id}", h.HandleGet)
	r.Get("/api/producers/{cpf}/credentials", h.HandleListByProducer)
	r.Get("/api/cooperative", h.HandleCooperative)
	r.Get("/api/stats", h.HandleStats)
	r.Get("/api/health", h.HandleHealth)

	r.Post("/api/emitir-vc", h.HandleLegacyIssue)
	r.Get("/api/vcs/{cpf}", h.HandleLegacyList)
}

// HandleIssue handles POST /api/credentials.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.issue(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, IssueResponse{
		Success:    true,
		ID:         rec.ID.String(),
		Ref:        string(rec.Ref),
		Token:      rec.Token,
		QRData:     h.qrData(rec),
		SubjectDID: rec.SubjectDID,
		IssuedAt:   rec.IssuedAt,
		ExpiresAt:  rec.ExpiresAt,
		Message:    "Credencial emitida com sucesso",
	})
}

// HandleLegacyIssue handles POST /api/emitir-vc. The QR payload is the raw
// token, as older wallets expect.
func (h *Handler) HandleLegacyIssue(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.issue(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, LegacyIssueResponse{
		Success: true,
		VCJWT:   rec.Token,
		QRData:  rec.Token,
		Ref:     string(rec.Ref),
		Message: "Verifiable Credential emitido com sucesso",
	})
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) (*credential.Record, bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return nil, false
	}
	rec, err := h.service.Issue(ctx, req.ToService())
	if err != nil {
		h.logFailure(ctx, "credential issuance failed", err)
		httputil.WriteError(w, err)
		return nil, false
	}
	return rec, true
}

// HandleGet handles GET /api/credentials/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRecord(rec))
}

// HandleGetByRef handles GET /api/credentials/ref/{ref}, the QR code target.
func (h *Handler) HandleGetByRef(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetByRef(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRecord(rec))
}

// HandleListByProducer handles GET /api/producers/{cpf}/credentials. With
// ?scope=active only credentials inside the current verification window are
// returned.
func (h *Handler) HandleListByProducer(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "cpf")
	list := h.service.ListByNumber
	if r.URL.Query().Get("scope") == "active" {
		list = h.service.ListActive
	}
	recs, err := list(r.Context(), raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{
		MaskedCPF:   maskedOf(raw),
		Total:       len(recs),
		Credentials: fromRecords(recs),
	})
}

// HandleLegacyList handles GET /api/vcs/{cpf}.
func (h *Handler) HandleLegacyList(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "cpf")
	recs, err := h.service.ListByNumber(r.Context(), raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LegacyListResponse{
		Success: true,
		CPF:     identity.Sanitize(raw),
		TotalVC: len(recs),
		VCs:     fromRecords(recs),
	})
}

// HandleVerify handles POST /api/credentials/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	data, err := h.service.Verify(ctx, req.Token, req.CPF)
	if err != nil {
		code := dErrors.CodeOf(err)
		httputil.WriteJSON(w, dErrors.ToHTTPStatus(code), VerifyResponse{
			Result:           credential.Reason(err),
			Error:            string(code),
			ErrorDescription: credential.UserMessage(err),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		Valid:  true,
		Result: credential.Reason(nil),
		Data:   data,
	})
}

// HandleCooperative handles GET /api/cooperative.
func (h *Handler) HandleCooperative(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Cooperative())
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// HandleHealth handles GET /api/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Store:     h.storeName,
	}
	status := http.StatusOK
	if err := h.service.Health(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Error = dErrors.MessageOf(err)
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) qrData(rec *credential.Record) string {
	if h.publicURL == "" {
		return rec.Token
	}
	return h.publicURL + "/api/credentials/ref/" + string(rec.Ref)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	var de *dErrors.Error
	if !errors.As(err, &de) || de.Code == dErrors.CodeInternal || de.Code == dErrors.CodeUnavailable {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func maskedOf(raw string) string {
	return identity.Number(identity.Sanitize(raw)).Masked()
}
