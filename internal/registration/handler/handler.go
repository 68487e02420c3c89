// Package handler exposes the registration wizard and the staff verification
// operations over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	httpmetrics "ncc/internal/platform/metrics"
	"ncc/internal/registration/models"
	"ncc/internal/registration/reconcile"
	"ncc/internal/registration/store"
	"ncc/internal/registration/verification"
	"ncc/internal/registration/workflow"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/httputil"
	"ncc/pkg/platform/middleware/admin"
	"ncc/pkg/platform/middleware/auth"
	"ncc/pkg/requestcontext"
)

// multipartOverhead is the slack allowed above the file limit for form
// boundaries and headers.
const multipartOverhead = 64 << 10

const defaultMaxUploadBytes = 5 << 20

type Workflow interface {
	SubmitPersonalInfo(ctx context.Context, caller *workflow.Caller, input workflow.PersonalInfoInput) (*workflow.PersonalInfoResult, error)
	AcceptAgreement(ctx context.Context, userID id.UserID, accepted bool) error
	UploadDocument(ctx context.Context, userID id.UserID, kind models.DocumentKind, upload workflow.Upload) (*workflow.UploadResult, error)
	DocumentPreviewURL(ctx context.Context, userID id.UserID, kind models.DocumentKind) (string, error)
	FinalizeSubmission(ctx context.Context, userID id.UserID) (*workflow.SubmissionResult, error)
	Progress(ctx context.Context, userID id.UserID) (*workflow.Progress, error)
}

type Reconciler interface {
	EnsureRegistered(ctx context.Context, userID id.UserID, seed reconcile.Seed) (*reconcile.Result, error)
}

type Verification interface {
	SetRegistrationStatus(ctx context.Context, actorID string, regID id.RegistrationID, target models.Status) (*verification.Transition, error)
	SetPaymentStatus(ctx context.Context, actorID string, regID id.RegistrationID, target models.PaymentStatus) (*verification.Transition, error)
	GetUserWithRegistration(ctx context.Context, userID id.UserID) (*models.UserWithRegistration, error)
	ListRegistrations(ctx context.Context, filter store.ListFilter) ([]models.Registration, error)
	SetUserRole(ctx context.Context, actorID string, userID id.UserID, role models.Role) (*verification.Transition, error)
	History(ctx context.Context, regID id.RegistrationID) ([]audit.Event, error)
}

type Handler struct {
	workflow       Workflow
	reconciler     Reconciler
	verification   Verification
	validator      auth.TokenValidator
	roles          admin.RoleChecker
	adminToken     string
	maxUploadBytes int64
	metrics        *httpmetrics.Metrics
	logger         *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithAdminToken enables the /ops routes used by the regadmin CLI.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func WithMetrics(m *httpmetrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func New(wf Workflow, reconciler Reconciler, verifier Verification, validator auth.TokenValidator, roles admin.RoleChecker, opts ...Option) *Handler {
	h := &Handler{
		workflow:       wf,
		reconciler:     reconciler,
		verification:   verifier,
		validator:      validator,
		roles:          roles,
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/registration", func(r chi.Router) {
		r.With(auth.OptionalAuth(h.validator, h.logger)).Post("/personal-info", h.HandlePersonalInfo)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(h.validator, h.logger))
			r.Post("/agreement", h.HandleAgreement)
			r.Post("/documents/{kind}", h.HandleUpload)
			r.Get("/documents/{kind}/preview", h.HandlePreview)
			r.Post("/submit", h.HandleSubmit)
			r.Get("/me", h.HandleMe)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator, h.logger))
		r.Use(admin.RequireAdminRole(h.roles, h.logger))
		h.registerStaff(r)
	})

	r.Route("/ops", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		h.registerStaff(r)
	})
}

func (h *Handler) registerStaff(r chi.Router) {
	r.Get("/registrations", h.HandleList)
	r.Put("/registrations/{registrationID}/status", h.HandleSetStatus)
	r.Put("/registrations/{registrationID}/payment-status", h.HandleSetPaymentStatus)
	r.Get("/registrations/{registrationID}/history", h.HandleHistory)
	r.Get("/users/{userID}", h.HandleGetUser)
	r.Put("/users/{userID}/role", h.HandleSetRole)
}

func (h *Handler) HandlePersonalInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var input workflow.PersonalInfoInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var caller *workflow.Caller
	if userID := requestcontext.UserID(ctx); !userID.IsNil() {
		caller = &workflow.Caller{UserID: userID, Email: requestcontext.UserEmail(ctx)}
	}
	res, err := h.workflow.SubmitPersonalInfo(ctx, caller, input)
	if err != nil {
		h.logFailure(ctx, "personal info failed", err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if res.AccountCreated {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, res)
}

type agreementRequest struct {
	Accepted bool `json:"accepted"`
}

func (h *Handler) HandleAgreement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req agreementRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.workflow.AcceptAgreement(ctx, requestcontext.UserID(ctx), req.Accepted); err != nil {
		h.logFailure(ctx, "agreement failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := models.ParseDocumentKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, h.formError(err))
		return
	}
	defer file.Close()

	res, err := h.workflow.UploadDocument(ctx, requestcontext.UserID(ctx), kind, workflow.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		h.logFailure(ctx, "document upload failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.metrics.ObserveUpload(header.Size)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) formError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return dErrors.New(dErrors.CodeValidation, "file too large: maximum size is "+strconv.FormatInt(h.maxUploadBytes>>20, 10)+" MB")
	}
	if errors.Is(err, http.ErrMissingFile) {
		return dErrors.New(dErrors.CodeValidation, "file is required")
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
}

type previewResponse struct {
	URL string `json:"url"`
}

func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := models.ParseDocumentKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	url, err := h.workflow.DocumentPreviewURL(ctx, requestcontext.UserID(ctx), kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, previewResponse{URL: url})
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.workflow.FinalizeSubmission(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "submission failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type meResponse struct {
	RegistrationID      id.RegistrationID        `json:"registrationId"`
	Divergent           bool                     `json:"divergent"`
	ProfileCreated      bool                     `json:"profileCreated"`
	RegistrationCreated bool                     `json:"registrationCreated"`
	Profile             *models.Profile          `json:"profile,omitempty"`
	Registration        *models.Registration     `json:"registration,omitempty"`
	Documents           models.ResolvedDocuments `json:"documents"`
	Progress            *workflow.Progress       `json:"progress"`
}

// HandleMe reconciles the caller's records, then returns the merged view
// and the wizard resume point.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	ensured, err := h.reconciler.EnsureRegistered(ctx, userID, reconcile.Seed{Email: requestcontext.UserEmail(ctx)})
	if err != nil {
		h.logFailure(ctx, "reconcile failed", err)
		httputil.WriteError(w, err)
		return
	}
	progress, err := h.workflow.Progress(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meResponse{
		RegistrationID:      ensured.RegistrationID,
		Divergent:           ensured.Divergent,
		ProfileCreated:      ensured.ProfileCreated,
		RegistrationCreated: ensured.RegistrationCreated,
		Profile:             ensured.Profile,
		Registration:        ensured.Registration,
		Documents:           models.ResolveDocuments(ensured.Profile, ensured.Registration),
		Progress:            progress,
	})
}

type listResponse struct {
	Registrations []models.Registration `json:"registrations"`
	Count         int                   `json:"count"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := store.ListFilter{
		Status:        models.Status(q.Get("status")),
		PaymentStatus: models.PaymentStatus(q.Get("payment_status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	regs, err := h.verification.ListRegistrations(ctx, filter)
	if err != nil {
		h.logFailure(ctx, "list registrations failed", err)
		httputil.WriteError(w, err)
		return
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Registrations: regs, Count: len(regs)})
}

func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.verification.GetUserWithRegistration(ctx, id.UserID(chi.URLParam(r, "userID")))
	if err != nil {
		h.logFailure(ctx, "get user failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := models.ParseStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.verification.SetRegistrationStatus(ctx, actor(ctx), registrationID(r), target)
	h.writeTransition(w, r, "set status failed", t, err)
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

func (h *Handler) HandleSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req paymentStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := models.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.verification.SetPaymentStatus(ctx, actor(ctx), registrationID(r), target)
	h.writeTransition(w, r, "set payment status failed", t, err)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req roleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.verification.SetUserRole(ctx, actor(ctx), id.UserID(chi.URLParam(r, "userID")), role)
	h.writeTransition(w, r, "set role failed", t, err)
}

func (h *Handler) writeTransition(w http.ResponseWriter, r *http.Request, msg string, t *verification.Transition, err error) {
	if err != nil {
		h.logFailure(r.Context(), msg, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

type historyEntry struct {
	Action    string    `json:"action"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
	UserID    id.UserID `json:"userId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type historyResponse struct {
	RegistrationID id.RegistrationID `json:"registrationId"`
	Entries        []historyEntry    `json:"entries"`
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regID := registrationID(r)
	events, err := h.verification.History(ctx, regID)
	if err != nil {
		h.logFailure(ctx, "history failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := historyResponse{RegistrationID: regID, Entries: make([]historyEntry, 0, len(events))}
	for _, e := range events {
		resp.Entries = append(resp.Entries, historyEntry{
			Action:    e.Action,
			From:      e.From,
			To:        e.To,
			ActorID:   e.ActorID,
			UserID:    e.UserID,
			Reason:    e.Reason,
			Timestamp: e.Timestamp,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func registrationID(r *http.Request) id.RegistrationID {
	return id.RegistrationID(chi.URLParam(r, "registrationID"))
}

// actor is the signed-in admin, or the operator on token-guarded routes.
func actor(ctx context.Context) string {
	if userID := requestcontext.UserID(ctx); !userID.IsNil() {
		return string(userID)
	}
	return verification.OperatorActor
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"user_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
}
