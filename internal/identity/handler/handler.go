// Package handler exposes the local identity provider over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ncc/internal/identity/models"
	dErrors "ncc/pkg/domain-errors"
	"ncc/pkg/platform/httputil"
	"ncc/pkg/platform/middleware/auth"
	"ncc/pkg/requestcontext"
)

type Service interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error)
	Logout(ctx context.Context, accessToken string) error
	CurrentSession(ctx context.Context, accessToken string) (*models.Session, error)
}

type Handler struct {
	service   Service
	validator auth.TokenValidator
	logger    *slog.Logger
}

func New(service Service, validator auth.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{service: service, validator: validator, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator, h.logger))
		r.Post("/auth/logout", h.HandleLogout)
		r.Get("/auth/session", h.HandleSession)
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Login(r.Context(), &req)
	if err != nil {
		h.logFailure(r.Context(), "login failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Logout(ctx, requestcontext.BearerToken(ctx)); err != nil {
		h.logFailure(ctx, "logout failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.service.CurrentSession(ctx, requestcontext.BearerToken(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
