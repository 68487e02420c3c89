// Package workflow drives the applicant's multi-step registration wizard:
// personal info, agreement, documents and final submission.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"ncc/internal/blobstore"
	"ncc/internal/docstore"
	identity "ncc/internal/identity/models"
	"ncc/internal/registration/metrics"
	"ncc/internal/registration/models"
	"ncc/internal/registration/reconcile"
	id "ncc/pkg/domain"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

type Reconciler interface {
	EnsureRegistered(ctx context.Context, userID id.UserID, seed reconcile.Seed) (*reconcile.Result, error)
	MergeFileReference(ctx context.Context, userID id.UserID, regDocID string, kind models.DocumentKind, fileID string) (reconcile.MergeResult, error)
}

type ProfileStore interface {
	Get(ctx context.Context, userID id.UserID) (*models.Profile, error)
	Update(ctx context.Context, userID id.UserID, fields docstore.Fields) error
}

type RegistrationStore interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]models.Registration, error)
	Create(ctx context.Context, reg *models.Registration) (string, error)
	Update(ctx context.Context, docID string, fields docstore.Fields) error
}

// SessionStore holds the transient wizard state. Get returns
// sentinel.ErrNotFound when no session exists or it expired.
type SessionStore interface {
	Get(ctx context.Context, userID id.UserID) (*models.WizardSession, error)
	Save(ctx context.Context, session *models.WizardSession) error
}

type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password, name string) (id.UserID, error)
	Login(ctx context.Context, req *identity.LoginRequest) (*identity.LoginResult, error)
	CurrentSession(ctx context.Context, accessToken string) (*identity.Session, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var tracer = otel.Tracer("ncc/registration/workflow")

// Config carries the workflow tunables.
type Config struct {
	EventType            string
	Fee                  decimal.Decimal
	StudentIDBucket      string
	PaymentBucket        string
	MaxUploadBytes       int64
	PreviewExpiry        time.Duration
	IdentityPollAttempts int
	IdentityPollInterval time.Duration
}

func (c Config) bucket(kind models.DocumentKind) string {
	if kind == models.DocumentPaymentScreenshot {
		return c.PaymentBucket
	}
	return c.StudentIDBucket
}

// Deps are the collaborators the workflow needs.
type Deps struct {
	Reconciler    Reconciler
	Profiles      ProfileStore
	Registrations RegistrationStore
	Sessions      SessionStore
	Blobs         blobstore.Store
	Identity      IdentityProvider
}

// Service implements the registration wizard.
type Service struct {
	Deps
	cfg            Config
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(deps Deps, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case deps.Reconciler == nil:
		return nil, errors.New("reconciler is required")
	case deps.Profiles == nil:
		return nil, errors.New("profile store is required")
	case deps.Registrations == nil:
		return nil, errors.New("registration store is required")
	case deps.Sessions == nil:
		return nil, errors.New("session store is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob store is required")
	case deps.Identity == nil:
		return nil, errors.New("identity provider is required")
	}
	if cfg.EventType == "" {
		cfg.EventType = "NCC"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	if cfg.PreviewExpiry <= 0 {
		cfg.PreviewExpiry = 15 * time.Minute
	}
	if cfg.IdentityPollAttempts <= 0 {
		cfg.IdentityPollAttempts = 1
	}
	s := &Service{Deps: deps, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// loadSession returns the wizard session for userID, or a fresh one when none
// exists. A store failure is returned alongside the fresh session.
func (s *Service) loadSession(ctx context.Context, userID id.UserID) (*models.WizardSession, error) {
	sess, err := s.Sessions.Get(ctx, userID)
	if err == nil {
		return sess, nil
	}
	fresh := models.NewWizardSession(userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return fresh, nil
	}
	s.logger.WarnContext(ctx, "failed to load wizard session",
		"error", err,
		"user_id", userID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return fresh, err
}

func (s *Service) saveSession(ctx context.Context, sess *models.WizardSession) error {
	sess.UpdatedAt = requestcontext.Now(ctx)
	if err := s.Sessions.Save(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "failed to save wizard session",
			"error", err,
			"user_id", sess.UserID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return err
	}
	return nil
}

// persisted loads the profile and canonical registration. Missing records
// are returned as nil without error.
func (s *Service) persisted(ctx context.Context, userID id.UserID) (*models.Profile, *models.Registration, error) {
	var errs []error
	profile, err := s.Profiles.Get(ctx, userID)
	if err != nil {
		profile = nil
		if !errors.Is(err, sentinel.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	var reg *models.Registration
	regs, err := s.Registrations.ListByUser(ctx, userID)
	if err != nil {
		errs = append(errs, err)
	} else if len(regs) > 0 {
		reg = &regs[0]
	}
	return profile, reg, errors.Join(errs...)
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"user_id", event.UserID,
		"registration_id", event.RegistrationID,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"error", err,
			"action", event.Action,
		)
	}
}
