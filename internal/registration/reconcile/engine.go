// Package reconcile keeps a user's profile and registration documents
// consistent. It runs on every authenticated page load and after each upload.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ncc/internal/docstore"
	"ncc/internal/registration/metrics"
	"ncc/internal/registration/models"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	"ncc/pkg/email"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

type ProfileStore interface {
	Get(ctx context.Context, userID id.UserID) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, userID id.UserID, fields docstore.Fields) error
}

type RegistrationStore interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]models.Registration, error)
	Create(ctx context.Context, reg *models.Registration) (string, error)
	Update(ctx context.Context, docID string, fields docstore.Fields) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Seed is the best identity data the caller has for a user.
type Seed struct {
	Name  string
	Email string
	// Captured is personal info entered in the wizard this session, if any.
	// It is preferred over Name and Email.
	Captured *models.PersonalInfo
}

// Result reports what EnsureRegistered found or created.
type Result struct {
	RegistrationID id.RegistrationID
	// RegistrationDocID is the store id of the canonical registration.
	// Empty when Divergent.
	RegistrationDocID string
	// ExistingRegistrationID is set when a registration already existed
	// (including one adopted after losing a create race).
	ExistingRegistrationID id.RegistrationID
	ProfileCreated         bool
	RegistrationCreated    bool
	// Divergent means the profile exists but the registration could not be
	// created; RegistrationID is the synthesized, unpersisted id.
	Divergent    bool
	Profile      *models.Profile
	Registration *models.Registration
}

// MergeResult reports which records took a file reference.
type MergeResult struct {
	ProfileUpdated      bool
	RegistrationUpdated bool
	// NoRegistration is set when the user has not submitted yet. Submission
	// copies the file reference from the session, so there is nothing to merge.
	NoRegistration bool
}

// Merged reports whether every existing record now carries the reference.
func (m MergeResult) Merged() bool {
	return m.ProfileUpdated && (m.RegistrationUpdated || m.NoRegistration)
}

// Engine implements profile and registration reconciliation.
type Engine struct {
	profiles       ProfileStore
	registrations  RegistrationStore
	eventType      string
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) {
		e.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithEventType sets the event type stamped on new registrations.
func WithEventType(eventType string) Option {
	return func(e *Engine) {
		e.eventType = eventType
	}
}

func New(profiles ProfileStore, registrations RegistrationStore, opts ...Option) (*Engine, error) {
	if profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if registrations == nil {
		return nil, errors.New("registration store is required")
	}
	e := &Engine{
		profiles:      profiles,
		registrations: registrations,
		eventType:     "NCC",
		logger:        slog.Default(),
		tracer:        otel.Tracer("ncc/registration/reconcile"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnsureRegistered guarantees a profile exists for userID and that exactly
// one registration is associated with it. Profile failures are returned as
// errors; a registration create failure after the profile exists is reported
// through Result.Divergent instead.
func (e *Engine) EnsureRegistered(ctx context.Context, userID id.UserID, seed Seed) (*Result, error) {
	start := time.Now()
	defer e.metrics.ObserveEnsure(start)

	ctx, span := e.tracer.Start(ctx, "reconcile.EnsureRegistered")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", string(userID)))

	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	profile, created, err := e.ensureProfile(ctx, userID, seed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile")
		return nil, err
	}
	result := &Result{Profile: profile, ProfileCreated: created}

	existing, err := e.registrations.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list registrations")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	if len(existing) > 0 {
		e.adopt(ctx, userID, existing, result)
		span.SetAttributes(attribute.String("registration_id", string(result.RegistrationID)))
		return result, nil
	}

	e.createRegistration(ctx, userID, profile, seed, result)
	span.SetAttributes(
		attribute.String("registration_id", string(result.RegistrationID)),
		attribute.Bool("divergent", result.Divergent),
	)
	return result, nil
}

func (e *Engine) ensureProfile(ctx context.Context, userID id.UserID, seed Seed) (*models.Profile, bool, error) {
	profile, err := e.profiles.Get(ctx, userID)
	if err == nil {
		return profile, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}

	now := requestcontext.Now(ctx)
	profile = newProfile(userID, seed, now)
	if err := e.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Another request for the same user created it first.
			winner, getErr := e.profiles.Get(ctx, userID)
			if getErr == nil {
				return winner, false, nil
			}
		}
		e.logger.ErrorContext(ctx, "failed to create profile",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
	}

	e.metrics.IncrementProfileCreated()
	e.logAudit(ctx, audit.Event{
		UserID:  userID,
		Subject: string(userID),
		Action:  string(audit.EventProfileCreated),
		Email:   profile.Email,
	})
	return profile, true, nil
}

func newProfile(userID id.UserID, seed Seed, now time.Time) *models.Profile {
	name, mail := strings.TrimSpace(seed.Name), strings.TrimSpace(seed.Email)
	profile := &models.Profile{
		ID:        userID,
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c := seed.Captured; c != nil && !c.IsZero() {
		if c.FullName != "" {
			name = c.FullName
		}
		if c.Email != "" {
			mail = c.Email
		}
		profile.Phone = c.Phone
		profile.Institution = c.Institution
		profile.StudentID = c.StudentID
	}
	if name == "" {
		name = email.DeriveName(mail)
	}
	profile.Name = name
	profile.Email = mail
	return profile
}

func (e *Engine) adopt(ctx context.Context, userID id.UserID, existing []models.Registration, result *Result) {
	canonical := existing[0]
	if len(existing) > 1 {
		ids := make([]string, len(existing))
		for i, r := range existing {
			ids[i] = string(r.RegistrationID)
		}
		e.logger.WarnContext(ctx, "multiple registrations for user, using oldest",
			"user_id", userID,
			"registration_id", canonical.RegistrationID,
			"registration_ids", ids,
			"request_id", requestcontext.RequestID(ctx),
		)
		e.metrics.IncrementDuplicates()
		e.logAudit(ctx, audit.Event{
			UserID:         userID,
			RegistrationID: canonical.RegistrationID,
			Subject:        string(userID),
			Action:         string(audit.EventDuplicateRegistrations),
			Reason:         fmt.Sprintf("%d registrations", len(existing)),
		})
	}
	result.Registration = &canonical
	result.RegistrationID = canonical.RegistrationID
	result.RegistrationDocID = canonical.ID
	result.ExistingRegistrationID = canonical.RegistrationID
}

func (e *Engine) createRegistration(ctx context.Context, userID id.UserID, profile *models.Profile, seed Seed, result *Result) {
	now := requestcontext.Now(ctx)
	regID, err := id.NewRegistrationID(now)
	if err != nil {
		e.diverge(ctx, userID, "", result, err)
		return
	}

	reg := &models.Registration{
		RegistrationID:          regID,
		UserID:                  userID,
		EventType:               e.eventType,
		PersonalInfo:            bestPersonalInfo(profile, seed),
		StudentIDFileID:         profile.StudentIDFileID,
		PaymentScreenshotFileID: profile.PaymentScreenshotFileID,
		Status:                  models.StatusIncomplete,
		PaymentStatus:           models.PaymentPending,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	docID, err := e.registrations.Create(ctx, reg)
	if errors.Is(err, sentinel.ErrConflict) {
		// Lost a race with a concurrent request; adopt the winner.
		winners, listErr := e.registrations.ListByUser(ctx, userID)
		if listErr == nil && len(winners) > 0 {
			e.adopt(ctx, userID, winners, result)
			return
		}
		if listErr != nil {
			err = errors.Join(err, listErr)
		}
	}
	if err != nil {
		e.diverge(ctx, userID, regID, result, err)
		return
	}

	reg.ID = docID
	result.Registration = reg
	result.RegistrationID = regID
	result.RegistrationDocID = docID
	result.RegistrationCreated = true
	e.metrics.IncrementRegistrationCreated()
	e.logAudit(ctx, audit.Event{
		UserID:         userID,
		RegistrationID: regID,
		Subject:        string(userID),
		Action:         string(audit.EventRegistrationCreated),
		To:             string(models.StatusIncomplete),
	})
}

// diverge records a profile that has no registration. The synthesized id is
// still returned so the wizard can continue; the next EnsureRegistered finds
// no registration and creates a fresh one.
func (e *Engine) diverge(ctx context.Context, userID id.UserID, regID id.RegistrationID, result *Result, cause error) {
	e.logger.ErrorContext(ctx, "registration creation failed after profile creation",
		"event", string(audit.EventRegistrationDivergence),
		"log_type", "audit",
		"error", cause,
		"user_id", userID,
		"registration_id", regID,
		"profile_created", result.ProfileCreated,
		"request_id", requestcontext.RequestID(ctx),
	)
	e.metrics.IncrementDivergence()
	e.logAudit(ctx, audit.Event{
		UserID:         userID,
		RegistrationID: regID,
		Subject:        string(userID),
		Action:         string(audit.EventRegistrationDivergence),
		Reason:         cause.Error(),
	})
	result.RegistrationID = regID
	result.Divergent = true
}

func bestPersonalInfo(profile *models.Profile, seed Seed) models.PersonalInfo {
	if seed.Captured != nil && !seed.Captured.IsZero() {
		return *seed.Captured
	}
	return models.PersonalInfo{
		FullName:    profile.Name,
		Email:       profile.Email,
		Phone:       profile.Phone,
		Institution: profile.Institution,
		StudentID:   profile.StudentID,
	}
}

// MergeFileReference writes fileID to the profile and then to the
// registration (found by user id when regDocID is empty). The two writes are
// independent; the returned error joins whichever failed.
func (e *Engine) MergeFileReference(ctx context.Context, userID id.UserID, regDocID string, kind models.DocumentKind, fileID string) (MergeResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.MergeFileReference")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", string(userID)),
		attribute.String("kind", string(kind)),
	)

	now := requestcontext.Now(ctx)
	fields := docstore.Fields{kind.FileField(): fileID, models.FieldUpdatedAt: now}

	var result MergeResult
	var errs []error

	if err := e.profiles.Update(ctx, userID, fields); err != nil {
		e.metrics.IncrementMergeFailure("profile")
		e.logger.WarnContext(ctx, "failed to merge file reference into profile",
			"error", err,
			"user_id", userID,
			"kind", kind,
			"request_id", requestcontext.RequestID(ctx),
		)
		errs = append(errs, fmt.Errorf("profile: %w", err))
	} else {
		result.ProfileUpdated = true
	}

	if regDocID == "" {
		regs, err := e.registrations.ListByUser(ctx, userID)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("find registration: %w", err))
		case len(regs) == 0:
			result.NoRegistration = true
		default:
			regDocID = regs[0].ID
		}
	}
	if regDocID != "" {
		if err := e.registrations.Update(ctx, regDocID, fields); err != nil {
			errs = append(errs, fmt.Errorf("registration: %w", err))
		} else {
			result.RegistrationUpdated = true
		}
	}
	if !result.RegistrationUpdated && !result.NoRegistration {
		e.metrics.IncrementMergeFailure("registration")
		e.logger.WarnContext(ctx, "failed to merge file reference into registration",
			"error", errors.Join(errs...),
			"user_id", userID,
			"kind", kind,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		return result, err
	}
	return result, nil
}

func (e *Engine) logAudit(ctx context.Context, event audit.Event) {
	e.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"user_id", event.UserID,
		"registration_id", event.RegistrationID,
		"request_id", requestcontext.RequestID(ctx),
	)
	if e.auditPublisher == nil {
		return
	}
	if err := e.auditPublisher.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "failed to emit audit event",
			"error", err,
			"action", event.Action,
		)
	}
}
