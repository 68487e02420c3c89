// Package verification implements the staff side of the registration
// lifecycle: reviewing applicants and moving registrations between states.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"ncc/internal/docstore"
	"ncc/internal/events"
	"ncc/internal/registration/metrics"
	"ncc/internal/registration/models"
	"ncc/internal/registration/store"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

type ProfileStore interface {
	Get(ctx context.Context, userID id.UserID) (*models.Profile, error)
	Update(ctx context.Context, userID id.UserID, fields docstore.Fields) error
}

type RegistrationStore interface {
	GetByRegistrationID(ctx context.Context, regID id.RegistrationID) (*models.Registration, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]models.Registration, error)
	List(ctx context.Context, filter store.ListFilter) ([]models.Registration, error)
	Update(ctx context.Context, docID string, fields docstore.Fields) error
}

// HistoryStore reads the audit transition log.
type HistoryStore interface {
	ListByRegistration(ctx context.Context, registrationID id.RegistrationID) ([]audit.Event, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// OperatorActor identifies changes made through the operator token.
const OperatorActor = "operator"

const (
	defaultListLimit      = 100
	maxListLimit          = 500
	defaultPublishTimeout = 10 * time.Second
)

var tracer = otel.Tracer("ncc/registration/verification")

type Service struct {
	profiles       ProfileStore
	registrations  RegistrationStore
	history        HistoryStore
	publisher      EventPublisher
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	publishTimeout time.Duration
	inflight       sync.WaitGroup
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

// WithEventPublisher enables decision events for approvals and rejections.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

func New(profiles ProfileStore, registrations RegistrationStore, history HistoryStore, opts ...Option) (*Service, error) {
	switch {
	case profiles == nil:
		return nil, errors.New("profile store is required")
	case registrations == nil:
		return nil, errors.New("registration store is required")
	case history == nil:
		return nil, errors.New("history store is required")
	}
	s := &Service{
		profiles:       profiles,
		registrations:  registrations,
		history:        history,
		logger:         slog.Default(),
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Transition reports a staff status change. Changed is false when the
// registration already had the requested value.
type Transition struct {
	RegistrationID id.RegistrationID `json:"registrationId"`
	Axis           string            `json:"axis"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Changed        bool              `json:"changed"`
}

// SetRegistrationStatus moves a submitted registration to pending, approved
// or rejected. The payment status is never touched.
func (s *Service) SetRegistrationStatus(ctx context.Context, actorID string, regID id.RegistrationID, target models.Status) (*Transition, error) {
	ctx, span := tracer.Start(ctx, "verification.SetRegistrationStatus")
	defer span.End()
	span.SetAttributes(attribute.String("registration_id", string(regID)), attribute.String("to", string(target)))

	reg, err := s.lookup(ctx, regID)
	if err != nil {
		return nil, err
	}
	t := &Transition{RegistrationID: reg.RegistrationID, Axis: "status", From: string(reg.Status), To: string(target)}

	if err := reg.Status.CanStaffSet(target); err != nil {
		return nil, err
	}
	if reg.Status == target {
		return t, nil
	}

	now := requestcontext.Now(ctx)
	if err := s.registrations.Update(ctx, reg.ID, docstore.Fields{
		models.FieldStatus:    target,
		models.FieldUpdatedAt: now,
	}); err != nil {
		return nil, s.updateFailed(ctx, reg, "status", err)
	}
	t.Changed = true

	s.syncVerified(ctx, reg.UserID, target == models.StatusApproved, now)
	s.recordTransition(ctx, actorID, reg, audit.EventRegistrationStatusChanged, t)
	if target.IsDecision() {
		s.publishDecision(ctx, events.TypeStatusDecided, actorID, reg, t)
	}
	return t, nil
}

// SetPaymentStatus moves the payment review state. The registration status
// is never touched.
func (s *Service) SetPaymentStatus(ctx context.Context, actorID string, regID id.RegistrationID, target models.PaymentStatus) (*Transition, error) {
	ctx, span := tracer.Start(ctx, "verification.SetPaymentStatus")
	defer span.End()
	span.SetAttributes(attribute.String("registration_id", string(regID)), attribute.String("to", string(target)))

	if err := models.CanStaffSetPayment(target); err != nil {
		return nil, err
	}
	reg, err := s.lookup(ctx, regID)
	if err != nil {
		return nil, err
	}
	t := &Transition{RegistrationID: reg.RegistrationID, Axis: "payment", From: string(reg.PaymentStatus), To: string(target)}
	if reg.PaymentStatus == target {
		return t, nil
	}

	if err := s.registrations.Update(ctx, reg.ID, docstore.Fields{
		models.FieldPaymentStatus: target,
		models.FieldUpdatedAt:     requestcontext.Now(ctx),
	}); err != nil {
		return nil, s.updateFailed(ctx, reg, "payment status", err)
	}
	t.Changed = true

	s.recordTransition(ctx, actorID, reg, audit.EventPaymentStatusChanged, t)
	if target.IsDecision() {
		s.publishDecision(ctx, events.TypePaymentDecided, actorID, reg, t)
	}
	return t, nil
}

func (s *Service) lookup(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	if regID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "registration id is required")
	}
	reg, err := s.registrations.GetByRegistrationID(ctx, regID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

func (s *Service) updateFailed(ctx context.Context, reg *models.Registration, what string, err error) error {
	s.logger.ErrorContext(ctx, "failed to update registration "+what,
		"error", err,
		"registration_id", reg.RegistrationID,
		"request_id", requestcontext.RequestID(ctx),
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration "+what)
}

// syncVerified mirrors approval onto the profile's verified flag. Failures
// are logged; the registration is the source of truth.
func (s *Service) syncVerified(ctx context.Context, userID id.UserID, verified bool, now time.Time) {
	err := s.profiles.Update(ctx, userID, docstore.Fields{
		models.FieldIsVerified: verified,
		models.FieldUpdatedAt:  now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to sync profile verification",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) recordTransition(ctx context.Context, actorID string, reg *models.Registration, action audit.AuditEvent, t *Transition) {
	s.metrics.IncrementTransition(t.Axis, t.To)
	s.logAudit(ctx, audit.Event{
		UserID:         reg.UserID,
		RegistrationID: reg.RegistrationID,
		Subject:        string(reg.RegistrationID),
		Action:         string(action),
		From:           t.From,
		To:             t.To,
		ActorID:        actorID,
	})
}

// publishDecision hands the event to the publisher on a detached context so
// the staff request never waits on, or fails because of, the broker.
func (s *Service) publishDecision(ctx context.Context, eventType events.Type, actorID string, reg *models.Registration, t *Transition) {
	if s.publisher == nil {
		return
	}
	event := events.New(eventType, requestcontext.Now(ctx))
	event.RegistrationID = reg.RegistrationID
	event.UserID = reg.UserID
	event.Email = reg.PersonalInfo.Email
	event.Name = reg.PersonalInfo.FullName
	event.From = t.From
	event.To = t.To
	event.ActorID = actorID

	detached := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(detached, s.publishTimeout)
		defer cancel()

		if event.Email == "" {
			if profile, err := s.profiles.Get(ctx, event.UserID); err == nil {
				event.Email, event.Name = profile.Email, profile.Name
			}
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish decision event",
				"error", err,
				"event_id", event.ID,
				"type", event.Type,
				"registration_id", event.RegistrationID,
			)
		}
	}()
}

// Wait blocks until in-flight decision events were handed off.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// GetUserWithRegistration loads an applicant's profile and canonical
// registration concurrently.
func (s *Service) GetUserWithRegistration(ctx context.Context, userID id.UserID) (*models.UserWithRegistration, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	var (
		profile *models.Profile
		regs    []models.Registration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.Get(gctx, userID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		profile = p
		return err
	})
	g.Go(func() error {
		var err error
		regs, err = s.registrations.ListByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if profile == nil && len(regs) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}

	out := &models.UserWithRegistration{Profile: profile}
	if len(regs) > 0 {
		out.Registration = &regs[0]
	}
	out.Documents = models.ResolveDocuments(profile, out.Registration)
	if len(out.Documents.Divergent) > 0 {
		s.logger.WarnContext(ctx, "file references diverge between profile and registration",
			"user_id", userID,
			"kinds", out.Documents.Divergent,
		)
	}
	return out, nil
}

// ListRegistrations returns registrations newest first.
func (s *Service) ListRegistrations(ctx context.Context, filter store.ListFilter) ([]models.Registration, error) {
	if filter.Status != "" {
		if _, err := models.ParseStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	if filter.PaymentStatus != "" {
		if _, err := models.ParsePaymentStatus(string(filter.PaymentStatus)); err != nil {
			return nil, err
		}
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	regs, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	return regs, nil
}

// SetUserRole grants or revokes the admin role. Admins cannot demote themselves.
func (s *Service) SetUserRole(ctx context.Context, actorID string, userID id.UserID, role models.Role) (*Transition, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	profile, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	t := &Transition{Axis: "role", From: string(profile.Role), To: string(role)}
	if profile.Role == role {
		return t, nil
	}
	if actorID == string(userID) && role != models.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "you cannot remove your own admin role")
	}
	if err := s.profiles.Update(ctx, userID, docstore.Fields{
		models.FieldRole:      role,
		models.FieldUpdatedAt: requestcontext.Now(ctx),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update role")
	}
	t.Changed = true

	s.logAudit(ctx, audit.Event{
		UserID:  userID,
		Subject: string(userID),
		Action:  string(audit.EventRoleChanged),
		From:    t.From,
		To:      t.To,
		ActorID: actorID,
	})
	return t, nil
}

// History returns the transition log of a registration, oldest first.
func (s *Service) History(ctx context.Context, regID id.RegistrationID) ([]audit.Event, error) {
	reg, err := s.lookup(ctx, regID)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.ListByRegistration(ctx, reg.RegistrationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load history")
	}
	return entries, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"user_id", event.UserID,
		"registration_id", event.RegistrationID,
		"actor_id", event.ActorID,
		"from", event.From,
		"to", event.To,
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
