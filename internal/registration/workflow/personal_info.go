package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ncc/internal/docstore"
	identity "ncc/internal/identity/models"
	"ncc/internal/registration/models"
	"ncc/internal/registration/reconcile"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

// PersonalInfoInput is the first wizard step. Credentials are only checked
// when the caller is not signed in.
type PersonalInfoInput struct {
	models.PersonalInfo
	models.Credentials
}

// Caller is the signed-in applicant, if any.
type Caller struct {
	UserID id.UserID
	Email  string
}

// PersonalInfoResult reports what was saved. Persisted is false when the
// account exists but the profile or registration could not be written yet.
type PersonalInfoResult struct {
	UserID          id.UserID         `json:"userId"`
	RegistrationID  id.RegistrationID `json:"registrationId,omitempty"`
	AccountCreated  bool              `json:"accountCreated"`
	IdentityVisible bool              `json:"identityVisible"`
	Persisted       bool              `json:"persisted"`
	AccessToken     string            `json:"accessToken,omitempty"`
	ExpiresAt       *time.Time        `json:"expiresAt,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Step            models.Step       `json:"step"`
}

func (r *PersonalInfoResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// SubmitPersonalInfo validates and stores the applicant's details. Without a
// caller it first creates and signs in an account.
func (s *Service) SubmitPersonalInfo(ctx context.Context, caller *Caller, input PersonalInfoInput) (*PersonalInfoResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.SubmitPersonalInfo")
	defer span.End()

	info := input.PersonalInfo.Normalize()
	authenticated := caller != nil && !caller.UserID.IsNil()
	span.SetAttributes(attribute.Bool("authenticated", authenticated))

	if authenticated {
		if err := info.Validate(); err != nil {
			return nil, err
		}
		return s.updatePersonalInfo(ctx, caller.UserID, info)
	}
	if err := joinValidation(info.Validate(), input.Credentials.Validate()); err != nil {
		return nil, err
	}
	return s.signUp(ctx, info, input.Password)
}

func (s *Service) signUp(ctx context.Context, info models.PersonalInfo, password string) (*PersonalInfoResult, error) {
	userID, err := s.Identity.CreateAccount(ctx, info.Email, password, info.FullName)
	if err != nil {
		return nil, err
	}
	res := &PersonalInfoResult{UserID: userID, AccountCreated: true, Step: models.StepPersonalInfo}

	login, err := s.Identity.Login(ctx, &identity.LoginRequest{Email: info.Email, Password: password})
	if err != nil {
		s.logger.WarnContext(ctx, "account created but sign-in failed",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
		res.warn("your account was created; please sign in to continue")
		return res, nil
	}
	res.AccessToken = login.AccessToken
	expiresAt := login.ExpiresAt
	res.ExpiresAt = &expiresAt

	sess := models.NewWizardSession(userID)
	sess.PersonalInfo = &info

	visible, err := s.awaitIdentity(ctx, login.AccessToken, userID)
	if err != nil || !visible {
		s.metrics.IncrementIdentityPollTimeout()
		s.logger.WarnContext(ctx, "new account not visible within poll budget",
			"error", err,
			"user_id", userID,
			"attempts", s.cfg.IdentityPollAttempts,
			"request_id", requestcontext.RequestID(ctx),
		)
		res.warn("your account is still being set up; your details will be saved when you continue")
		res.Step = models.StepAgreement
		_ = s.saveSession(ctx, sess)
		return res, nil
	}
	res.IdentityVisible = true

	result, err := s.Reconciler.EnsureRegistered(ctx, userID, seedFrom(info))
	if err != nil {
		res.warn("your details could not be saved yet; they will be saved when you continue")
		res.Step = models.StepAgreement
		_ = s.saveSession(ctx, sess)
		return res, nil
	}

	profileSaved := s.Profiles.Update(ctx, userID, profileFields(info, requestcontext.Now(ctx))) == nil
	if !profileSaved {
		res.warn("your profile could not be updated yet")
	}
	regSaved := s.syncRegistrationInfo(ctx, result, info, res)
	res.Persisted = profileSaved && regSaved
	s.finishPersonalInfo(ctx, sess, result, res)
	return res, nil
}

func (s *Service) updatePersonalInfo(ctx context.Context, userID id.UserID, info models.PersonalInfo) (*PersonalInfoResult, error) {
	res := &PersonalInfoResult{UserID: userID}
	fields := profileFields(info, requestcontext.Now(ctx))

	err := s.Profiles.Update(ctx, userID, fields)
	if errors.Is(err, sentinel.ErrNotFound) {
		if _, ensureErr := s.Reconciler.EnsureRegistered(ctx, userID, seedFrom(info)); ensureErr != nil {
			return nil, ensureErr
		}
		err = s.Profiles.Update(ctx, userID, fields)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update profile",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save personal information")
	}

	sess, _ := s.loadSession(ctx, userID)
	sess.PersonalInfo = &info

	result, err := s.Reconciler.EnsureRegistered(ctx, userID, seedFrom(info))
	if err != nil {
		res.warn("your registration could not be prepared yet; it will be created on submission")
		_ = s.saveSession(ctx, sess)
		res.Step = models.CurrentStep(true, sess.AgreementAccepted, sess.Overlay(models.ResolvedDocuments{}), false)
		return res, nil
	}
	res.Persisted = s.syncRegistrationInfo(ctx, result, info, res)
	s.finishPersonalInfo(ctx, sess, result, res)
	return res, nil
}

// syncRegistrationInfo copies personal info onto a registration that has not
// been submitted. Submitted registrations take personal info at the next
// submission.
func (s *Service) syncRegistrationInfo(ctx context.Context, result *reconcile.Result, info models.PersonalInfo, res *PersonalInfoResult) bool {
	res.RegistrationID = result.RegistrationID
	if result.Divergent || result.RegistrationDocID == "" {
		res.warn("your registration could not be created yet; it will be created on submission")
		return false
	}
	if result.Registration != nil && result.Registration.Status != models.StatusIncomplete {
		return true
	}
	err := s.Registrations.Update(ctx, result.RegistrationDocID, docstore.Fields{
		models.FieldPersonalInfo: info,
		models.FieldUpdatedAt:    requestcontext.Now(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to copy personal info to registration",
			"error", err,
			"user_id", res.UserID,
			"registration_id", result.RegistrationID,
			"request_id", requestcontext.RequestID(ctx),
		)
		res.warn("your registration could not be updated yet; it will be updated on submission")
		return false
	}
	return true
}

func (s *Service) finishPersonalInfo(ctx context.Context, sess *models.WizardSession, result *reconcile.Result, res *PersonalInfoResult) {
	sess.RegistrationID = result.RegistrationID
	sess.RegistrationDocID = result.RegistrationDocID
	if err := s.saveSession(ctx, sess); err != nil {
		res.warn("your progress could not be saved for later")
	}
	docs := sess.Overlay(models.ResolveDocuments(result.Profile, result.Registration))
	res.Step = models.CurrentStep(true, sess.AgreementAccepted, docs, false)

	s.logAudit(ctx, audit.Event{
		UserID:         res.UserID,
		RegistrationID: result.RegistrationID,
		Subject:        string(res.UserID),
		Action:         string(audit.EventPersonalInfoSaved),
	})
}

// awaitIdentity polls the identity provider until the new account is visible.
// It returns false once the attempts are exhausted.
func (s *Service) awaitIdentity(ctx context.Context, accessToken string, userID id.UserID) (bool, error) {
	for attempt := 1; ; attempt++ {
		session, err := s.Identity.CurrentSession(ctx, accessToken)
		if err == nil && session.UserID == userID {
			return true, nil
		}
		if attempt >= s.cfg.IdentityPollAttempts {
			return false, nil
		}
		timer := time.NewTimer(s.cfg.IdentityPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// AcceptAgreement records the agreement in the wizard session only.
func (s *Service) AcceptAgreement(ctx context.Context, userID id.UserID, accepted bool) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !accepted {
		return dErrors.New(dErrors.CodeValidation, "you must accept the agreement to continue")
	}
	sess, _ := s.loadSession(ctx, userID)
	now := requestcontext.Now(ctx)
	sess.AgreementAccepted = true
	sess.AgreementAcceptedAt = &now
	if err := s.saveSession(ctx, sess); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save agreement")
	}
	s.logAudit(ctx, audit.Event{
		UserID:         userID,
		RegistrationID: sess.RegistrationID,
		Subject:        string(userID),
		Action:         string(audit.EventAgreementAccepted),
	})
	return nil
}

func seedFrom(info models.PersonalInfo) reconcile.Seed {
	return reconcile.Seed{Name: info.FullName, Email: info.Email, Captured: &info}
}

func profileFields(info models.PersonalInfo, now time.Time) docstore.Fields {
	return docstore.Fields{
		models.FieldName:        info.FullName,
		models.FieldEmail:       info.Email,
		models.FieldPhone:       info.Phone,
		models.FieldInstitution: info.Institution,
		models.FieldStudentID:   info.StudentID,
		models.FieldUpdatedAt:   now,
	}
}

// joinValidation merges validation errors into a single message.
func joinValidation(errs ...error) error {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, dErrors.MessageOf(err))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}
