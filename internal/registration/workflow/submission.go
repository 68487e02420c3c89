package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ncc/internal/docstore"
	"ncc/internal/registration/models"
	"ncc/internal/registration/reconcile"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

// Progress is where the applicant stands in the wizard.
type Progress struct {
	Step              models.Step              `json:"step"`
	RegistrationID    id.RegistrationID        `json:"registrationId,omitempty"`
	PersonalInfo      *models.PersonalInfo     `json:"personalInfo,omitempty"`
	AgreementAccepted bool                     `json:"agreementAccepted"`
	Documents         models.ResolvedDocuments `json:"documents"`
	Submitted         bool                     `json:"submitted"`
	Status            models.Status            `json:"status,omitempty"`
	PaymentStatus     models.PaymentStatus     `json:"paymentStatus,omitempty"`
	ReadyToSubmit     bool                     `json:"readyToSubmit"`
	Warnings          []string                 `json:"warnings,omitempty"`
}

// Progress derives the resume point from the wizard session and the
// persisted records.
func (s *Service) Progress(ctx context.Context, userID id.UserID) (*Progress, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	sess, sessErr := s.loadSession(ctx, userID)
	profile, reg, err := s.persisted(ctx, userID)

	p := buildProgress(sess, profile, reg)
	if sessErr != nil || err != nil {
		p.Warnings = append(p.Warnings, "some of your saved progress could not be loaded")
	}
	return p, nil
}

func buildProgress(sess *models.WizardSession, profile *models.Profile, reg *models.Registration) *Progress {
	p := &Progress{
		Documents: sess.Overlay(models.ResolveDocuments(profile, reg)),
		Submitted: sess.Submitted,
	}
	if reg != nil {
		p.RegistrationID = reg.RegistrationID
		p.Status = reg.Status
		p.PaymentStatus = reg.PaymentStatus
		p.Submitted = p.Submitted || reg.SubmittedAt != nil
	} else if !sess.RegistrationID.IsNil() {
		p.RegistrationID = sess.RegistrationID
	}
	if info, ok := capturedInfo(sess, reg); ok {
		p.PersonalInfo = &info
	}
	// Agreement lives in the session; a submitted registration implies it.
	p.AgreementAccepted = sess.AgreementAccepted || p.Submitted
	p.ReadyToSubmit = p.PersonalInfo != nil && p.AgreementAccepted && p.Documents.Complete()
	p.Step = models.CurrentStep(p.PersonalInfo != nil, p.AgreementAccepted, p.Documents, p.Submitted)
	return p
}

// capturedInfo returns complete personal info from the session or the registration.
func capturedInfo(sess *models.WizardSession, reg *models.Registration) (models.PersonalInfo, bool) {
	if sess != nil && sess.PersonalInfo != nil {
		return *sess.PersonalInfo, true
	}
	if reg != nil && reg.PersonalInfo.Validate() == nil {
		return reg.PersonalInfo, true
	}
	return models.PersonalInfo{}, false
}

// SubmissionResult reports a final submission. Persisted is false when the
// submission was accepted but the registration could not be written.
type SubmissionResult struct {
	RegistrationID id.RegistrationID    `json:"registrationId"`
	Persisted      bool                 `json:"persisted"`
	ProfileSynced  bool                 `json:"profileSynced"`
	Status         models.Status        `json:"status"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	Warnings       []string             `json:"warnings,omitempty"`
	Step           models.Step          `json:"step"`
}

// FinalizeSubmission writes the full registration in one update or create.
// Missing documents or agreement are validation errors; every later failure
// is reported through the result.
func (s *Service) FinalizeSubmission(ctx context.Context, userID id.UserID) (*SubmissionResult, error) {
	start := time.Now()
	defer s.metrics.ObserveFinalize(start)

	ctx, span := tracer.Start(ctx, "workflow.FinalizeSubmission")
	defer span.End()

	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	sess, _ := s.loadSession(ctx, userID)
	profile, reg, loadErr := s.persisted(ctx, userID)
	docs := sess.Overlay(models.ResolveDocuments(profile, reg))
	submittedBefore := reg != nil && reg.SubmittedAt != nil

	var missing []string
	for _, kind := range models.DocumentKinds {
		if !docs.Get(kind).Present() {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		if loadErr != nil {
			return nil, dErrors.Wrap(loadErr, dErrors.CodeUnavailable, "could not load your documents, please try again")
		}
		return nil, dErrors.New(dErrors.CodeValidation, "missing documents: "+strings.Join(missing, ", "))
	}
	if !sess.AgreementAccepted && !submittedBefore {
		return nil, dErrors.New(dErrors.CodeValidation, "the agreement must be accepted before submitting")
	}

	info := s.submissionInfo(sess, profile, reg)
	res := &SubmissionResult{
		Status:        models.StatusPendingVerification,
		PaymentStatus: models.PaymentVerificationPending,
		Step:          models.StepConfirmation,
	}

	ensured, err := s.Reconciler.EnsureRegistered(ctx, userID, reconcile.Seed{
		Name:     info.FullName,
		Email:    info.Email,
		Captured: &info,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "reconciliation failed during submission",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
		ensured = nil
	}

	now := requestcontext.Now(ctx)
	fields := docstore.Fields{
		models.FieldPersonalInfo:            info,
		models.FieldStudentIDFileID:         docs.StudentID.FileID,
		models.FieldPaymentScreenshotFileID: docs.PaymentScreenshot.FileID,
		models.FieldEventType:               s.cfg.EventType,
		models.FieldRegistrationFee:         models.NewFee(s.cfg.Fee),
		models.FieldStatus:                  models.StatusPendingVerification,
		models.FieldPaymentStatus:           models.PaymentVerificationPending,
		models.FieldSubmittedAt:             now,
		models.FieldUpdatedAt:               now,
	}

	previous := models.StatusIncomplete
	if reg != nil {
		previous = reg.Status
	}
	res.RegistrationID, res.Persisted = s.upsertRegistration(ctx, userID, ensured, reg, fields, docs, info, now)
	span.SetAttributes(
		attribute.String("registration_id", string(res.RegistrationID)),
		attribute.Bool("persisted", res.Persisted),
	)
	if !res.Persisted {
		s.metrics.IncrementSubmissionDegraded()
		res.Warnings = append(res.Warnings, "your submission was received but could not be saved; please submit again")
	}

	res.ProfileSynced = s.syncProfile(ctx, userID, profile, docs, now)
	if !res.ProfileSynced {
		res.Warnings = append(res.Warnings, "your profile could not be updated with your documents")
	}

	sess.Submitted = res.Persisted
	sess.RegistrationID = res.RegistrationID
	_ = s.saveSession(ctx, sess)

	if res.Persisted {
		s.metrics.IncrementTransition("status", string(models.StatusPendingVerification))
		s.metrics.IncrementTransition("payment", string(models.PaymentVerificationPending))
		s.logAudit(ctx, audit.Event{
			UserID:         userID,
			RegistrationID: res.RegistrationID,
			Subject:        string(res.RegistrationID),
			Action:         string(audit.EventSubmissionFinalized),
			From:           string(previous),
			To:             string(models.StatusPendingVerification),
		})
	}
	return res, nil
}

// submissionInfo picks the best personal info: session, registration, then profile.
func (s *Service) submissionInfo(sess *models.WizardSession, profile *models.Profile, reg *models.Registration) models.PersonalInfo {
	if info, ok := capturedInfo(sess, reg); ok {
		return info
	}
	if reg != nil && !reg.PersonalInfo.IsZero() {
		return reg.PersonalInfo
	}
	if profile != nil {
		return models.PersonalInfo{
			FullName:    profile.Name,
			Email:       profile.Email,
			Phone:       profile.Phone,
			Institution: profile.Institution,
			StudentID:   profile.StudentID,
		}
	}
	return models.PersonalInfo{}
}

// upsertRegistration updates the existing registration, never touching its
// registration id, or creates one when none exists. existing is the
// registration loaded before reconciliation and is used when reconciliation
// did not report one.
func (s *Service) upsertRegistration(ctx context.Context, userID id.UserID, ensured *reconcile.Result, existing *models.Registration, fields docstore.Fields, docs models.ResolvedDocuments, info models.PersonalInfo, now time.Time) (id.RegistrationID, bool) {
	var docID string
	var regID id.RegistrationID
	if ensured != nil {
		docID, regID = ensured.RegistrationDocID, ensured.RegistrationID
	}
	if docID == "" && existing != nil && existing.ID != "" {
		docID, regID = existing.ID, existing.RegistrationID
	}
	if docID != "" {
		if err := s.Registrations.Update(ctx, docID, fields); err != nil {
			s.submissionFailed(ctx, userID, regID, err)
			return regID, false
		}
		return regID, true
	}

	if regID.IsNil() {
		generated, err := id.NewRegistrationID(now)
		if err != nil {
			s.submissionFailed(ctx, userID, "", err)
			return "", false
		}
		regID = generated
	}

	submittedAt := now
	reg := &models.Registration{
		RegistrationID:          regID,
		UserID:                  userID,
		EventType:               s.cfg.EventType,
		PersonalInfo:            info,
		StudentIDFileID:         docs.StudentID.FileID,
		PaymentScreenshotFileID: docs.PaymentScreenshot.FileID,
		Status:                  models.StatusPendingVerification,
		PaymentStatus:           models.PaymentVerificationPending,
		RegistrationFee:         models.NewFee(s.cfg.Fee),
		SubmittedAt:             &submittedAt,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	_, err := s.Registrations.Create(ctx, reg)
	if errors.Is(err, sentinel.ErrConflict) {
		// A registration appeared since reconciliation; update it instead.
		found, listErr := s.Registrations.ListByUser(ctx, userID)
		if listErr == nil && len(found) > 0 {
			err = s.Registrations.Update(ctx, found[0].ID, fields)
			regID = found[0].RegistrationID
		}
	}
	if err != nil {
		s.submissionFailed(ctx, userID, regID, err)
		return regID, false
	}
	return regID, true
}

func (s *Service) submissionFailed(ctx context.Context, userID id.UserID, regID id.RegistrationID, err error) {
	s.logger.ErrorContext(ctx, "failed to persist submission",
		"error", err,
		"user_id", userID,
		"registration_id", regID,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// syncProfile copies the submitted file ids onto the profile and fills a
// missing role.
func (s *Service) syncProfile(ctx context.Context, userID id.UserID, profile *models.Profile, docs models.ResolvedDocuments, now time.Time) bool {
	fields := docstore.Fields{
		models.FieldStudentIDFileID:         docs.StudentID.FileID,
		models.FieldPaymentScreenshotFileID: docs.PaymentScreenshot.FileID,
		models.FieldUpdatedAt:               now,
	}
	if profile != nil && profile.Role == "" {
		fields[models.FieldRole] = models.RoleUser
	}
	if err := s.Profiles.Update(ctx, userID, fields); err != nil {
		s.logger.WarnContext(ctx, "failed to sync profile after submission",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return false
	}
	return true
}
