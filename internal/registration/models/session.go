package models

import (
	"time"

	id "ncc/pkg/domain"
)

// Step is a wizard step.
type Step string

const (
	StepPersonalInfo Step = "personal_info"
	StepAgreement    Step = "agreement"
	StepDocuments    Step = "documents"
	StepConfirmation Step = "confirmation"
)

// SessionDocument is an upload recorded in the wizard session.
type SessionDocument struct {
	FileID     string    `json:"fileId"`
	LocalName  string    `json:"localName"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// WizardSession is the transient, resumable state of one applicant's wizard.
// It is never written to the document store.
type WizardSession struct {
	UserID              id.UserID                        `json:"userId"`
	RegistrationID      id.RegistrationID                `json:"registrationId,omitempty"`
	RegistrationDocID   string                           `json:"registrationDocId,omitempty"`
	PersonalInfo        *PersonalInfo                    `json:"personalInfo,omitempty"`
	AgreementAccepted   bool                             `json:"agreementAccepted"`
	AgreementAcceptedAt *time.Time                       `json:"agreementAcceptedAt,omitempty"`
	Documents           map[DocumentKind]SessionDocument `json:"documents,omitempty"`
	Submitted           bool                             `json:"submitted"`
	UpdatedAt           time.Time                        `json:"updatedAt"`
}

// NewWizardSession starts an empty session.
func NewWizardSession(userID id.UserID) *WizardSession {
	return &WizardSession{UserID: userID, Documents: map[DocumentKind]SessionDocument{}}
}

// RecordDocument stores an upload in the session.
func (s *WizardSession) RecordDocument(kind DocumentKind, doc SessionDocument) {
	if s.Documents == nil {
		s.Documents = map[DocumentKind]SessionDocument{}
	}
	s.Documents[kind] = doc
}

// Overlay resolves documents with session uploads taking precedence over persisted references.
func (s *WizardSession) Overlay(persisted ResolvedDocuments) ResolvedDocuments {
	if s == nil {
		return persisted
	}
	out := persisted
	for kind, doc := range s.Documents {
		if doc.FileID == "" {
			continue
		}
		out.set(kind, DocumentRef{FileID: doc.FileID, Source: SourceSession})
	}
	return out
}

// CurrentStep derives where the applicant should resume.
func CurrentStep(personalInfoDone, agreementDone bool, docs ResolvedDocuments, submitted bool) Step {
	switch {
	case submitted:
		return StepConfirmation
	case !personalInfoDone:
		return StepPersonalInfo
	case !agreementDone:
		return StepAgreement
	case !docs.Complete():
		return StepDocuments
	default:
		return StepConfirmation
	}
}
