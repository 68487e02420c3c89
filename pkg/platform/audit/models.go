package audit

import (
	"context"
	"time"

	id "ncc/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers decisions about an applicant: status, payment
	// and role changes, submissions, agreement acceptance, account creation.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers auth failures and data divergence between the
	// profile and registration documents.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as uploads, logins and repairs.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID             string
	Category       EventCategory
	Timestamp      time.Time
	UserID         id.UserID
	RegistrationID id.RegistrationID
	Subject        string
	Action         string
	// From and To carry the previous and new value of a transition.
	From      string
	To        string
	Reason    string
	Email     string
	RequestID string
	// ActorID is the staff member or operator who performed the action when
	// different from UserID. Operator actions use "operator".
	ActorID string
	Device  string
}

type AuditEvent string

const (
	// Identity events
	EventAccountCreated AuditEvent = "account_created"
	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventAuthFailed     AuditEvent = "auth_failed"
	EventLoggedOut      AuditEvent = "logged_out"

	// Reconciliation events
	EventProfileCreated          AuditEvent = "profile_created"
	EventRegistrationCreated     AuditEvent = "registration_created"
	EventRegistrationDivergence  AuditEvent = "registration_divergence"
	EventDuplicateRegistrations  AuditEvent = "duplicate_registrations"
	EventFileReferenceDivergence AuditEvent = "file_reference_divergence"

	// Workflow events
	EventPersonalInfoSaved   AuditEvent = "personal_info_saved"
	EventAgreementAccepted   AuditEvent = "agreement_accepted"
	EventDocumentUploaded    AuditEvent = "document_uploaded"
	EventSubmissionFinalized AuditEvent = "submission_finalized"

	// Verification events
	EventRegistrationStatusChanged AuditEvent = "registration_status_changed"
	EventPaymentStatusChanged      AuditEvent = "payment_status_changed"
	EventRoleChanged               AuditEvent = "role_changed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccountCreated:            CategoryCompliance,
	EventProfileCreated:            CategoryCompliance,
	EventRegistrationCreated:       CategoryCompliance,
	EventAgreementAccepted:         CategoryCompliance,
	EventSubmissionFinalized:       CategoryCompliance,
	EventRegistrationStatusChanged: CategoryCompliance,
	EventPaymentStatusChanged:      CategoryCompliance,
	EventRoleChanged:               CategoryCompliance,

	EventAuthFailed:              CategorySecurity,
	EventRegistrationDivergence:  CategorySecurity,
	EventDuplicateRegistrations:  CategorySecurity,
	EventFileReferenceDivergence: CategorySecurity,

	EventLoginSucceeded:    CategoryOperations,
	EventLoggedOut:         CategoryOperations,
	EventPersonalInfoSaved: CategoryOperations,
	EventDocumentUploaded:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// IsTransition reports whether the event records a registration state change
// that belongs in a registration's history.
func (e AuditEvent) IsTransition() bool {
	switch e {
	case EventRegistrationCreated, EventSubmissionFinalized,
		EventRegistrationStatusChanged, EventPaymentStatusChanged:
		return true
	}
	return false
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListByRegistration(ctx context.Context, registrationID id.RegistrationID) ([]Event, error)
	ListByRegistrations(ctx context.Context, registrationIDs []id.RegistrationID) (map[id.RegistrationID][]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Emitter is what domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
