package models

import (
	"time"

	id "ncc/pkg/domain"
)

// Registration document field names used in filters and partial updates.
const (
	FieldUserID                  = "user_id"
	FieldRegistrationID          = "registration_id"
	FieldStatus                  = "status"
	FieldPaymentStatus           = "payment_status"
	FieldPersonalInfo            = "personal_info"
	FieldEventType               = "event_type"
	FieldRegistrationFee         = "registration_fee"
	FieldSubmittedAt             = "submitted_at"
	FieldUpdatedAt               = "updated_at"
	FieldStudentIDFileID         = "student_id_file_id"
	FieldPaymentScreenshotFileID = "payment_screenshot_file_id"

	// Profile-only fields.
	FieldName        = "name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldInstitution = "institution"
	FieldStudentID   = "student_id"
	FieldRole        = "role"
	FieldIsVerified  = "is_verified"
)

// Registration is one applicant's entry for the event. RegistrationID is
// assigned once and never rewritten; at most one registration exists per user.
type Registration struct {
	ID                      string            `bson:"_id,omitempty" json:"id"`
	RegistrationID          id.RegistrationID `bson:"registration_id" json:"registrationId"`
	UserID                  id.UserID         `bson:"user_id" json:"userId"`
	EventType               string            `bson:"event_type" json:"eventType"`
	PersonalInfo            PersonalInfo      `bson:"personal_info" json:"personalInfo"`
	StudentIDFileID         string            `bson:"student_id_file_id,omitempty" json:"studentIdFileId,omitempty"`
	PaymentScreenshotFileID string            `bson:"payment_screenshot_file_id,omitempty" json:"paymentScreenshotFileId,omitempty"`
	Status                  Status            `bson:"status" json:"status"`
	PaymentStatus           PaymentStatus     `bson:"payment_status" json:"paymentStatus"`
	RegistrationFee         Fee               `bson:"registration_fee" json:"registrationFee"`
	SubmittedAt             *time.Time        `bson:"submitted_at,omitempty" json:"submittedAt,omitempty"`
	CreatedAt               time.Time         `bson:"created_at" json:"createdAt"`
	UpdatedAt               time.Time         `bson:"updated_at" json:"updatedAt"`
}

// FileID returns the registration's reference for a document kind.
func (r *Registration) FileID(kind DocumentKind) string {
	if r == nil {
		return ""
	}
	switch kind {
	case DocumentStudentID:
		return r.StudentIDFileID
	case DocumentPaymentScreenshot:
		return r.PaymentScreenshotFileID
	}
	return ""
}

// UserWithRegistration is the staff view of an applicant.
type UserWithRegistration struct {
	Profile      *Profile          `json:"profile"`
	Registration *Registration     `json:"registration,omitempty"`
	Documents    ResolvedDocuments `json:"documents"`
}
