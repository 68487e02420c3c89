package models

import (
	"time"

	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
)

// Role is an account role. Only an existing admin (or the operator) escalates it.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "role must be one of: user, admin")
}

// Profile is the per-user document in the users collection. Its id is the
// identity provider's user id.
type Profile struct {
	ID                      id.UserID `bson:"_id" json:"id"`
	Name                    string    `bson:"name" json:"name"`
	Email                   string    `bson:"email" json:"email"`
	Phone                   string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Institution             string    `bson:"institution,omitempty" json:"institution,omitempty"`
	StudentID               string    `bson:"student_id,omitempty" json:"studentId,omitempty"`
	Role                    Role      `bson:"role" json:"role"`
	IsVerified              bool      `bson:"is_verified" json:"isVerified"`
	StudentIDFileID         string    `bson:"student_id_file_id,omitempty" json:"studentIdFileId,omitempty"`
	PaymentScreenshotFileID string    `bson:"payment_screenshot_file_id,omitempty" json:"paymentScreenshotFileId,omitempty"`
	CreatedAt               time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt               time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsAdmin reports whether the profile holds the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// FileID returns the profile's reference for a document kind.
func (p *Profile) FileID(kind DocumentKind) string {
	if p == nil {
		return ""
	}
	switch kind {
	case DocumentStudentID:
		return p.StudentIDFileID
	case DocumentPaymentScreenshot:
		return p.PaymentScreenshotFileID
	}
	return ""
}
